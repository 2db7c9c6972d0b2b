/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	ddir = "/var/lib/ipref/host"
)

var cli struct { // no locks, once setup in cli, never modified thereafter
	debuglist   string
	trace       bool
	stamps      bool
	loglevel    string
	ifc_name    string
	tap_name    string
	ipstr       string
	macstr      string
	mtu         int
	ttl         int
	arp_timeout time.Duration
	arp_pending time.Duration
	ethers      string
	datadir     string
	echo_port   int
	discard     int
	// derived
	ip  IP
	mac MAC
	ifc *net.Interface
}

func parse_cli() {

	flag.StringVar(&cli.debuglist, "debug", "", "enable debug in listed files, comma separated, or 'all'")
	flag.BoolVar(&cli.trace, "trace", false, "enable packet trace")
	flag.BoolVar(&cli.stamps, "time-stamps", false, "print logs with time stamps")
	flag.StringVar(&cli.loglevel, "log-level", "info", "log level: info, error, none")
	flag.StringVar(&cli.ifc_name, "ifc", "", "attach to network interface using a raw socket")
	flag.StringVar(&cli.tap_name, "tap", "", "attach to a newly created tap device of this name")
	flag.StringVar(&cli.ipstr, "ip", "", "host IPv4 address")
	flag.StringVar(&cli.macstr, "mac", "", "host link address (default: interface address or random)")
	flag.IntVar(&cli.mtu, "mtu", 0, "link MTU (default: interface MTU or 1500)")
	flag.IntVar(&cli.ttl, "ttl", IP_DEFAULT_TTL, "TTL of sent IP packets")
	flag.DurationVar(&cli.arp_timeout, "arp-timeout", ARP_TIMEOUT, "lifetime of address resolution entries")
	flag.DurationVar(&cli.arp_pending, "arp-pending", ARP_PENDING, "how long to hold a packet waiting for address resolution")
	flag.StringVar(&cli.ethers, "ethers", "", "static neighbor file in ethers(5) format")
	flag.StringVar(&cli.datadir, "data", ddir, "data directory")
	flag.IntVar(&cli.echo_port, "echo-port", ECHO, "udp echo service port, 0 to disable")
	flag.IntVar(&cli.discard, "discard-port", DISCARD, "udp discard service port, 0 to disable")
	flag.Usage = func() {
		toks := strings.Split(os.Args[0], "/")
		prog := toks[len(toks)-1]
		fmt.Println("User space IPv4 host stack. It attaches to an ethernet segment through")
		fmt.Println("a raw socket or a tap device and answers ARP, ICMP echo and UDP.")
		fmt.Println("")
		fmt.Println("   ", prog, "[FLAGS]")
		fmt.Println("")
		flag.PrintDefaults()
	}
	flag.Parse()

	var err error

	// initialize logger

	level, err := parse_log_level(cli.loglevel)
	if err != nil {
		log.fatal("%v", err)
	}
	if cli.trace {
		level = TRACE
	}
	log.set(level, cli.stamps)
	log.set_debug(cli.debuglist)

	// link

	if (cli.ifc_name == "") == (cli.tap_name == "") {
		log.fatal("specify exactly one of -ifc or -tap")
	}

	if cli.ifc_name != "" {
		cli.ifc, err = net.InterfaceByName(cli.ifc_name)
		if err != nil {
			log.fatal("cannot get interface %v: %v", cli.ifc_name, err)
		}
	}

	// addresses

	if cli.ipstr == "" {
		log.fatal("missing host IP address (try -ip 192.168.84.7)")
	}
	cli.ip, err = ParseIP(cli.ipstr)
	if err != nil {
		log.fatal("invalid host IP address: %v: %v", cli.ipstr, err)
	}

	switch {
	case cli.macstr != "":
		cli.mac, err = ParseMAC(cli.macstr)
		if err != nil {
			log.fatal("invalid link address: %v", err)
		}
	case cli.ifc != nil && len(cli.ifc.HardwareAddr) == 6:
		cli.mac = MACFromSlice(cli.ifc.HardwareAddr)
	default:
		cli.mac = random_mac()
	}

	// deduce mtu

	if cli.mtu == 0 && cli.ifc != nil {
		cli.mtu = cli.ifc.MTU
	}
	if cli.mtu == 0 {
		cli.mtu = ETHER_MTU
	}
	if cli.mtu < IP_MIN_MTU || cli.mtu >= 0xffff {
		log.fatal("invalid mtu: %v", cli.mtu)
	}

	if cli.ttl <= 0 || cli.ttl > 255 {
		log.fatal("invalid ttl: %v", cli.ttl)
	}

	if cli.echo_port < 0 || cli.echo_port > 0xffff || cli.discard < 0 || cli.discard > 0xffff {
		log.fatal("invalid service port: echo(%v) discard(%v)", cli.echo_port, cli.discard)
	}

	// validate file paths

	cli.datadir = absolute("data directory path", cli.datadir)
	if cli.ethers != "" {
		cli.ethers = absolute("ethers file path", cli.ethers)
	}
}

func stack_cfg() StackCfg {

	cfg := default_cfg(cli.ip, cli.mac)
	cfg.mtu = cli.mtu
	cfg.ttl = byte(cli.ttl)
	cfg.arp_timeout = cli.arp_timeout
	cfg.arp_pending = cli.arp_pending
	return cfg
}

// Locally administered unicast address.
func random_mac() (mac MAC) {

	_, err := rand.Read(mac[:])
	if err != nil {
		log.fatal("cannot generate link address: %v", err)
	}
	mac[0] = (mac[0] | 0x02) &^ 0x01
	return
}

func absolute(desc, path string) string {

	if len(path) == 0 {
		log.fatal("missing %v", desc)
	}

	apath, err := filepath.Abs(path)
	if err != nil {
		log.fatal("invalid %v: %v: %v", desc, path, err)
	}
	return apath
}
