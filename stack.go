/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

import (
	"fmt"
	"time"
)

/* Packet flow

                 ┏━━━━━━━┓  ETHER_ARP   ┏━━━━━━┓
       ╭───▷─────┨ ether ┠─────▷────────┨ arp  ┃
       │         ┃   in  ┠──▷──╮        ┗━━┯━━━┛
    ┏━━┷━━━┓     ┗━━━━━━━┛     │ ETHER_IPv4│ flush / reply
 ─▷─┨ link ┃                ┏━━┷━━━┓     ┏━┷━━━━━┓
 ─◁─┨      ┠─────◁──────────┨  ip  ┠──▷──┨ ether ┃
    ┗━━━━━━┛    ether out   ┗━┯━━┯━┛     ┃  out  ┃
                    ╭─────────╯  ╰────╮  ┗━━━━━━━┛
                 ┏━━┷━━━┓          ┏━━┷━━┓
                 ┃ icmp ┠────◁─────┨ udp ┃  port unreachable
                 ┗━━━━━━┛          ┗━━━━━┛

Inbound frames climb through the link and ip registries. Outbound datagrams
go down through ip.send, arp.send and ether.send to the link driver.

All processing runs to completion on the stack goroutine, one frame or job at
a time. The resolution table, the pending queue and the port table are only
touched from there. Other goroutines reach the stack through submit().
*/

const (
	ARP_TIMEOUT    = 5 * time.Minute // resolution table entry lifetime
	ARP_PENDING    = time.Second     // pending packet lifetime
	IP_DEFAULT_TTL = 64
	IP_MIN_MTU     = 68
	RECVQLEN       = 64
	JOBQLEN        = 16
)

// Link drivers deliver received frames through Stack.deliver and transmit
// through write_frame. The frame is only valid for the duration of the call.
type Link interface {
	write_frame(frame []byte) error
}

type StackCfg struct {
	ip          IP
	mac         MAC
	mtu         int
	ttl         byte
	arp_timeout time.Duration
	arp_pending time.Duration
}

func default_cfg(ip IP, mac MAC) StackCfg {

	return StackCfg{
		ip:          ip,
		mac:         mac,
		mtu:         ETHER_MTU,
		ttl:         IP_DEFAULT_TTL,
		arp_timeout: ARP_TIMEOUT,
		arp_pending: ARP_PENDING,
	}
}

func (cfg *StackCfg) validate() error {

	switch {
	case cfg.ip.IsZero():
		return fmt.Errorf("missing host IP address")
	case cfg.mac == MAC_ZERO || cfg.mac.IsBroadcast():
		return fmt.Errorf("invalid host link address: %v", cfg.mac)
	case cfg.mtu < IP_MIN_MTU || cfg.mtu > 0xffff:
		return fmt.Errorf("invalid mtu: %v", cfg.mtu)
	case cfg.ttl == 0:
		return fmt.Errorf("invalid ttl: %v", cfg.ttl)
	case cfg.arp_timeout < time.Millisecond || cfg.arp_pending < time.Millisecond:
		return fmt.Errorf("invalid arp timeouts: %v %v", cfg.arp_timeout, cfg.arp_pending)
	}
	return nil
}

type Stack struct {
	cfg         StackCfg
	link        Link
	link_protos *Registry[MAC] // by ethertype
	ip_protos   *Registry[IP]  // by IP protocol number
	ether       *Ether
	arp         *Arp
	ip          *Ipv4
	icmp        *Icmp
	udp         *Udp
	recvq       chan []byte
	jobs        chan func()
	quit        chan struct{}
	done        chan struct{}
}

// Build the stack and announce the host address on the link.
func new_stack(cfg StackCfg, link Link) (*Stack, error) {

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	st := &Stack{
		cfg:         cfg,
		link:        link,
		link_protos: new_registry[MAC]("ether in"),
		ip_protos:   new_registry[IP]("ip in"),
		recvq:       make(chan []byte, RECVQLEN),
		jobs:        make(chan func(), JOBQLEN),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	st.ether = new_ether(st)
	st.arp = new_arp(st)
	st.ip = new_ipv4(st)
	st.icmp = new_icmp(st)
	st.udp = new_udp(st)

	log.info("stack: host %v %v mtu(%v)", cfg.ip, cfg.mac, cfg.mtu)

	st.arp.announce()

	return st, nil
}

func (st *Stack) start() {
	go st.run()
}

func (st *Stack) run() {

	defer close(st.done)

	for {
		select {
		case frame := <-st.recvq:
			st.ether.recv(frame)
		case job := <-st.jobs:
			// frames delivered before the job was submitted come first
			for n := len(st.recvq); n > 0; n-- {
				st.ether.recv(<-st.recvq)
			}
			job()
		case <-st.quit:
			return
		}
	}
}

// Stop the stack goroutine. Must follow start().
func (st *Stack) stop() {

	close(st.quit)
	<-st.done
}

// Queue a received frame. The stack takes ownership of frame.
func (st *Stack) deliver(frame []byte) {

	select {
	case st.recvq <- frame:
	case <-st.done:
	}
}

// Run job on the stack goroutine.
func (st *Stack) submit(job func()) {

	select {
	case st.jobs <- job:
	case <-st.done:
	}
}

// Run job on the stack goroutine and wait for it to finish. Returns false
// if the stack stopped before the job ran.
func (st *Stack) call(job func()) bool {

	finished := make(chan struct{})
	st.submit(func() {
		job()
		close(finished)
	})
	select {
	case <-finished:
		return true
	case <-st.done:
		return false
	}
}
