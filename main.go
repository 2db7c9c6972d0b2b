/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
)

var goexit chan (string)

func shell(cmdline string, args ...interface{}) (string, string, int) {

	ret := 0
	cmd := fmt.Sprintf(cmdline, args...)
	runcmd := exec.Command("/bin/sh", "-c", cmd)
	runcmd.Dir = "/"
	out, err := runcmd.CombinedOutput()

	// find out exit code which should be non-negative
	if err != nil {
		ret = -1 // some other error, not an exit code
		if exiterr, ok := err.(*exec.ExitError); ok && exiterr.ExitCode() >= 0 {
			ret = exiterr.ExitCode()
		}
	}
	return cmd, strings.TrimSpace(string(out)), ret
}

// SIGUSR1 dumps the resolution table, SIGINT and SIGTERM stop the host.
func catch_signals(st *Stack) {

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

	for sig := range sigchan {
		if sig == syscall.SIGUSR1 {
			st.submit(func() { log.info("arp table:\n%v", st.arp.pp_table()) })
			continue
		}
		signal.Stop(sigchan)
		goexit <- "signal(" + sig.String() + ")"
		return
	}
}

type LinkDriver interface {
	Link
	receiver(st *Stack)
	close()
}

func open_link() LinkDriver {

	if cli.ifc != nil {
		link, err := open_raw(cli.ifc, cli.mtu)
		if err != nil {
			log.fatal("%v", err)
		}
		return link
	}

	link, err := open_tap(cli.tap_name, cli.mtu)
	if err != nil {
		log.fatal("%v", err)
	}
	return link
}

func start_services(st *Stack) {

	st.call(func() {
		if cli.echo_port != 0 {
			start_echo(st, uint16(cli.echo_port))
		}
		if cli.discard != 0 {
			start_discard(st, uint16(cli.discard))
		}
	})
}

func main() {

	goexit = make(chan string)

	parse_cli() // also initializes log

	log.info("START ipref host")

	link := open_link()

	st, err := new_stack(stack_cfg(), link)
	if err != nil {
		log.fatal("%v", err)
	}

	start_db(cli.datadir)
	db_restore_arp(st)

	st.start()

	go catch_signals(st)
	go link.receiver(st)

	start_services(st)

	go ethers_watcher(st, cli.ethers)
	tick_quit := make(chan struct{})
	tick_done := make(chan struct{})
	go arp_tick(st, tick_quit, tick_done)

	msg := <-goexit
	close(tick_quit)
	<-tick_done
	db_save_arp(st)
	st.stop()
	stop_db()
	link.close()
	log.info("STOP ipref host: %v", msg)
}
