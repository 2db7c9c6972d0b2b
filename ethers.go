/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

import (
	"bufio"
	"bytes"
	"github.com/fsnotify/fsnotify"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DEBOUNCE = time.Duration(4765 * time.Millisecond) // [s] file event debounce time
)

/* Static neighbors

Static resolution entries come from a file in ethers(5) format, one link
address and IPv4 address per line:

    02:00:5e:10:00:01   192.168.84.1    # router

Host names are not supported in place of addresses. We watch the file for
changes and debounce file events before parsing: the timer is restarted on
every event so that a series of rapid events results in a single parse. Each
parse replaces all static entries.
*/

// parse file formatted as /etc/ethers
func parse_ethers_file(fname string, input io.Reader) map[IP]MAC {

	ents := make(map[IP]MAC)
	line_scanner := bufio.NewScanner(input)
	lno := 0

	for line_scanner.Scan() {

		lno += 1

		line, _, _ := strings.Cut(line_scanner.Text(), "#")
		toks := strings.Fields(line)

		if len(toks) == 0 {
			continue // empty or comment line
		}
		if len(toks) != 2 {
			log.err("ethers: %v(%v): expecting link address and IP address: %v", fname, lno, strings.TrimSpace(line))
			continue
		}

		mac, err := ParseMAC(toks[0])
		if err != nil {
			log.err("ethers: %v(%v): invalid link address: %v", fname, lno, toks[0])
			continue
		}
		if mac == MAC_ZERO || mac[0]&0x01 != 0 {
			log.err("ethers: %v(%v): non-unicast link address: %v", fname, lno, toks[0])
			continue
		}

		ip, err := ParseIP(toks[1])
		if err != nil {
			log.err("ethers: %v(%v): invalid IP address: %v", fname, lno, toks[1])
			continue
		}

		if prev, ok := ents[ip]; ok && prev != mac {
			log.err("ethers: %v(%v): duplicate IP address: %v, replacing %v", fname, lno, ip, prev)
		}
		ents[ip] = mac
	}

	return ents
}

func parse_ethers(st *Stack, path string, timer *time.Timer) {

	fname := filepath.Base(path)

	for range timer.C {

		wholefile, err := os.ReadFile(path)
		if err != nil {
			log.err("ethers: cannot read file %v: %v", fname, err)
			continue
		}
		log.debug("ethers: parsing file: %v", fname)
		ents := parse_ethers_file(fname, bytes.NewReader(wholefile))
		log.info("ethers: parsing file: %v: total number of static entries: %v", fname, len(ents))

		st.submit(func() { st.arp.set_static(ents) })
	}
}

// watch ethers file for static neighbor entries
func ethers_watcher(st *Stack, path string) {

	if len(path) == 0 {
		log.info("ethers: nothing to watch, exiting")
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.fatal("ethers: cannot setup file watcher: %v", err)
	}
	defer watcher.Close()

	fname := filepath.Base(path)
	timer := time.NewTimer(1) // parse immediately

	err = watcher.Add(path)
	if err != nil {
		log.fatal("ethers: cannot watch file %v: %v", fname, err)
	}
	go parse_ethers(st, path, timer)
	log.info("ethers: watching file: %v", fname)

	// watch file changes

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			log.debug("ethers: file changed: %v %v", filepath.Base(event.Name), event.Op)
			if event.Name != path {
				log.err("ethers: unexpected event from file: %v", filepath.Base(event.Name))
				continue
			}
			timer.Stop()
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				// editors replace files, re-install watcher (no need to remove first)
				if err := watcher.Add(path); err != nil {
					log.err("ethers: cannot re-watch file %v: %v", fname, err)
				}
			}
			timer.Reset(DEBOUNCE)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.err("ethers: file watch: %v", err)
		}
	}
}
