/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

import (
	prng "math/rand" // we don't need crypto rng for time delays
	"time"
)

const (
	TIMER_TICK = 16811          // [ms] avg  16.811 [s]
	ARP_TICK   = TIMER_TICK * 4 // [ms] avg  67.244 [s]
	TIMER_FUZZ = 7
)

func fuzzed(dly, fuzz int) time.Duration {
	return time.Duration(dly-fuzz/2+prng.Intn(fuzz)) * time.Millisecond
}

// Periodically snapshot the resolution table until quit is closed.
func arp_tick(st *Stack, quit <-chan struct{}, done chan<- struct{}) {

	defer close(done)

	for {
		select {
		case <-time.After(fuzzed(ARP_TICK, ARP_TICK/TIMER_FUZZ)):
		case <-quit:
			return
		}

		db_save_arp(st)

		if log.debugging("timer") {
			var table string
			st.call(func() { table = st.arp.pp_table() })
			log.debug("timer: arp table:\n%v", table)
		}
	}
}
