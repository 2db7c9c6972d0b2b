/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

const (
	ECHO    = 7
	DISCARD = 9
)

// RFC 862, return every datagram to where it came from.
func start_echo(st *Stack, port uint16) {

	st.udp.open(port, func(data []byte, src IP, sport uint16) {
		log.debug("echo: %v bytes from %v:%v", len(data), src, sport)
		st.udp.send_data(data, port, src, sport)
	})
	log.info("echo: listening on udp port %v", port)
}

// RFC 863
func start_discard(st *Stack, port uint16) {

	st.udp.open(port, func(data []byte, src IP, sport uint16) {
		log.debug("discard: %v bytes from %v:%v", len(data), src, sport)
	})
	log.info("discard: listening on udp port %v", port)
}
