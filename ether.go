/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

type Ether struct {
	st *Stack
}

func new_ether(st *Stack) *Ether {
	return &Ether{st}
}

// Frame pb and hand it to the link driver. Payloads shorter than the ethernet
// minimum are padded with zeros.
func (eth *Ether) send(pb *PktBuf, dst MAC, etype uint16) {

	if pad := ETHER_MIN_PLD - pb.len(); pad > 0 {
		pb.add_padding(pad)
	}
	pb.add_header(ETHER_HDR_LEN)

	frame := pb.bytes()
	copy(frame[ETHER_DST_MAC:ETHER_DST_MAC+6], dst[:])
	copy(frame[ETHER_SRC_MAC:ETHER_SRC_MAC+6], eth.st.cfg.mac[:])
	be.PutUint16(frame[ETHER_TYPE:ETHER_TYPE+2], etype)

	if log.debugging("ether") {
		log.debug("ether out: %v", pp_frame(frame))
	}
	if log.level <= TRACE {
		log.trace("ether out: %v", pp_frame(frame))
		pp_raw("ether out: ", frame)
	}

	if err := eth.st.link.write_frame(frame); err != nil {
		log.err("ether out: write failed: %v", err)
	}
}

func (eth *Ether) recv(frame []byte) {

	if log.level <= TRACE {
		log.trace("ether in:  %v", pp_frame(frame))
		pp_raw("ether in:  ", frame)
	}

	if len(frame) < ETHER_HDR_LEN {
		log.debug("ether in: frame too short(%v), dropping", len(frame))
		return
	}

	dst := MACFromSlice(frame[ETHER_DST_MAC : ETHER_DST_MAC+6])
	src := MACFromSlice(frame[ETHER_SRC_MAC : ETHER_SRC_MAC+6])

	if dst != eth.st.cfg.mac && !dst.IsBroadcast() {
		return // not for us
	}
	if src == eth.st.cfg.mac {
		return // our own frame looped back
	}

	etype := be.Uint16(frame[ETHER_TYPE : ETHER_TYPE+2])
	pb := pktbuf_from(frame)
	pb.remove_header(ETHER_HDR_LEN)

	if log.debugging("ether") {
		log.debug("ether in:  %v", pp_frame(frame))
	}

	if !eth.st.link_protos.dispatch(etype, pb, src) {
		log.debug("ether in: unsupported type(%04x) from %v, dropping", etype, src)
	}
}
