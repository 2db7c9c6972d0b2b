/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

const (
	// ICMPv4 types
	ICMPv4_ECHO_REPLY    = 0
	ICMPv4_DEST_UNREACH  = 3
	ICMPv4_ECHO_REQUEST  = 8
	ICMPv4_TIME_EXCEEDED = 11

	// ICMPv4 codes for ICMPv4_DEST_UNREACH
	ICMPv4_NET_UNREACH  = 0
	ICMPv4_HOST_UNREACH = 1
	ICMPv4_PROT_UNREACH = 2 // protocol unreachable
	ICMPv4_PORT_UNREACH = 3
	ICMPv4_FRAG_NEEDED  = 4
)

// Stateless. Answers echo requests and reports unreachable protocols and
// ports back to the sender.
type Icmp struct {
	st *Stack
}

func new_icmp(st *Stack) *Icmp {

	icmp := &Icmp{st}
	st.ip_protos.add(ICMP, icmp)
	return icmp
}

func (icmp *Icmp) recv(pb *PktBuf, src IP) {

	pkt := pb.bytes()

	if len(pkt) < ICMP_HDR_LEN {
		log.debug("icmp in: packet too short(%v) from %v, dropping", len(pkt), src)
		return
	}
	if !csum_verify(pkt, 0) {
		log.debug("icmp in: bad checksum from %v, dropping", src)
		return
	}

	if pkt[ICMP_TYPE] == ICMPv4_ECHO_REQUEST && pkt[ICMP_CODE] == 0 {
		icmp.echo_reply(pkt, src)
		return
	}

	log.debug("icmp in: ignoring type(%v) code(%v) from %v", pkt[ICMP_TYPE], pkt[ICMP_CODE], src)
}

// Echo req back to dst with the same identifier, sequence and data.
func (icmp *Icmp) echo_reply(req []byte, dst IP) {

	pb := pktbuf_from(req)
	pkt := pb.bytes()

	pkt[ICMP_TYPE] = ICMPv4_ECHO_REPLY
	pkt[ICMP_CODE] = 0
	be.PutUint16(pkt[ICMP_CSUM:ICMP_CSUM+2], 0)
	be.PutUint16(pkt[ICMP_CSUM:ICMP_CSUM+2], csum16(pkt))

	log.debug("icmp out: echo reply to %v id(%v) seq(%v)",
		dst, be.Uint16(pkt[ICMP_ID:ICMP_ID+2]), be.Uint16(pkt[ICMP_SEQ:ICMP_SEQ+2]))

	icmp.st.ip.send(pb, dst, ICMP)
}

// Report a received datagram as unreachable. The message quotes the original
// IP header and the first 8 bytes of its payload. pb must have come through
// ip recv so that its IP header is still in the buffer.
func (icmp *Icmp) unreachable(pb *PktBuf, dst IP, code byte) {

	if pb.iphdr < 0 || pb.iphdr > pb.data {
		log.err("icmp out: no ip header to quote in unreachable to %v, dropping", dst)
		return
	}

	orig := pb.pkt[pb.iphdr:pb.tail]
	quote := min(len(orig), int(orig[IP_VER]&0x0f)*4+ICMP_DATA)

	rpb := new_pktbuf(ICMP_HDR_LEN + quote)
	pkt := rpb.bytes()

	pkt[ICMP_TYPE] = ICMPv4_DEST_UNREACH
	pkt[ICMP_CODE] = code
	be.PutUint16(pkt[ICMP_CSUM:ICMP_CSUM+2], 0)
	be.PutUint16(pkt[ICMP_ID:ICMP_ID+2], 0)
	be.PutUint16(pkt[ICMP_SEQ:ICMP_SEQ+2], 0)
	copy(pkt[ICMP_HDR_LEN:], orig[:quote])
	be.PutUint16(pkt[ICMP_CSUM:ICMP_CSUM+2], csum16(pkt))

	log.debug("icmp out: dest unreach code(%v) to %v", code, dst)

	icmp.st.ip.send(rpb, dst, ICMP)
}
