/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

const (
	IPv4_MAX_PLD = 0xffff - IPv4_HDR_MIN_LEN
)

/* IPv4

Inbound datagrams are validated, stripped of link padding and of their header,
and dispatched by protocol number. There is no forwarding and no reassembly:
fragments are dropped, peers are expected not to fragment toward us.

Outbound datagrams larger than the link allows are fragmented. Each fragment
carries a complete header and the identification shared by the whole
datagram. The identification counter advances once per datagram.
*/

type Ipv4 struct {
	st    *Stack
	ident uint16
}

func new_ipv4(st *Stack) *Ipv4 {

	ip := &Ipv4{st: st}
	st.link_protos.add(ETHER_IPv4, ip)
	return ip
}

// Largest payload per fragment, a multiple of the fragment offset unit.
func (ip *Ipv4) max_frag_pld() int {
	return (ip.st.cfg.mtu - IPv4_HDR_MIN_LEN) &^ (IPv4_OFF_UNIT - 1)
}

func (ip *Ipv4) recv(pb *PktBuf, src MAC) {

	pkt := pb.bytes()

	if len(pkt) < IPv4_HDR_MIN_LEN {
		log.debug("ip in:   packet too short(%v) from %v, dropping", len(pkt), src)
		return
	}

	hdr_len := int(pkt[IP_VER]&0x0f) * 4
	pkt_len := int(be.Uint16(pkt[IPv4_LEN : IPv4_LEN+2]))

	if pkt[IP_VER]>>4 != 4 || hdr_len < IPv4_HDR_MIN_LEN || pkt_len > len(pkt) || pkt_len < hdr_len {
		log.debug("ip in:   invalid header ver/hdr/len(%02x/%v/%v) rcvlen(%v) from %v, dropping",
			pkt[IP_VER], hdr_len, pkt_len, len(pkt), src)
		return
	}

	if !csum_verify(pkt[:hdr_len], 0) {
		log.debug("ip in:   bad header checksum from %v, dropping", src)
		return
	}

	sip := IPFromSlice(pkt[IPv4_SRC : IPv4_SRC+4])
	dip := IPFromSlice(pkt[IPv4_DST : IPv4_DST+4])

	if dip != ip.st.cfg.ip {
		log.debug("ip in:   %v not for us, dropping", dip)
		return
	}

	if frag_field := be.Uint16(pkt[IPv4_FRAG : IPv4_FRAG+2]); frag_field&(IPv4_MF|IPv4_OFF_MASK) != 0 {
		log.debug("ip in:   fragment from %v, no reassembly, dropping", sip)
		return
	}

	if pkt_len < len(pkt) {
		pb.remove_padding(len(pkt) - pkt_len)
	}

	proto := pkt[IPv4_PROTO]
	pb.iphdr = pb.data

	if !ip.st.ip_protos.has(uint16(proto)) {
		log.debug("ip in:   unsupported protocol %v from %v, sending protocol unreachable",
			ip_proto_name(proto), sip)
		ip.st.icmp.unreachable(pb, sip, ICMPv4_PROT_UNREACH)
		return
	}

	pb.remove_header(hdr_len)
	ip.st.ip_protos.dispatch(uint16(proto), pb, sip)
}

// Send pb as the payload of one or more IP datagrams. The stack takes
// ownership of pb.
func (ip *Ipv4) send(pb *PktBuf, dst IP, proto byte) {

	if pb.len() > IPv4_MAX_PLD {
		log.err("ip out:  payload too large(%v) to %v, dropping", pb.len(), dst)
		return
	}

	max_pld := ip.max_frag_pld()
	ident := ip.ident
	ip.ident++

	if pb.len() <= max_pld {
		ip.send_frag(pb, dst, proto, ident, 0, false)
		return
	}

	pld := pb.bytes()
	for off := 0; off < len(pld); off += max_pld {
		end := min(off+max_pld, len(pld))
		ip.send_frag(pktbuf_from(pld[off:end]), dst, proto, ident, off, end < len(pld))
	}
}

// Prepend an IP header to pb and send it. The offset is in bytes.
func (ip *Ipv4) send_frag(pb *PktBuf, dst IP, proto byte, ident uint16, off int, mf bool) {

	pb.add_header(IPv4_HDR_MIN_LEN)
	pkt := pb.bytes()

	frag_field := uint16(off/IPv4_OFF_UNIT) & IPv4_OFF_MASK
	if mf {
		frag_field |= IPv4_MF
	}

	pkt[IP_VER] = 0x45
	pkt[IPv4_DSCP] = 0
	be.PutUint16(pkt[IPv4_LEN:IPv4_LEN+2], uint16(len(pkt)))
	be.PutUint16(pkt[IPv4_ID:IPv4_ID+2], ident)
	be.PutUint16(pkt[IPv4_FRAG:IPv4_FRAG+2], frag_field)
	pkt[IPv4_TTL] = ip.st.cfg.ttl
	pkt[IPv4_PROTO] = proto
	be.PutUint16(pkt[IPv4_CSUM:IPv4_CSUM+2], 0)
	copy(pkt[IPv4_SRC:IPv4_SRC+4], ip.st.cfg.ip.AsSlice4())
	copy(pkt[IPv4_DST:IPv4_DST+4], dst.AsSlice4())
	be.PutUint16(pkt[IPv4_CSUM:IPv4_CSUM+2], csum16(pkt[:IPv4_HDR_MIN_LEN]))

	ip.st.arp.send(pb, dst)
}
