/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

// Called on the stack goroutine with the datagram payload. The data is only
// valid for the duration of the call.
type UdpHandler func(data []byte, src IP, sport uint16)

type Udp struct {
	st    *Stack
	ports *Table[uint16, UdpHandler]
}

func new_udp(st *Stack) *Udp {

	udp := &Udp{
		st:    st,
		ports: new_table[uint16, UdpHandler]("udp ports", 0, TABLE_NO_TTL, nil),
	}
	st.ip_protos.add(UDP, udp)
	return udp
}

// Partial checksum of the pseudo header. The pseudo header is never part of
// the buffer, it only enters the sum.
func udp_pseudo_csum(src, dst IP, udp_len int) uint16 {

	var pseudo [UDP_PSEUDO_LEN]byte

	copy(pseudo[0:4], src.AsSlice4())
	copy(pseudo[4:8], dst.AsSlice4())
	pseudo[8] = 0
	pseudo[9] = UDP
	be.PutUint16(pseudo[10:12], uint16(udp_len))

	return csum_add(0, pseudo[:])
}

func (udp *Udp) recv(pb *PktBuf, src IP) {

	pkt := pb.bytes()

	if len(pkt) < UDP_HDR_LEN {
		log.debug("udp in:  packet too short(%v) from %v, dropping", len(pkt), src)
		return
	}

	udp_len := int(be.Uint16(pkt[UDP_LEN : UDP_LEN+2]))
	if udp_len < UDP_HDR_LEN || udp_len > len(pkt) {
		log.debug("udp in:  invalid length(%v) rcvlen(%v) from %v, dropping", udp_len, len(pkt), src)
		return
	}
	if udp_len < len(pkt) {
		pb.remove_padding(len(pkt) - udp_len)
		pkt = pb.bytes()
	}

	if !csum_verify(pkt, udp_pseudo_csum(src, udp.st.cfg.ip, len(pkt))) {
		log.debug("udp in:  bad checksum from %v, dropping", src)
		return
	}

	sport := be.Uint16(pkt[UDP_SPORT : UDP_SPORT+2])
	dport := be.Uint16(pkt[UDP_DPORT : UDP_DPORT+2])

	handler, ok := udp.ports.get(dport)
	if !ok {
		log.debug("udp in:  port %v closed, sending port unreachable to %v", dport, src)
		udp.st.icmp.unreachable(pb, src, ICMPv4_PORT_UNREACH)
		return
	}

	pb.remove_header(UDP_HDR_LEN)
	handler(pb.bytes(), src, sport)
}

// Send pb as the payload of a UDP datagram. The stack takes ownership of pb.
func (udp *Udp) send(pb *PktBuf, sport uint16, dst IP, dport uint16) {

	if pb.len() > IPv4_MAX_PLD-UDP_HDR_LEN {
		log.err("udp out: payload too large(%v) to %v:%v, dropping", pb.len(), dst, dport)
		return
	}

	pb.add_header(UDP_HDR_LEN)
	pkt := pb.bytes()

	be.PutUint16(pkt[UDP_SPORT:UDP_SPORT+2], sport)
	be.PutUint16(pkt[UDP_DPORT:UDP_DPORT+2], dport)
	be.PutUint16(pkt[UDP_LEN:UDP_LEN+2], uint16(len(pkt)))
	be.PutUint16(pkt[UDP_CSUM:UDP_CSUM+2], 0)
	csum := csum_add(udp_pseudo_csum(udp.st.cfg.ip, dst, len(pkt)), pkt) ^ 0xffff
	if csum == 0 {
		csum = 0xffff // zero means no checksum
	}
	be.PutUint16(pkt[UDP_CSUM:UDP_CSUM+2], csum)

	udp.st.ip.send(pb, dst, UDP)
}

// Copy data into a new datagram and send it.
func (udp *Udp) send_data(data []byte, sport uint16, dst IP, dport uint16) {
	udp.send(pktbuf_from(data), sport, dst, dport)
}

// Register handler for port. A handler already on the port is replaced.
func (udp *Udp) open(port uint16, handler UdpHandler) {

	if udp.ports.contains(port) {
		log.debug("udp: port %v already open, replacing handler", port)
	}
	udp.ports.set(port, handler)
}

func (udp *Udp) close(port uint16) {
	udp.ports.del(port)
}
