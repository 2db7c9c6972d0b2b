/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"golang.org/x/net/ipv4"
	"strings"
)

const (
	ICMP = 1
	TCP  = 6
	UDP  = 17
	// ETHER types
	ETHER_IPv4 = 0x0800
	ETHER_ARP  = 0x0806
	// ETHER offsets
	ETHER_DST_MAC = 0
	ETHER_SRC_MAC = 6
	ETHER_TYPE    = 12
	ETHER_HDR_LEN = 6 + 6 + 2
	ETHER_MIN_PLD = 46 // min payload, shorter frames are padded
	ETHER_MTU     = 1500
	// ARP offsets
	ARP_HTYPE   = 0
	ARP_PTYPE   = 2
	ARP_HLEN    = 4
	ARP_PLEN    = 5
	ARP_OPER    = 6
	ARP_SHA     = 8
	ARP_SPA     = 14
	ARP_THA     = 18
	ARP_TPA     = 24
	ARP_PKT_LEN = 28
	// IPv4 header offsets
	IP_VER           = 0
	IPv4_DSCP        = 1
	IPv4_LEN         = 2
	IPv4_ID          = 4
	IPv4_FRAG        = 6
	IPv4_TTL         = 8
	IPv4_PROTO       = 9
	IPv4_CSUM        = 10
	IPv4_SRC         = 12
	IPv4_DST         = 16
	IPv4_HDR_MIN_LEN = 20
	// IPv4 fragment field
	IPv4_DF       = 0x4000
	IPv4_MF       = 0x2000
	IPv4_OFF_MASK = 0x1fff
	IPv4_OFF_UNIT = 8
	// UDP offsets
	UDP_SPORT      = 0
	UDP_DPORT      = 2
	UDP_LEN        = 4
	UDP_CSUM       = 6
	UDP_HDR_LEN    = 8
	UDP_PSEUDO_LEN = 12
	// ICMP offsets
	ICMP_TYPE    = 0
	ICMP_CODE    = 1
	ICMP_CSUM    = 2
	ICMP_ID      = 4
	ICMP_SEQ     = 6
	ICMP_HDR_LEN = 8
	ICMP_DATA    = 8
)

const (
	// room reserved in front of data for headers pushed on the way down:
	// icmp + ip + ether, or udp + ip + ether
	PKT_HEADROOM = 64
	PKT_TAILROOM = ETHER_MIN_PLD
)

var be = binary.BigEndian

/* Packet buffers

A PktBuf owns its byte slice. Valid data lies between data and tail. Headers
are pushed and popped at the front by moving data, padding is added and
removed at the back by moving tail. Removed header bytes remain in the slice
until overwritten which lets upper layers re-expose a header they were handed
past, eg. ICMP quoting the IP header of a received datagram via iphdr.

A buffer passed to a send path belongs to the stack from then on. Anything
that needs to hold on to a packet past the call keeps a dup().
*/

type PktBuf struct {
	pkt   []byte
	data  int // the beginning of the packet data; all data before should be ignored
	tail  int // the end of the packet data; all data after should be ignored
	iphdr int // offset of the IP header of a received datagram, -1 if none
}

func new_pktbuf(size int) *PktBuf {

	pb := &PktBuf{
		pkt:   make([]byte, PKT_HEADROOM+size+PKT_TAILROOM),
		data:  PKT_HEADROOM,
		iphdr: -1,
	}
	pb.tail = pb.data + size
	return pb
}

// New buffer holding a copy of b.
func pktbuf_from(b []byte) *PktBuf {

	pb := new_pktbuf(len(b))
	copy(pb.pkt[pb.data:pb.tail], b)
	return pb
}

func (pb *PktBuf) len() int {
	return pb.tail - pb.data
}

// Slice refers to pb.pkt.
func (pb *PktBuf) bytes() []byte {
	return pb.pkt[pb.data:pb.tail]
}

// Deep copy, including headroom so that removed headers can be re-exposed.
func (pb *PktBuf) dup() *PktBuf {

	pbc := &PktBuf{
		pkt:   make([]byte, len(pb.pkt)),
		data:  pb.data,
		tail:  pb.tail,
		iphdr: pb.iphdr,
	}
	copy(pbc.pkt, pb.pkt)
	return pbc
}

// Push n bytes of header space in front of data. The bytes are not cleared.
// The buffer is reallocated if there is not enough headroom.
func (pb *PktBuf) add_header(n int) {

	if n < 0 {
		panic("negative header length")
	}
	if pb.data < n {
		grow := n - pb.data + PKT_HEADROOM
		pkt := make([]byte, len(pb.pkt)+grow)
		copy(pkt[grow:], pb.pkt)
		pb.pkt = pkt
		pb.data += grow
		pb.tail += grow
		if pb.iphdr >= 0 {
			pb.iphdr += grow
		}
	}
	pb.data -= n
}

func (pb *PktBuf) remove_header(n int) {

	if n < 0 || n > pb.len() {
		panic(fmt.Sprintf("pkt: cannot remove header(%v) from data/tail(%v/%v)", n, pb.data, pb.tail))
	}
	pb.data += n
}

// Append n zero bytes at the tail.
func (pb *PktBuf) add_padding(n int) {

	if n < 0 {
		panic("negative padding length")
	}
	if len(pb.pkt)-pb.tail < n {
		pkt := make([]byte, pb.tail+n)
		copy(pkt, pb.pkt[:pb.tail])
		pb.pkt = pkt
	}
	clear(pb.pkt[pb.tail : pb.tail+n])
	pb.tail += n
}

func (pb *PktBuf) remove_padding(n int) {

	if n < 0 || n > pb.len() {
		panic(fmt.Sprintf("pkt: cannot remove padding(%v) from data/tail(%v/%v)", n, pb.data, pb.tail))
	}
	pb.tail -= n
}

// -- checksum -----------------------------------------------------------------

// Add buffer bytes to csum. Input csum and result are not inverted. Only the
// last buffer of a series may have odd length, its last byte is padded with
// zero.
func csum_add(csum uint16, buf []byte) uint16 {

	sum := uint32(csum)
	even := len(buf) &^ 1

	for ix := 0; ix < even; ix += 2 {
		sum += uint32(be.Uint16(buf[ix : ix+2]))
	}
	if even != len(buf) {
		sum += uint32(buf[even]) << 8
	}

	for sum > 0xffff {
		sum = (sum & 0xffff) + (sum >> 16)
	}

	return uint16(sum)
}

// Internet checksum of buf, ready to be stored in a header.
func csum16(buf []byte) uint16 {
	return csum_add(0, buf) ^ 0xffff
}

// Verify a checksummed buf, checksum field included. Bytes not present in buf,
// such as a pseudo header, are passed in as a partial sum.
func csum_verify(buf []byte, partial uint16) bool {
	return csum_add(partial, buf) == 0xffff
}

// -- pretty print -------------------------------------------------------------

func ip_proto_name(proto byte) string {

	switch proto {
	case TCP:
		return "TCP"
	case UDP:
		return "UDP"
	case ICMP:
		return "ICMP"
	}
	return fmt.Sprintf("%v", proto)
}

func arp_oper_name(oper uint16) string {

	switch oper {
	case ARP_REQUEST:
		return "REQUEST"
	case ARP_REPLY:
		return "REPLY"
	}
	return fmt.Sprintf("oper(%v)", oper)
}

// One line summary of an ethernet frame.
func pp_frame(frame []byte) (ss string) {

	// ETH  02:00:00:00:00:01  ff:ff:ff:ff:ff:ff  ARP REQUEST  10.0.0.1  who-has 10.0.0.2
	// ETH  02:00:00:00:00:01  02:00:00:00:00:02  IPv4(UDP)  10.0.0.1  10.0.0.2  len(36) id(0) off(0)

	if len(frame) < ETHER_HDR_LEN {
		return fmt.Sprintf("ETH  short  len(%v)", len(frame))
	}

	ss = fmt.Sprintf("ETH  %v  %v  ",
		MACFromSlice(frame[ETHER_SRC_MAC:ETHER_SRC_MAC+6]),
		MACFromSlice(frame[ETHER_DST_MAC:ETHER_DST_MAC+6]))
	pkt := frame[ETHER_HDR_LEN:]

	switch etype := be.Uint16(frame[ETHER_TYPE : ETHER_TYPE+2]); etype {

	case ETHER_ARP:

		if len(pkt) < ARP_PKT_LEN {
			return ss + "ARP  short"
		}
		oper := be.Uint16(pkt[ARP_OPER : ARP_OPER+2])
		ss += fmt.Sprintf("ARP %v  %v  ", arp_oper_name(oper), IPFromSlice(pkt[ARP_SPA:ARP_SPA+4]))
		if oper == ARP_REQUEST {
			ss += fmt.Sprintf("who-has %v", IPFromSlice(pkt[ARP_TPA:ARP_TPA+4]))
		} else {
			ss += fmt.Sprintf("is-at %v", MACFromSlice(pkt[ARP_SHA:ARP_SHA+6]))
		}

	case ETHER_IPv4:

		if len(pkt) < IPv4_HDR_MIN_LEN || pkt[IP_VER]&0xf0 != 0x40 {
			return ss + "IPv4  invalid"
		}
		frag_field := be.Uint16(pkt[IPv4_FRAG : IPv4_FRAG+2])
		flags := ""
		if frag_field&IPv4_MF != 0 {
			flags += " MF"
		}
		ss += fmt.Sprintf("IPv4(%v)%v  %v  %v  len(%v) id(%v) off(%v)",
			ip_proto_name(pkt[IPv4_PROTO]),
			flags,
			IPFromSlice(pkt[IPv4_SRC:IPv4_SRC+4]),
			IPFromSlice(pkt[IPv4_DST:IPv4_DST+4]),
			be.Uint16(pkt[IPv4_LEN:IPv4_LEN+2]),
			be.Uint16(pkt[IPv4_ID:IPv4_ID+2]),
			int(frag_field&IPv4_OFF_MASK)*IPv4_OFF_UNIT)

		if tran := pp_tran(pkt); tran != "" {
			ss += "  " + tran
		}

	default:
		ss += fmt.Sprintf("type(%04x)  len(%v)", etype, len(pkt))
	}
	return
}

// Transport header summary of an IPv4 datagram, empty if not available.
func pp_tran(pkt []byte) string {

	hdr_len := int(pkt[IP_VER]&0x0f) * 4
	frag_field := be.Uint16(pkt[IPv4_FRAG : IPv4_FRAG+2])
	if frag_field&IPv4_OFF_MASK != 0 || len(pkt) < hdr_len {
		return ""
	}
	l4 := pkt[hdr_len:]

	switch pkt[IPv4_PROTO] {

	case UDP:

		// UDP  1045  7  len(12) csum: 8e1f

		if len(l4) < UDP_HDR_LEN {
			return ""
		}
		return fmt.Sprintf("UDP  %v  %v  len(%v) csum: %04x",
			be.Uint16(l4[UDP_SPORT:UDP_SPORT+2]),
			be.Uint16(l4[UDP_DPORT:UDP_DPORT+2]),
			be.Uint16(l4[UDP_LEN:UDP_LEN+2]),
			be.Uint16(l4[UDP_CSUM:UDP_CSUM+2]))

	case ICMP:

		// ICMP  echo request(0)  id(7) seq(3)

		if len(l4) < ICMP_HDR_LEN {
			return ""
		}
		return fmt.Sprintf("ICMP  %v(%v)  id(%v) seq(%v)",
			ipv4.ICMPType(l4[ICMP_TYPE]),
			l4[ICMP_CODE],
			be.Uint16(l4[ICMP_ID:ICMP_ID+2]),
			be.Uint16(l4[ICMP_SEQ:ICMP_SEQ+2]))
	}
	return ""
}

func pp_raw(pfx string, frame []byte) {

	// RAW  45 00 00 74 2e 52 40 00 40 11 d0 b6 0a fb 1b 6f c0 a8 54 5e 04 15 04 15 00 ..

	const maxraw = 128 + 32
	var sb strings.Builder

	sb.WriteString(pfx)
	sb.WriteString("RAW ")
	for ii := 0; ii < len(frame); ii++ {
		if ii < maxraw {
			sb.WriteString(" ")
			sb.WriteString(hex.EncodeToString(frame[ii : ii+1]))
		} else {
			sb.WriteString("  ..")
			break
		}
	}
	log.trace("%v", sb.String())
}
