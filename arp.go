/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

const (
	ARP_HW_ETHER = 1
	ARP_REQUEST  = 1
	ARP_REPLY    = 2
)

/* Address resolution

The resolution table maps IP addresses to link addresses. Any valid ARP
packet, request or reply, refreshes the entry of its sender. Entries expire
ARP_TIMEOUT after their last refresh.

A packet to an unresolved address is copied into the pending queue and a
request is broadcast. The queue holds at most one packet per address: while a
resolution is pending, further packets to the same address are dropped and no
further requests are sent. The pending entry is flushed when the sender shows
up in an ARP packet, or silently expires after ARP_PENDING which then permits
a fresh request.

Static entries from the ethers file take precedence and never expire.
*/

type Arp struct {
	st      *Stack
	table   *Table[IP, MAC]
	pending *Table[IP, *PktBuf]
	static  *Table[IP, MAC]
}

func new_arp(st *Stack) *Arp {

	arp := &Arp{
		st:      st,
		table:   new_table[IP, MAC]("arp", 0, st.cfg.arp_timeout, nil),
		pending: new_table[IP, *PktBuf]("arp pending", 0, st.cfg.arp_pending, (*PktBuf).dup),
		static:  new_table[IP, MAC]("arp static", 0, TABLE_NO_TTL, nil),
	}
	st.link_protos.add(ETHER_ARP, arp)
	return arp
}

func (arp *Arp) lookup(ip IP) (MAC, bool) {

	if mac, ok := arp.static.get(ip); ok {
		return mac, true
	}
	return arp.table.get(ip)
}

// Send an IP datagram to ip on the local link, resolving its link address
// first if necessary.
func (arp *Arp) send(pb *PktBuf, ip IP) {

	if mac, ok := arp.lookup(ip); ok {
		arp.st.ether.send(pb, mac, ETHER_IPv4)
		return
	}

	if arp.pending.contains(ip) {
		log.debug("arp out: resolution of %v in progress, dropping", ip)
		return
	}

	arp.pending.set(ip, pb)
	arp.request(ip)
}

func (arp *Arp) write_pkt(oper uint16, tha MAC, tpa IP) *PktBuf {

	pb := new_pktbuf(ARP_PKT_LEN)
	pkt := pb.bytes()

	be.PutUint16(pkt[ARP_HTYPE:ARP_HTYPE+2], ARP_HW_ETHER)
	be.PutUint16(pkt[ARP_PTYPE:ARP_PTYPE+2], ETHER_IPv4)
	pkt[ARP_HLEN] = 6
	pkt[ARP_PLEN] = 4
	be.PutUint16(pkt[ARP_OPER:ARP_OPER+2], oper)
	copy(pkt[ARP_SHA:ARP_SHA+6], arp.st.cfg.mac[:])
	copy(pkt[ARP_SPA:ARP_SPA+4], arp.st.cfg.ip.AsSlice4())
	copy(pkt[ARP_THA:ARP_THA+6], tha[:])
	copy(pkt[ARP_TPA:ARP_TPA+4], tpa.AsSlice4())

	return pb
}

// Broadcast a who-has request for ip.
func (arp *Arp) request(ip IP) {

	log.debug("arp out: who-has %v", ip)
	arp.st.ether.send(arp.write_pkt(ARP_REQUEST, MAC_ZERO, ip), MAC_BROADCAST, ETHER_ARP)
}

// Tell ip at mac that we are at our link address.
func (arp *Arp) reply(ip IP, mac MAC) {

	log.debug("arp out: %v is-at %v to %v", arp.st.cfg.ip, arp.st.cfg.mac, ip)
	arp.st.ether.send(arp.write_pkt(ARP_REPLY, mac, ip), mac, ETHER_ARP)
}

// Request our own address. Peers refresh their tables, a reply means someone
// else is using our address.
func (arp *Arp) announce() {
	arp.request(arp.st.cfg.ip)
}

func (arp *Arp) recv(pb *PktBuf, src MAC) {

	pkt := pb.bytes()

	if len(pkt) < ARP_PKT_LEN {
		log.debug("arp in:  packet too short(%v) from %v, dropping", len(pkt), src)
		return
	}

	oper := be.Uint16(pkt[ARP_OPER : ARP_OPER+2])

	if be.Uint16(pkt[ARP_HTYPE:ARP_HTYPE+2]) != ARP_HW_ETHER ||
		be.Uint16(pkt[ARP_PTYPE:ARP_PTYPE+2]) != ETHER_IPv4 ||
		pkt[ARP_HLEN] != 6 ||
		pkt[ARP_PLEN] != 4 ||
		(oper != ARP_REQUEST && oper != ARP_REPLY) {

		log.debug("arp in:  unsupported packet from %v, dropping", src)
		return
	}

	sip := IPFromSlice(pkt[ARP_SPA : ARP_SPA+4])
	sha := MACFromSlice(pkt[ARP_SHA : ARP_SHA+6])
	tip := IPFromSlice(pkt[ARP_TPA : ARP_TPA+4])

	if sip == arp.st.cfg.ip {
		log.err("arp in:  address conflict: %v claimed by %v", sip, sha)
		return
	}

	// address checks (RFC 5227) carry no sender address, nothing to learn
	if netip.Addr(sip).IsUnspecified() {
		if oper == ARP_REQUEST && tip == arp.st.cfg.ip {
			log.debug("arp in:  %v checking if our address is in use, answering", sha)
			arp.reply(sip, sha)
		}
		return
	}

	arp.table.set(sip, sha)

	if queued, ok := arp.pending.get(sip); ok {
		arp.pending.del(sip)
		log.debug("arp in:  %v is-at %v, flushing pending packet", sip, sha)
		arp.st.ether.send(queued, sha, ETHER_IPv4)
		return
	}

	if oper == ARP_REQUEST && tip == arp.st.cfg.ip {
		arp.reply(sip, sha)
	}
}

// Replace all static entries.
func (arp *Arp) set_static(ents map[IP]MAC) {

	arp.static.clear()
	for ip, mac := range ents {
		arp.static.set(ip, mac)
	}
	log.info("arp: installed %v static entries", len(ents))
}

// Insert an entry learned earlier, eg. restored from DB.
func (arp *Arp) restore(ip IP, mac MAC) {

	if ip == arp.st.cfg.ip {
		return
	}
	arp.table.set(ip, mac)
}

func (arp *Arp) pp_table() string {

	var sb strings.Builder

	sb.WriteString("===ARP TABLE BEGIN===\n")
	arp.static.foreach(func(ip IP, mac MAC, _ time.Time) {
		sb.WriteString(fmt.Sprintf("%v | %v | static\n", ip, mac))
	})
	arp.table.foreach(func(ip IP, mac MAC, stamp time.Time) {
		sb.WriteString(fmt.Sprintf("%v | %v | %v\n", ip, mac, stamp.Format(time.DateTime)))
	})
	sb.WriteString("===ARP TABLE  END ===\n")

	return sb.String()
}
