/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

import (
	"bytes"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"net"
	"testing"
	"time"
)

var (
	host_ip  = MustParseIP("192.168.84.7")
	host_mac = MAC{0x02, 0x00, 0x5e, 0x10, 0x00, 0x07}
	peer_ip  = MustParseIP("192.168.84.9")
	peer_mac = MAC{0x02, 0x00, 0x5e, 0x10, 0x00, 0x09}
)

// Link capturing transmitted frames.
type TestLink struct {
	frames [][]byte
}

func (tl *TestLink) write_frame(frame []byte) error {

	tl.frames = append(tl.frames, bytes.Clone(frame))
	return nil
}

// Return and forget captured frames.
func (tl *TestLink) take() [][]byte {

	frames := tl.frames
	tl.frames = nil
	return frames
}

// Build a stack with a test link. Frames sent at construction are discarded.
func new_test_stack(t *testing.T, cfg StackCfg) (*Stack, *TestLink) {

	t.Helper()

	link := &TestLink{}
	st, err := new_stack(cfg, link)
	if err != nil {
		t.Fatalf("cannot build stack: %v", err)
	}
	link.take()
	return st, link
}

func new_host(t *testing.T) (*Stack, *TestLink) {
	return new_test_stack(t, default_cfg(host_ip, host_mac))
}

// Exchange frames between two stacks until both links are quiet.
func pump(a *Stack, alink *TestLink, b *Stack, blink *TestLink) {

	for len(alink.frames) > 0 || len(blink.frames) > 0 {
		for _, frame := range alink.take() {
			b.ether.recv(frame)
		}
		for _, frame := range blink.take() {
			a.ether.recv(frame)
		}
	}
}

func serialize(t *testing.T, lays ...gopacket.SerializableLayer) []byte {

	t.Helper()

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, lays...); err != nil {
		t.Fatalf("cannot serialize: %v", err)
	}
	return bytes.Clone(buf.Bytes())
}

func ether_layer(src, dst MAC, etype layers.EthernetType) *layers.Ethernet {

	return &layers.Ethernet{
		SrcMAC:       net.HardwareAddr(bytes.Clone(src[:])),
		DstMAC:       net.HardwareAddr(bytes.Clone(dst[:])),
		EthernetType: etype,
	}
}

func arp_frame(t *testing.T, oper uint16, sha MAC, spa IP, tha MAC, tpa IP, dst MAC) []byte {

	return serialize(t,
		ether_layer(sha, dst, layers.EthernetTypeARP),
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         oper,
			SourceHwAddress:   bytes.Clone(sha[:]),
			SourceProtAddress: spa.AsSlice4(),
			DstHwAddress:      bytes.Clone(tha[:]),
			DstProtAddress:    tpa.AsSlice4(),
		})
}

func ipv4_layer(src, dst IP, proto layers.IPProtocol) *layers.IPv4 {

	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Id:       0x1234,
		Protocol: proto,
		SrcIP:    net.IP(src.AsSlice4()),
		DstIP:    net.IP(dst.AsSlice4()),
	}
}

// IPv4 frame from peer to host.
func ip_frame(t *testing.T, proto layers.IPProtocol, pld []byte) []byte {

	return serialize(t,
		ether_layer(peer_mac, host_mac, layers.EthernetTypeIPv4),
		ipv4_layer(peer_ip, host_ip, proto),
		gopacket.Payload(pld))
}

// UDP frame from peer to host.
func udp_frame(t *testing.T, sport, dport uint16, data []byte) []byte {

	ip := ipv4_layer(peer_ip, host_ip, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	udp.SetNetworkLayerForChecksum(ip)

	return serialize(t,
		ether_layer(peer_mac, host_mac, layers.EthernetTypeIPv4),
		ip,
		udp,
		gopacket.Payload(data))
}

func decode(frame []byte) gopacket.Packet {
	return gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
}

// Decode an IPv4 frame, failing if it isn't one.
func decode_ipv4(t *testing.T, frame []byte) (*layers.Ethernet, *layers.IPv4) {

	t.Helper()

	pkt := decode(frame)
	eth, _ := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	ip, _ := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if eth == nil || ip == nil {
		t.Fatalf("not an IPv4 frame: %v", pp_frame(frame))
	}
	return eth, ip
}

func TestStackConfig(t *testing.T) {

	link := &TestLink{}

	bad := []func(cfg *StackCfg){
		func(cfg *StackCfg) { cfg.ip = IP{} },
		func(cfg *StackCfg) { cfg.mac = MAC_ZERO },
		func(cfg *StackCfg) { cfg.mac = MAC_BROADCAST },
		func(cfg *StackCfg) { cfg.mtu = 67 },
		func(cfg *StackCfg) { cfg.ttl = 0 },
		func(cfg *StackCfg) { cfg.arp_timeout = 0 },
		func(cfg *StackCfg) { cfg.arp_pending = -time.Second },
	}

	for ix, modify := range bad {
		cfg := default_cfg(host_ip, host_mac)
		modify(&cfg)
		if _, err := new_stack(cfg, link); err == nil {
			t.Errorf("config %v: expected error", ix)
		}
	}

	if len(link.frames) != 0 {
		t.Errorf("invalid stack sent %v frames", len(link.frames))
	}
}

func TestStackRun(t *testing.T) {

	st, link := new_host(t)
	st.start()

	// frames delivered before a call are processed before it

	var frames [][]byte
	for ix := 0; ix < 50; ix++ {

		st.deliver(arp_frame(t, ARP_REQUEST, peer_mac, peer_ip, MAC_ZERO, host_ip, MAC_BROADCAST))

		var mac MAC
		var ok bool
		if !st.call(func() {
			frames = link.take()
			mac, ok = st.arp.lookup(peer_ip)
			st.arp.table.del(peer_ip)
		}) {
			t.Fatalf("call did not run on a running stack")
		}

		if len(frames) != 1 {
			t.Fatalf("round %v: expected one reply, got %v frames", ix, len(frames))
		}
		if !ok || mac != peer_mac {
			t.Fatalf("round %v: peer not learned: %v %v", ix, mac, ok)
		}
	}

	st.stop()

	// no blocking after stop

	st.submit(func() { t.Errorf("job run after stop") })
	st.deliver(frames[0])
	if st.call(func() { t.Errorf("call run after stop") }) {
		t.Errorf("call reported running after stop")
	}
}

func TestRegistry(t *testing.T) {

	reg := new_registry[IP]("test")

	var got []string
	reg.add(253, HandlerFunc[IP](func(pb *PktBuf, src IP) { got = append(got, "first") }))
	reg.add(253, HandlerFunc[IP](func(pb *PktBuf, src IP) { got = append(got, "second") }))

	if !reg.has(253) || reg.has(254) {
		t.Errorf("unexpected registry content")
	}
	if !reg.dispatch(253, new_pktbuf(0), peer_ip) {
		t.Errorf("dispatch to registered protocol failed")
	}
	if reg.dispatch(254, new_pktbuf(0), peer_ip) {
		t.Errorf("dispatch to unregistered protocol succeeded")
	}
	if len(got) != 1 || got[0] != "second" {
		t.Errorf("unexpected handler calls: %v", got)
	}
}

func TestEtherRecv(t *testing.T) {

	st, link := new_host(t)

	var got int
	st.link_protos.add(0x88b5, HandlerFunc[MAC](func(pb *PktBuf, src MAC) {
		if src != peer_mac {
			t.Errorf("unexpected source: %v", src)
		}
		got++
	}))

	other := MAC{0x02, 0x00, 0x5e, 0x10, 0x00, 0x42}
	pld := make([]byte, ETHER_MIN_PLD)

	st.ether.recv(serialize(t, ether_layer(peer_mac, host_mac, 0x88b5), gopacket.Payload(pld)))
	st.ether.recv(serialize(t, ether_layer(peer_mac, MAC_BROADCAST, 0x88b5), gopacket.Payload(pld)))
	st.ether.recv(serialize(t, ether_layer(peer_mac, other, 0x88b5), gopacket.Payload(pld)))
	st.ether.recv(serialize(t, ether_layer(host_mac, MAC_BROADCAST, 0x88b5), gopacket.Payload(pld)))
	st.ether.recv(serialize(t, ether_layer(peer_mac, host_mac, 0x88b6), gopacket.Payload(pld)))
	st.ether.recv(host_mac[:])

	if got != 2 {
		t.Errorf("expected 2 frames delivered, got %v", got)
	}
	if len(link.frames) != 0 {
		t.Errorf("unexpected frames sent: %v", len(link.frames))
	}
}

func TestEtherPadding(t *testing.T) {

	st, link := new_host(t)

	st.ether.send(pktbuf_from([]byte("short")), peer_mac, 0x88b5)

	frames := link.take()
	if len(frames) != 1 {
		t.Fatalf("expected one frame, got %v", len(frames))
	}
	frame := frames[0]
	if len(frame) != ETHER_HDR_LEN+ETHER_MIN_PLD {
		t.Errorf("frame not padded: %v", len(frame))
	}
	if !bytes.Equal(frame[ETHER_HDR_LEN:ETHER_HDR_LEN+5], []byte("short")) ||
		!bytes.Equal(frame[ETHER_HDR_LEN+5:], make([]byte, ETHER_MIN_PLD-5)) {
		t.Errorf("unexpected payload: %x", frame[ETHER_HDR_LEN:])
	}
	if MACFromSlice(frame[ETHER_DST_MAC:ETHER_DST_MAC+6]) != peer_mac ||
		MACFromSlice(frame[ETHER_SRC_MAC:ETHER_SRC_MAC+6]) != host_mac ||
		be.Uint16(frame[ETHER_TYPE:ETHER_TYPE+2]) != 0x88b5 {
		t.Errorf("unexpected header: %v", pp_frame(frame))
	}
}

// Two hosts on one segment: resolution, udp echo, and icmp echo end to end.
func TestTwoHosts(t *testing.T) {

	a, alink := new_test_stack(t, default_cfg(host_ip, host_mac))
	b, blink := new_test_stack(t, default_cfg(peer_ip, peer_mac))

	start_echo(b, ECHO)

	var got []byte
	var from IP
	a.udp.open(1045, func(data []byte, src IP, sport uint16) {
		if sport != ECHO {
			t.Errorf("unexpected source port: %v", sport)
		}
		got = bytes.Clone(data)
		from = src
	})

	a.udp.send_data([]byte("hello, world"), 1045, peer_ip, ECHO)

	// the datagram waits for resolution

	if frames := alink.frames; len(frames) != 1 || be.Uint16(frames[0][ETHER_TYPE:ETHER_TYPE+2]) != ETHER_ARP {
		t.Fatalf("expected arp request")
	}

	pump(a, alink, b, blink)

	if string(got) != "hello, world" || from != peer_ip {
		t.Errorf("unexpected echo: %q from %v", got, from)
	}
	if mac, ok := a.arp.lookup(peer_ip); !ok || mac != peer_mac {
		t.Errorf("a did not learn b: %v %v", mac, ok)
	}
	if mac, ok := b.arp.lookup(host_ip); !ok || mac != host_mac {
		t.Errorf("b did not learn a: %v %v", mac, ok)
	}

	// big datagram is fragmented by a, b drops fragments

	got = nil
	a.udp.send_data(make([]byte, 4000), 1045, peer_ip, ECHO)
	if len(alink.frames) != 3 {
		t.Errorf("expected 3 fragments, got %v", len(alink.frames))
	}
	pump(a, alink, b, blink)
	if got != nil {
		t.Errorf("fragmented datagram delivered")
	}
}

// Datagram to a closed port on an unresolved host comes back as port
// unreachable.
func TestTwoHostsPortUnreachable(t *testing.T) {

	a, alink := new_test_stack(t, default_cfg(host_ip, host_mac))
	b, blink := new_test_stack(t, default_cfg(peer_ip, peer_mac))

	var got []byte
	a.ip_protos.add(ICMP, HandlerFunc[IP](func(pb *PktBuf, src IP) {
		if src != peer_ip {
			t.Errorf("unexpected source: %v", src)
		}
		got = bytes.Clone(pb.bytes())
	}))

	a.udp.send_data([]byte("anyone there?"), 1045, peer_ip, ECHO)

	var seen []uint16
	for len(alink.frames) > 0 || len(blink.frames) > 0 {
		for _, frame := range alink.take() {
			seen = append(seen, be.Uint16(frame[ETHER_TYPE:ETHER_TYPE+2]))
			b.ether.recv(frame)
		}
		for _, frame := range blink.take() {
			seen = append(seen, be.Uint16(frame[ETHER_TYPE:ETHER_TYPE+2]))
			a.ether.recv(frame)
		}
	}

	// request, reply, datagram, port unreachable

	if len(seen) != 4 || seen[0] != ETHER_ARP || seen[1] != ETHER_ARP || seen[2] != ETHER_IPv4 || seen[3] != ETHER_IPv4 {
		t.Errorf("unexpected frame sequence: %04x", seen)
	}
	if len(got) < ICMP_HDR_LEN+IPv4_HDR_MIN_LEN+UDP_HDR_LEN ||
		got[ICMP_TYPE] != ICMPv4_DEST_UNREACH || got[ICMP_CODE] != ICMPv4_PORT_UNREACH {
		t.Fatalf("expected port unreachable, got: %x", got)
	}
	udp := got[ICMP_HDR_LEN+IPv4_HDR_MIN_LEN:]
	if be.Uint16(udp[UDP_SPORT:UDP_SPORT+2]) != 1045 || be.Uint16(udp[UDP_DPORT:UDP_DPORT+2]) != ECHO {
		t.Errorf("unexpected quoted ports: %x", udp[:UDP_HDR_LEN])
	}
}
