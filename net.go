/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
)

type IP netip.Addr // IPv4 address only; Zone() must be ""

type MAC [6]byte

var (
	MAC_ZERO      = MAC{}
	MAC_BROADCAST = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

// Tests if the IP is equal to the zero-initialized value. This is distinct from
// the zero IP address 0.0.0.0.
func (ip IP) IsZero() bool {
	return ip == IP{}
}

func (ip IP) String() string {

	if ip.IsZero() {
		return "(uninitialized)"
	}
	return netip.Addr(ip).String()
}

func ParseIP(s string) (IP, error) {

	ip, err := netip.ParseAddr(s)
	if err != nil {
		return IP{}, err
	}
	if !ip.Is4() {
		return IP{}, errors.New("not an IPv4 address")
	}
	return IP(ip), nil
}

func MustParseIP(s string) IP {

	ip, err := ParseIP(s)
	if err != nil {
		log.fatal("invalid IP address: %v", s)
	}
	return ip
}

// The slice must be 4 bytes
func IPFromSlice(ip []byte) IP {

	if len(ip) != 4 {
		panic("invalid IPv4 address length")
	}
	return IP(netip.AddrFrom4([4]byte(ip)))
}

func (ip IP) As4() [4]byte {

	if ip.IsZero() {
		panic("uninitialized")
	}
	return netip.Addr(ip).As4()
}

func (ip IP) AsSlice4() []byte {

	ipb := ip.As4()
	return ipb[:]
}

func (mac MAC) String() string {
	return net.HardwareAddr(mac[:]).String()
}

func (mac MAC) IsBroadcast() bool {
	return mac == MAC_BROADCAST
}

func ParseMAC(s string) (MAC, error) {

	hw, err := net.ParseMAC(s)
	if err != nil {
		return MAC{}, err
	}
	if len(hw) != 6 {
		return MAC{}, fmt.Errorf("not an ethernet address: %v", s)
	}
	return MAC(hw), nil
}

// The slice must be 6 bytes
func MACFromSlice(mac []byte) MAC {

	if len(mac) != 6 {
		panic("invalid MAC address length")
	}
	return MAC(mac)
}
