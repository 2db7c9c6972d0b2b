/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

import (
	"fmt"
	"github.com/mdlayher/raw"
	"golang.org/x/sys/unix"
	"net"
	"time"
)

// Link over an AF_PACKET socket bound to an existing interface. Frames are
// read and written whole, ethernet header included.
type RawLink struct {
	con *raw.Conn
	mtu int
}

func open_raw(ifc *net.Interface, mtu int) (*RawLink, error) {

	con, err := raw.ListenPacket(ifc, unix.ETH_P_ALL, &raw.Config{})
	if err != nil {
		return nil, fmt.Errorf("cannot open raw socket on %v: %w", ifc.Name, err)
	}
	log.info("raw: attached to %v %v mtu(%v)", ifc.Name, ifc.HardwareAddr, mtu)
	return &RawLink{con, mtu}, nil
}

func (rl *RawLink) write_frame(frame []byte) error {

	if len(frame) < ETHER_HDR_LEN {
		return fmt.Errorf("frame too short: %v", len(frame))
	}
	dst := &raw.Addr{HardwareAddr: net.HardwareAddr(frame[ETHER_DST_MAC : ETHER_DST_MAC+6])}
	wlen, err := rl.con.WriteTo(frame, dst)
	if err != nil {
		return err
	}
	if wlen != len(frame) {
		return fmt.Errorf("write truncated: wlen(%v) len(%v)", wlen, len(frame))
	}
	return nil
}

func (rl *RawLink) receiver(st *Stack) {

	maxmsg := 3

	for {
		buf := make([]byte, ETHER_HDR_LEN+rl.mtu)
		rlen, _, err := rl.con.ReadFrom(buf)
		if err != nil {
			if maxmsg > 0 {
				log.err("raw in: read failed: %v", err)
				maxmsg--
			}
			time.Sleep(769 * time.Millisecond)
			continue
		}
		st.deliver(buf[:rlen])
	}
}

func (rl *RawLink) close() {
	rl.con.Close()
}
