/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

import (
	"fmt"
	"golang.org/x/sys/unix"
	"os"
	"strings"
	"time"
	"unsafe"
)

// Link over a TAP device. Without IFF_NO_PI each frame would be preceded by
// a 4 byte packet info header, we ask for bare frames.
type TapLink struct {
	fd   *os.File
	name string
	mtu  int
}

func open_tap(name string, mtu int) (*TapLink, error) {

	type IfReq struct {
		name  [unix.IFNAMSIZ]byte
		flags uint16
		pad   [40 - unix.IFNAMSIZ - 2]byte
	}

	ufd, err := unix.Open("/dev/net/tun", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("cannot get tun device: %w", err)
	}

	ifreq := IfReq{flags: unix.IFF_TAP | unix.IFF_NO_PI}
	copy(ifreq.name[:unix.IFNAMSIZ-1], name)

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(ufd), uintptr(unix.TUNSETIFF), uintptr(unsafe.Pointer(&ifreq)))
	if errno != 0 {
		unix.Close(ufd)
		return nil, fmt.Errorf("cannot setup tap device, errno(%v)", errno)
	}

	err = unix.SetNonblock(ufd, true)
	if err != nil {
		unix.Close(ufd)
		return nil, fmt.Errorf("cannot make tap device non blocking: %w", err)
	}

	fd := os.NewFile(uintptr(ufd), "/dev/net/tun")
	if fd == nil {
		return nil, fmt.Errorf("invalid tap device")
	}

	// bring tap device up, addressing of the peer side is left to the admin

	ifcname := strings.Trim(string(ifreq.name[:]), "\x00")

	cmd, out, ret := shell("ip l set %v mtu %v", ifcname, mtu)
	if ret != 0 {
		fd.Close()
		return nil, fmt.Errorf("cannot set %v MTU: %v: %v", ifcname, cmd, out)
	}

	cmd, out, ret = shell("ip l set dev %v up", ifcname)
	if ret != 0 {
		fd.Close()
		return nil, fmt.Errorf("cannot bring %v up: %v: %v", ifcname, cmd, out)
	}

	log.info("tap: netifc %v mtu(%v)", ifcname, mtu)

	return &TapLink{fd, ifcname, mtu}, nil
}

func (tl *TapLink) write_frame(frame []byte) error {

	wlen, err := tl.fd.Write(frame)
	if err != nil {
		return fmt.Errorf("send to tap interface failed: %w", err)
	}
	if wlen != len(frame) {
		return fmt.Errorf("send to tap interface truncated: wlen(%v) len(%v)", wlen, len(frame))
	}
	return nil
}

func (tl *TapLink) receiver(st *Stack) {

	maxmsg := 3

	for {
		buf := make([]byte, ETHER_HDR_LEN+tl.mtu)
		rlen, err := tl.fd.Read(buf)
		if err != nil {
			if maxmsg > 0 {
				log.err("tap in: error reading from tap interface: %v", err)
				maxmsg--
			}
			time.Sleep(769 * time.Millisecond)
			continue
		}
		st.deliver(buf[:rlen])
	}
}

func (tl *TapLink) close() {
	tl.fd.Close()
}
