/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

import (
	"github.com/google/go-cmp/cmp"
	"testing"
	"time"
)

func TestDbArp(t *testing.T) {

	bdb, err := open_db(t.TempDir())
	if err != nil {
		t.Fatalf("%v", err)
	}
	defer bdb.Close()

	now := time.Now()
	other_ip := MustParseIP("192.168.84.10")
	other_mac := MAC{0x02, 0x00, 0x5e, 0x10, 0x00, 0x10}

	recs := []ArpRec{
		{peer_ip, peer_mac, now.Add(-time.Second)},
		{other_ip, other_mac, now.Add(-time.Hour)},
	}
	if err := db_write_arp(bdb, recs); err != nil {
		t.Fatalf("cannot write: %v", err)
	}

	// old records are not read back

	read, err := db_read_arp(bdb, time.Minute)
	if err != nil {
		t.Fatalf("cannot read: %v", err)
	}
	got := make(map[IP]MAC)
	for _, rec := range read {
		got[rec.ip] = rec.mac
		if !rec.stamp.Equal(now.Add(-time.Second)) {
			t.Errorf("stamp not preserved: %v", rec.stamp)
		}
	}
	if diff := cmp.Diff(map[IP]MAC{peer_ip: peer_mac}, got); diff != "" {
		t.Errorf("unexpected records (-want +got):\n%v", diff)
	}

	// every record keeps its own address and stamp

	third_ip := MustParseIP("192.168.84.11")
	third_mac := MAC{0x02, 0x00, 0x5e, 0x10, 0x00, 0x11}
	recs = append(recs, ArpRec{third_ip, third_mac, now.Add(-2 * time.Second)})
	if err := db_write_arp(bdb, recs); err != nil {
		t.Fatalf("cannot write: %v", err)
	}
	read, err = db_read_arp(bdb, 2*time.Hour)
	if err != nil {
		t.Fatalf("cannot read: %v", err)
	}
	stamps := make(map[IP]time.Time)
	got = make(map[IP]MAC)
	for _, rec := range read {
		got[rec.ip] = rec.mac
		stamps[rec.ip] = rec.stamp
	}
	want := map[IP]MAC{peer_ip: peer_mac, other_ip: other_mac, third_ip: third_mac}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected records (-want +got):\n%v", diff)
	}
	for _, rec := range recs {
		if !stamps[rec.ip].Equal(rec.stamp) {
			t.Errorf("%v: stamp not preserved: %v != %v", rec.ip, stamps[rec.ip], rec.stamp)
		}
	}

	// each write replaces the previous snapshot

	if err := db_write_arp(bdb, recs[1:]); err != nil {
		t.Fatalf("cannot write: %v", err)
	}
	read, err = db_read_arp(bdb, 2*time.Hour)
	if err != nil {
		t.Fatalf("cannot read: %v", err)
	}
	if len(read) != 1 || read[0].ip != other_ip {
		t.Errorf("previous snapshot not replaced: %v records", len(read))
	}
}

func TestDbSaveRestore(t *testing.T) {

	dir := t.TempDir()
	start_db(dir)
	defer stop_db()

	st, _ := new_host(t)
	st.ether.recv(arp_frame(t, ARP_REPLY, peer_mac, peer_ip, host_mac, host_ip, host_mac))
	st.arp.set_static(map[IP]MAC{MustParseIP("192.168.84.1"): {0x02, 0x00, 0x5e, 0x10, 0x00, 0x01}})

	st.start()
	db_save_arp(st)
	st.stop()

	rst, _ := new_host(t)
	db_restore_arp(rst)

	if mac, ok := rst.arp.lookup(peer_ip); !ok || mac != peer_mac {
		t.Errorf("learned entry not restored: %v %v", mac, ok)
	}
	if _, ok := rst.arp.lookup(MustParseIP("192.168.84.1")); ok {
		t.Errorf("static entry saved")
	}
}

// Saving through a stopped stack must not wipe the last snapshot.
func TestDbSaveStopped(t *testing.T) {

	start_db(t.TempDir())
	defer stop_db()

	st, _ := new_host(t)
	st.ether.recv(arp_frame(t, ARP_REPLY, peer_mac, peer_ip, host_mac, host_ip, host_mac))

	st.start()
	db_save_arp(st)
	st.stop()

	db_save_arp(st)

	recs, err := db_read_arp(db, time.Hour)
	if err != nil {
		t.Fatalf("cannot read: %v", err)
	}
	if len(recs) != 1 || recs[0].ip != peer_ip || recs[0].mac != peer_mac {
		t.Errorf("snapshot lost after save on stopped stack: %v records", len(recs))
	}
}
