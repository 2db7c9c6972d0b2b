/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

import (
	"fmt"
	bolt "go.etcd.io/bbolt"
	"os"
	"path/filepath"
	"time"
)

/* Persistent store and restore

The DB holds learned address resolution entries across restarts. Entries are
snapshotted periodically and on shutdown, each snapshot replacing the previous
one. On start up entries younger than the resolution timeout are restored into
the table, older ones are discarded.

The table belongs to the stack goroutine. Snapshots copy entries out through
Stack.call and write them to DB outside of the stack goroutine.

    bucket arp:  key ip(4)  val mac(6) stamp(8)  -- stamp in unix nanoseconds
*/

const (
	dbname  = "arp.db"
	arpbkt  = "arp"
	ARP_REC = 6 + 8
)

var db *bolt.DB

type ArpRec struct {
	ip    IP
	mac   MAC
	stamp time.Time
}

func open_db(dir string) (*bolt.DB, error) {

	err := os.MkdirAll(dir, 0775)
	if err != nil {
		return nil, fmt.Errorf("cannot create data directory %v: %w", dir, err)
	}

	dbpath := filepath.Join(dir, dbname)
	bdb, err := bolt.Open(dbpath, 0664, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("cannot open DB %v: %w", dbpath, err)
	}

	err = bdb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(arpbkt))
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("cannot create bucket %v: %w", arpbkt, err)
	}
	return bdb, nil
}

func start_db(dir string) {

	var err error

	db, err = open_db(dir)
	if err != nil {
		log.fatal("db: %v", err)
	}
	log.info("db: opened %v", db.Path())
}

func stop_db() {

	if db != nil {
		db.Close()
		db = nil
	}
}

func db_write_arp(bdb *bolt.DB, recs []ArpRec) error {

	return bdb.Update(func(tx *bolt.Tx) error {

		if err := tx.DeleteBucket([]byte(arpbkt)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		bkt, err := tx.CreateBucket([]byte(arpbkt))
		if err != nil {
			return err
		}

		for _, rec := range recs {
			val := make([]byte, ARP_REC) // must stay valid until commit
			copy(val[:6], rec.mac[:])
			be.PutUint64(val[6:], uint64(rec.stamp.UnixNano()))
			if err := bkt.Put(rec.ip.AsSlice4(), val); err != nil {
				return err
			}
		}
		return nil
	})
}

// Read entries not older than maxage.
func db_read_arp(bdb *bolt.DB, maxage time.Duration) ([]ArpRec, error) {

	var recs []ArpRec
	now := time.Now()

	err := bdb.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(arpbkt))
		if bkt == nil {
			return nil
		}
		return bkt.ForEach(func(key, val []byte) error {

			if len(key) != 4 || len(val) != ARP_REC {
				log.err("db: invalid arp record: key(%v) val(%v), discarding", len(key), len(val))
				return nil
			}
			rec := ArpRec{
				ip:    IPFromSlice(key),
				mac:   MACFromSlice(val[:6]),
				stamp: time.Unix(0, int64(be.Uint64(val[6:]))),
			}
			if now.Sub(rec.stamp) >= maxage {
				log.debug("db: arp record expired: %v %v, discarding", rec.ip, rec.mac)
				return nil
			}
			recs = append(recs, rec)
			return nil
		})
	})
	return recs, err
}

// Copy learned entries out of the stack and store them.
func db_save_arp(st *Stack) {

	if db == nil {
		return
	}

	var recs []ArpRec
	ran := st.call(func() {
		st.arp.table.foreach(func(ip IP, mac MAC, stamp time.Time) {
			recs = append(recs, ArpRec{ip, mac, stamp})
		})
	})
	if !ran {
		log.debug("db: stack stopped, arp table not saved")
		return
	}

	if err := db_write_arp(db, recs); err != nil {
		log.err("db: cannot save arp table: %v", err)
		return
	}
	log.debug("db: saved %v arp entries", len(recs))
}

// Restore into a stack that has not been started yet.
func db_restore_arp(st *Stack) {

	if db == nil {
		return
	}

	recs, err := db_read_arp(db, st.cfg.arp_timeout)
	if err != nil {
		log.err("db: cannot restore arp table: %v", err)
		return
	}
	for _, rec := range recs {
		st.arp.restore(rec.ip, rec.mac)
	}
	log.info("db: restored %v arp entries", len(recs))
}
