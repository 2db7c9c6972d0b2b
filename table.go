/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

import (
	"github.com/hashicorp/golang-lru/v2/expirable"
	"time"
)

/* Lookup tables

A Table maps keys to values with an optional time to live. The TTL is counted
from the last write: setting an existing key replaces its value and restarts
its lifetime, reading does not extend it. An expired entry is never returned.
A TTL of 0 disables expiry.

Values are either moved in, in which case the table stores what it is given,
or copied in through a copy function, in which case the caller keeps full
ownership of what it passed and may reuse it as soon as set() returns.
*/

const (
	TABLE_NO_TTL = time.Duration(0)
)

type TableEnt[V any] struct {
	val   V
	stamp time.Time // last write
}

type Table[K comparable, V any] struct {
	name string
	ttl  time.Duration
	copy func(V) V // nil means move-in
	ents *expirable.LRU[K, TableEnt[V]]
}

// Size limits the number of entries, oldest writes are evicted first. A size
// of 0 means unlimited.
func new_table[K comparable, V any](name string, size int, ttl time.Duration, copy_fn func(V) V) *Table[K, V] {

	if ttl < 0 {
		panic("negative ttl")
	}
	return &Table[K, V]{
		name: name,
		ttl:  ttl,
		copy: copy_fn,
		ents: expirable.NewLRU[K, TableEnt[V]](size, nil, ttl),
	}
}

func (t *Table[K, V]) get(key K) (val V, ok bool) {

	ent, ok := t.ents.Peek(key)
	if ok {
		val = ent.val
	}
	return
}

func (t *Table[K, V]) set(key K, val V) {

	if t.copy != nil {
		val = t.copy(val)
	}
	t.ents.Add(key, TableEnt[V]{val, time.Now()})
}

func (t *Table[K, V]) del(key K) {
	t.ents.Remove(key)
}

func (t *Table[K, V]) contains(key K) bool {

	_, ok := t.ents.Peek(key)
	return ok
}

func (t *Table[K, V]) len() int {

	num := 0
	t.foreach(func(K, V, time.Time) { num++ })
	return num
}

func (t *Table[K, V]) clear() {

	log.debug("%v: clearing %v entries", t.name, t.ents.Len())
	t.ents.Purge()
}

// Visit live entries, oldest write first. The visitor must not modify the table.
func (t *Table[K, V]) foreach(visit func(key K, val V, stamp time.Time)) {

	for _, key := range t.ents.Keys() {
		if ent, ok := t.ents.Peek(key); ok {
			visit(key, ent.val, ent.stamp)
		}
	}
}
