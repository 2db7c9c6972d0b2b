/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

// Receivers of packets demultiplexed by protocol number. S is the source
// address type of the layer below: MAC for ethertypes, IP for IP protocols.
type Handler[S any] interface {
	recv(pb *PktBuf, src S)
}

type HandlerFunc[S any] func(pb *PktBuf, src S)

func (f HandlerFunc[S]) recv(pb *PktBuf, src S) {
	f(pb, src)
}

type Registry[S any] struct {
	name     string
	handlers map[uint16]Handler[S]
}

func new_registry[S any](name string) *Registry[S] {
	return &Registry[S]{name: name, handlers: make(map[uint16]Handler[S])}
}

// Register a handler for a protocol number, replacing any previous one.
func (r *Registry[S]) add(proto uint16, h Handler[S]) {

	if _, ok := r.handlers[proto]; ok {
		log.debug("%v: replacing handler for protocol %v", r.name, proto)
	}
	r.handlers[proto] = h
}

func (r *Registry[S]) has(proto uint16) bool {

	_, ok := r.handlers[proto]
	return ok
}

// Hand pb to the handler registered for proto. Returns false if there is none,
// pb is left untouched in that case.
func (r *Registry[S]) dispatch(proto uint16, pb *PktBuf, src S) bool {

	h, ok := r.handlers[proto]
	if !ok {
		return false
	}
	h.recv(pb, src)
	return true
}
