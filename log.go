/* Copyright (c) 2018-2026 Waldemar Augustyn */

package main

import (
	"fmt"
	golog "log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	TRACE = iota
	DEBUG
	INFO
	ERROR
	FATAL
	NONE
)

var level_names = map[string]uint{
	"trace": TRACE,
	"debug": DEBUG,
	"info":  INFO,
	"error": ERROR,
	"fatal": FATAL,
	"none":  NONE,
}

/* Logging

Every line carries a one letter level prefix. Debug output is selected per
source file, eg. -debug arp,udp, or -debug all, and is prefixed with the file
and line of the caller. Packet traces are logged at TRACE level.
*/

type Log struct {
	level uint
	files map[string]bool // debug enabled source files, base names without extension
}

var log = Log{level: INFO}

func (l *Log) set(level uint, stamps bool) {

	l.level = level

	if stamps {
		golog.SetFlags(golog.Ltime | golog.Lmicroseconds)
	} else {
		golog.SetFlags(0)
	}
}

func parse_log_level(s string) (uint, error) {

	level, ok := level_names[strings.ToLower(s)]
	if !ok {
		return NONE, fmt.Errorf("invalid log level: %v", s)
	}
	return level, nil
}

// Enable debug in a comma separated list of source files.
func (l *Log) set_debug(list string) {

	l.files = make(map[string]bool)

	for _, fname := range strings.Split(list, ",") {
		fname = strings.TrimSpace(fname)
		if len(fname) == 0 {
			continue
		}
		l.files[src_name(fname)] = true
	}
}

// arp.go, /src/host/arp.go, arp -> arp
func src_name(path string) string {

	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (l *Log) debugging(name string) bool {
	return l.files[name] || l.files["all"]
}

func (l *Log) fatal(msg string, params ...interface{}) {

	golog.Printf("F "+msg, params...)
	select {
	case goexit <- "fatal":
		select {}
	default: // if goexit not ready, just exit
		os.Exit(1)
	}
}

func (l *Log) err(msg string, params ...interface{}) {

	if l.level <= ERROR {
		golog.Printf("E "+msg, params...)
	}
}

func (l *Log) info(msg string, params ...interface{}) {

	if l.level <= INFO {
		golog.Printf("I "+msg, params...)
	}
}

func (l *Log) debug(msg string, params ...interface{}) {

	if len(l.files) == 0 {
		return
	}

	_, path, line, ok := runtime.Caller(1)
	if !ok || !l.debugging(src_name(path)) {
		return
	}

	msg = fmt.Sprintf("%v(%v): ", filepath.Base(path), line) + msg
	golog.Printf("D "+msg, params...)
}

func (l *Log) trace(msg string, params ...interface{}) {

	if l.level <= TRACE {
		golog.Printf("T "+msg, params...)
	}
}
