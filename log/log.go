// Package log wires github.com/btcsuite/btclog into a set of named
// subsystem loggers, the way btcnode/log.go wires it for the peer
// package's own logger, generalized to every package in this module.
package log

import (
	"io"
	"os"

	"github.com/btcsuite/btclog"
)

// Subsystem tags, one per package that logs.
const (
	Validator   = "VLDT"
	ChainSelect = "CSEL"
	BlockStore  = "BSTR"
	ChainStore  = "CSTR"
	StakeMod    = "SKMD"
	ChainState  = "CHST"
	Notify      = "NTFY"
)

var backend = btclog.NewBackend(os.Stdout)

// Disabled is handed to a subsystem that should not log at all.
var Disabled = btclog.Disabled

// New returns the named subsystem logger, logging to stdout at
// btclog.LevelInfo by default.
func New(subsystem string) btclog.Logger {
	l := backend.Logger(subsystem)
	l.SetLevel(btclog.LevelInfo)
	return l
}

// SetOutput redirects every future New call's backend to w — used by
// cmd/novacoind to switch to a log file once configuration is known.
// The file is written as given; no rotation is done.
func SetOutput(w io.Writer) {
	backend = btclog.NewBackend(w)
}

// SetLevel adjusts an already-created logger's level, e.g. from a
// "-debuglevel" flag.
func SetLevel(l btclog.Logger, level string) {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		return
	}
	l.SetLevel(lvl)
}
