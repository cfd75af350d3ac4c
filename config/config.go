// Package config is the ambient configuration layer: command-line
// flags layered over an optional TOML file layered over built-in
// defaults, the way cmd/import/import.go's flat flag.String/flag.Bool
// set works, generalized with a file underneath since this core runs
// as a long-lived daemon rather than a one-shot import job.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds every setting cmd/novacoind needs. Zero value is not
// valid; use Default() then Load to fill it in.
type Config struct {
	DataDir     string `toml:"datadir"`
	TestNet     bool   `toml:"testnet"`
	RPCDisabled bool   `toml:"-"` // always true: no RPC server, per non-goals
	DebugLevel  string `toml:"debuglevel"`
	LogFile     string `toml:"logfile"`
	RLimit      uint64 `toml:"rlimit"`

	BlockNotify  string `toml:"blocknotify"`
	ExplorerDSN  string `toml:"explorer_dsn"`

	CheckpointStrict bool `toml:"checkpoint_strict"`
}

// Default returns the built-in defaults, the base of the flag > file >
// default precedence chain.
func Default() Config {
	return Config{
		DataDir:    "./data",
		DebugLevel: "info",
		RLimit:     1024,
	}
}

// Load applies, in increasing precedence, the built-in default, an
// optional TOML file, then command-line flags, mirroring the
// teacher's own flag.Parse() call but adding the file layer.
func Load(args []string) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("novacoind", flag.ContinueOnError)
	configFile := fs.String("configfile", "", "path to a TOML config file")
	dataDir := fs.String("datadir", cfg.DataDir, "directory holding blocks, index, and chainstate")
	testNet := fs.Bool("testnet", cfg.TestNet, "use testnet consensus parameters")
	debugLevel := fs.String("debuglevel", cfg.DebugLevel, "log level: trace, debug, info, warn, error, critical")
	logFile := fs.String("logfile", cfg.LogFile, "append logs to this file instead of stdout")
	rlimit := fs.Uint64("rlimit", cfg.RLimit, "open-file rlimit to request before opening the index store")
	blockNotify := fs.String("blocknotify", "", "command to run on every new best-chain block, %s replaced with the hex hash")
	explorerDSN := fs.String("explorer-dsn", "", "postgres DSN for the optional secondary explorer index; empty disables it")
	checkpointStrict := fs.Bool("checkpoint-strict", false, "reject blocks outside the sync-checkpoint span instead of warning")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if *configFile != "" {
		if _, err := toml.DecodeFile(*configFile, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config file %s: %w", *configFile, err)
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "datadir":
			cfg.DataDir = *dataDir
		case "testnet":
			cfg.TestNet = *testNet
		case "debuglevel":
			cfg.DebugLevel = *debugLevel
		case "logfile":
			cfg.LogFile = *logFile
		case "rlimit":
			cfg.RLimit = *rlimit
		case "blocknotify":
			cfg.BlockNotify = *blockNotify
		case "explorer-dsn":
			cfg.ExplorerDSN = *explorerDSN
		case "checkpoint-strict":
			cfg.CheckpointStrict = *checkpointStrict
		}
	})

	cfg.RPCDisabled = true
	return cfg, nil
}

// MustLoad is Load against os.Args[1:], exiting the process on error
// the way flag.Parse's default error handling does.
func MustLoad() Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}
