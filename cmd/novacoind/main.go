// Command novacoind wires the storage, validation, and chain
// selection packages of this core together into one running process.
// It owns no P2P or RPC layer (non-goals): it opens the stores,
// rebuilds the chain state from them (an empty index store is only
// reported; no genesis block is installed here), and then idles, exposing
// nothing beyond what a future network layer would call directly
// against chainstate.State. Grounded on cmd/import/import.go's own
// flag-parse-then-signal-wait shape, generalized from a one-shot batch
// job into a long-lived process.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/svost/novacoin/blockindex"
	"github.com/svost/novacoin/blockstore"
	"github.com/svost/novacoin/chainstate"
	"github.com/svost/novacoin/chainstore"
	"github.com/svost/novacoin/chainstore/explore"
	"github.com/svost/novacoin/config"
	"github.com/svost/novacoin/log"
	"github.com/svost/novacoin/notify"
	"github.com/svost/novacoin/params"
	"github.com/svost/novacoin/rlimit"
	"github.com/svost/novacoin/scriptverify"
	"github.com/svost/novacoin/validator"
)

var mainLog = log.New(log.ChainState)

func main() {
	cfg := config.MustLoad()

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		log.SetOutput(f)
		mainLog = log.New(log.ChainState)
	}
	log.SetLevel(mainLog, cfg.DebugLevel)

	if err := rlimit.SetRLimit(cfg.RLimit); err != nil {
		mainLog.Warnf("could not raise open-file rlimit: %v", err)
	}

	p := params.Mainnet()
	if cfg.TestNet {
		p = params.Testnet()
	}

	blocksDir := filepath.Join(cfg.DataDir, "blocks")
	indexDir := filepath.Join(cfg.DataDir, "chainstate")
	if err := os.MkdirAll(blocksDir, 0755); err != nil {
		mainLog.Criticalf("create blocks directory: %v", err)
		os.Exit(1)
	}

	blocks, err := blockstore.Open(blocksDir, p.Magic)
	if err != nil {
		mainLog.Criticalf("open block store: %v", err)
		os.Exit(1)
	}
	defer blocks.Close()

	store, err := chainstore.Open(indexDir)
	if err != nil {
		mainLog.Criticalf("open index store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	graph := blockindex.New()

	pool := scriptverify.NewPool(4, noopVerifier)
	defer pool.Shutdown()

	reg := &notify.Registry{
		BlockNotifyCmd: cfg.BlockNotify,
		OnBestChain: func(tip *blockindex.Node) {
			mainLog.Infof("best chain now at height %d (%v)", tip.Height, tip.Hash)
		},
	}

	if cfg.ExplorerDSN != "" {
		sink, err := explore.Open(cfg.ExplorerDSN)
		if err != nil {
			mainLog.Warnf("could not open explorer sink, continuing without it: %v", err)
		} else {
			defer sink.Close()
			reg.OnBlockConnected = sink.OnBlockConnected
			reg.OnBlockDisconnected = sink.OnBlockDisconnected
		}
	}

	state := chainstate.New(graph, store, blocks, p, pool, reg)
	state.Warnf = mainLog.Warnf
	if cfg.CheckpointStrict {
		state.CheckpointMode = validator.SyncCheckpointStrict
	}

	if err := state.Rebuild(); err != nil {
		mainLog.Criticalf("rebuild chain state: %v", err)
		os.Exit(1)
	}

	if state.Tip() == nil {
		mainLog.Infof("index store is empty; call chainstate.State.InstallGenesis with the network's genesis block to bootstrap (this core does not embed genesis block bytes itself)")
	} else {
		mainLog.Infof("resumed at height %d (%v)", state.Tip().Height, state.Tip().Hash)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	mainLog.Infof("running; no P2P or RPC layer is wired in, waiting for interrupt")
	<-sigCh
	mainLog.Infof("interrupt received, shutting down")
}

// noopVerifier is the placeholder for the external script-interpreter
// seam (spec §6, §9 Design Notes): this core never implements a
// script interpreter itself, so absent a real one wired in here every
// script check passes. A production deployment replaces this with a
// call into an actual interpreter before accepting any block.
func noopVerifier(scriptSig, scriptPubKey []byte, flags uint32, ctx scriptverify.TxContext) error {
	return nil
}
