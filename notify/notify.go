// Package notify is the registry of external callbacks the chain
// selector and validator dispatch into (spec §6 "Callbacks exposed to
// collaborators"). This core never implements a wallet or UI itself
// (Non-goal); it only defines the seam and drives it at the right
// moments.
package notify

import (
	"os/exec"

	"github.com/svost/novacoin/blockindex"
	"github.com/svost/novacoin/primitives"
)

// Registry holds the registered callbacks. A zero Registry is valid
// and dispatches to no-ops.
type Registry struct {
	OnBlockConnected    func(block *primitives.Block, node *blockindex.Node)
	OnBlockDisconnected func(block *primitives.Block, node *blockindex.Node)
	OnBlocksChanged     func()
	OnBestChain         func(tip *blockindex.Node)

	// BlockNotifyCmd, if non-empty, is run with the new best-chain
	// hash substituted for "%s", unsupervised, every time the best
	// chain advances and the node is not in initial sync.
	BlockNotifyCmd string

	blocksSinceNotify int
}

const blocksChangedDebounce = 16

func (r *Registry) blockConnected(block *primitives.Block, node *blockindex.Node) {
	if r.OnBlockConnected != nil {
		r.OnBlockConnected(block, node)
	}
}

func (r *Registry) blockDisconnected(block *primitives.Block, node *blockindex.Node) {
	if r.OnBlockDisconnected != nil {
		r.OnBlockDisconnected(block, node)
	}
}

// NotifyConnected dispatches the wallet-facing connect callback.
func (r *Registry) NotifyConnected(block *primitives.Block, node *blockindex.Node) {
	r.blockConnected(block, node)
}

// NotifyDisconnected dispatches the wallet-facing disconnect callback.
func (r *Registry) NotifyDisconnected(block *primitives.Block, node *blockindex.Node) {
	r.blockDisconnected(block, node)
}

// NotifyBlocksChanged dispatches the UI hook, debounced to every 16
// blocks while initialSync is true. Outside initial sync it fires on
// every call.
func (r *Registry) NotifyBlocksChanged(initialSync bool) {
	if r.OnBlocksChanged == nil {
		return
	}
	if !initialSync {
		r.OnBlocksChanged()
		return
	}
	r.blocksSinceNotify++
	if r.blocksSinceNotify >= blocksChangedDebounce {
		r.blocksSinceNotify = 0
		r.OnBlocksChanged()
	}
}

// NotifyBestChain dispatches the locator callback and, if configured
// and not in initial sync, spawns the block-notify command
// unsupervised — it runs to completion on its own; this core does not
// wait for it or inspect its exit status.
func (r *Registry) NotifyBestChain(tip *blockindex.Node, initialSync bool) {
	if r.OnBestChain != nil && !initialSync {
		r.OnBestChain(tip)
	}
	if r.BlockNotifyCmd != "" && !initialSync {
		r.runBlockNotify(tip.Hash.String())
	}
}

func (r *Registry) runBlockNotify(hash string) {
	cmd := exec.Command("/bin/sh", "-c", substituteHash(r.BlockNotifyCmd, hash))
	go func() {
		_ = cmd.Run()
	}()
}

func substituteHash(template, hash string) string {
	out := make([]byte, 0, len(template)+len(hash))
	for i := 0; i < len(template); i++ {
		if template[i] == '%' && i+1 < len(template) && template[i+1] == 's' {
			out = append(out, hash...)
			i++
			continue
		}
		out = append(out, template[i])
	}
	return string(out)
}
