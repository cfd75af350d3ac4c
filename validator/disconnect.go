package validator

import (
	"github.com/svost/novacoin/blockindex"
	"github.com/svost/novacoin/chainstore"
	"github.com/svost/novacoin/notify"
	"github.com/svost/novacoin/primitives"
)

// DisconnectBlock implements spec §4.7 "DisconnectBlock": in reverse
// transaction order, restores spent[i] to null for each input's
// previous transaction, clears the predecessor's forward pointer, and
// notifies the wallet collaborator with connected=false.
//
// touched, if non-nil, is reused across several DisconnectBlock calls
// against the same underlying transaction (a reorganize disconnects
// more than one block before committing), so that a previous output
// restored by an earlier-processed (newer) block in the same batch is
// not stomped by a stale read here when a second input of the same
// prior transaction is also being restored.
func DisconnectBlock(store *chainstore.Tx, txSource TxIndexSource, block *primitives.Block, node *blockindex.Node, reg *notify.Registry, touched QueuedChanges) *Error {
	if touched == nil {
		touched = make(QueuedChanges)
	}

	for i := len(block.Txs) - 1; i >= 1; i-- {
		tx := &block.Txs[i]
		for j := len(tx.Vin) - 1; j >= 0; j-- {
			in := &tx.Vin[j]
			ti, ok := touched[in.PrevOut.Hash]
			if !ok {
				loaded, found, err := txSource.ReadTxIndex(in.PrevOut.Hash)
				if err != nil {
					return storageFail(err, "disconnect: read tx index %v", in.PrevOut.Hash)
				}
				if !found {
					return consistencyFail(nil, "disconnect: expected tx index for %v missing", in.PrevOut.Hash)
				}
				ti = loaded
				touched[in.PrevOut.Hash] = ti
			}
			idx := int(in.PrevOut.Index)
			if idx < 0 || idx >= len(ti.Spent) {
				return consistencyFail(nil, "disconnect: output index %d out of range for %v", idx, in.PrevOut.Hash)
			}
			ti.Spent[idx] = primitives.NullDiskTxPos
		}

		hash := tx.Hash()
		store.EraseTxIndex(hash)
		delete(touched, hash)
	}

	coinbaseHash := block.Txs[0].Hash()
	store.EraseTxIndex(coinbaseHash)
	delete(touched, coinbaseHash)

	for hash, ti := range touched {
		if err := store.UpdateTxIndex(hash, ti); err != nil {
			return storageFail(err, "disconnect: write tx index %v", hash)
		}
	}

	if node.Prev != nil {
		node.Prev.NextOnBest = nil
	}

	if reg != nil {
		reg.NotifyDisconnected(block, node)
	}

	return nil
}
