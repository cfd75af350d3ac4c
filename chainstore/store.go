// Package chainstore is the durable, transactional home for
// everything besides raw block bytes: tx index, block index records,
// the best-chain pointer, and hardened checkpoints. Grounded on the
// teacher's leveldb.go/coredb/leveldb.go, which only ever read an
// existing Bitcoin Core chainstate; this adds the write side and a
// begin/commit/abort transaction wrapper, since goleveldb has no
// built-in multi-put transaction type of its own — only Batch, which
// this package serializes access to with a mutex to emulate one.
package chainstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/svost/novacoin/blockindex"
	"github.com/svost/novacoin/chainhash"
	"github.com/svost/novacoin/primitives"
)

// Key prefixes namespacing the flat leveldb keyspace.
var (
	prefixTx         = []byte("tx:")
	prefixBlockIndex = []byte("blockindex:")
	prefixCheckpoint = []byte("checkpoint:")
	keyBestChain     = []byte("hashBestChain")
)

// ErrNestedTx is returned by Begin when a transaction is already open.
var ErrNestedTx = fmt.Errorf("chainstore: nested transaction")

// Store is the leveldb-backed index store.
type Store struct {
	db *leveldb.DB

	txMu sync.Mutex
	tx   *Tx
}

// Open opens (creating if necessary) the index store at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("chainstore: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx is a batched set of writes, applied atomically on Commit. Only
// one Tx may be open at a time; Begin returns ErrNestedTx while another
// is open rather than allowing interleaved batches, since this store's
// mutator is single-threaded by design (spec §5).
type Tx struct {
	store   *Store
	batch   *leveldb.Batch
	done    bool
}

// Begin starts a new transaction. It is an error to call Begin again
// before the previous transaction commits or aborts.
func (s *Store) Begin() (*Tx, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if s.tx != nil {
		return nil, ErrNestedTx
	}
	tx := &Tx{store: s, batch: new(leveldb.Batch)}
	s.tx = tx
	return tx, nil
}

// Commit applies the batch atomically and closes the transaction.
func (tx *Tx) Commit() error {
	defer tx.release()
	if tx.done {
		return fmt.Errorf("chainstore: commit on finished transaction")
	}
	tx.done = true
	if err := tx.store.db.Write(tx.batch, nil); err != nil {
		return fmt.Errorf("chainstore: commit: %w", err)
	}
	return nil
}

// Abort discards the batch and closes the transaction.
func (tx *Tx) Abort() {
	defer tx.release()
	tx.done = true
}

func (tx *Tx) release() {
	tx.store.txMu.Lock()
	if tx.store.tx == tx {
		tx.store.tx = nil
	}
	tx.store.txMu.Unlock()
}

// --- tx index ---

func txKey(hash chainhash.Hash256) []byte {
	return append(append([]byte{}, prefixTx...), hash[:]...)
}

// ReadTxIndex loads the TxIndex record for hash, if present.
func (s *Store) ReadTxIndex(hash chainhash.Hash256) (*primitives.TxIndex, bool, error) {
	val, err := s.db.Get(txKey(hash), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("chainstore: read tx index: %w", err)
	}
	var ti primitives.TxIndex
	if err := ti.Deserialize(bytes.NewReader(val)); err != nil {
		return nil, false, fmt.Errorf("chainstore: decode tx index: %w", err)
	}
	return &ti, true, nil
}

// UpdateTxIndex stages a TxIndex write within tx.
func (tx *Tx) UpdateTxIndex(hash chainhash.Hash256, ti *primitives.TxIndex) error {
	var buf bytes.Buffer
	if err := ti.Serialize(&buf); err != nil {
		return fmt.Errorf("chainstore: encode tx index: %w", err)
	}
	tx.batch.Put(txKey(hash), buf.Bytes())
	return nil
}

// EraseTxIndex stages removal of hash's TxIndex within tx.
func (tx *Tx) EraseTxIndex(hash chainhash.Hash256) {
	tx.batch.Delete(txKey(hash))
}

// --- block index ---

func blockIndexKey(hash chainhash.Hash256) []byte {
	return append(append([]byte{}, prefixBlockIndex...), hash[:]...)
}

// BlockIndexRecord is the durable projection of a blockindex.Node: the
// fields needed to reconstruct the in-memory DAG on startup, without
// the live prev/next_on_best pointers themselves (those are relinked
// by the caller as records are read back in).
type BlockIndexRecord struct {
	Header                primitives.BlockHeader
	Height                int32
	ChainTrust            [32]byte // big.Int bytes, big-endian
	Status                uint32
	FileID                uint32
	BlockOffset           uint32
	MoneySupply           int64
	Mint                  int64
	StakeModifier         uint64
	StakeModifierChecksum uint32
	EntropyBit            uint8
	IsProofOfStake        bool
	GeneratedStakeModifier bool
	HashProofOfStake      chainhash.Hash256
	PrevoutStakeHash      chainhash.Hash256
	PrevoutStakeIndex     uint32
	StakeTime             uint32
	NDoS                  int32
}

const blockIndexFixedLen = 4 + 32 + 4 + 4 + 4 + 8 + 8 + 8 + 4 + 1 + 1 + 32 + 32 + 4 + 4 + 4

func (r *BlockIndexRecord) serialize(w io.Writer) error {
	if err := r.Header.Serialize(w); err != nil {
		return err
	}
	var fixed [blockIndexFixedLen]byte
	off := 0
	binary.LittleEndian.PutUint32(fixed[off:], uint32(r.Height))
	off += 4
	copy(fixed[off:], r.ChainTrust[:])
	off += 32
	binary.LittleEndian.PutUint32(fixed[off:], r.Status)
	off += 4
	binary.LittleEndian.PutUint32(fixed[off:], r.FileID)
	off += 4
	binary.LittleEndian.PutUint32(fixed[off:], r.BlockOffset)
	off += 4
	binary.LittleEndian.PutUint64(fixed[off:], uint64(r.MoneySupply))
	off += 8
	binary.LittleEndian.PutUint64(fixed[off:], uint64(r.Mint))
	off += 8
	binary.LittleEndian.PutUint64(fixed[off:], r.StakeModifier)
	off += 8
	binary.LittleEndian.PutUint32(fixed[off:], r.StakeModifierChecksum)
	off += 4
	fixed[off] = r.EntropyBit
	off++
	if r.IsProofOfStake {
		fixed[off] |= 1
	}
	if r.GeneratedStakeModifier {
		fixed[off] |= 2
	}
	off++
	copy(fixed[off:], r.HashProofOfStake[:])
	off += 32
	copy(fixed[off:], r.PrevoutStakeHash[:])
	off += 32
	binary.LittleEndian.PutUint32(fixed[off:], r.PrevoutStakeIndex)
	off += 4
	binary.LittleEndian.PutUint32(fixed[off:], r.StakeTime)
	off += 4
	binary.LittleEndian.PutUint32(fixed[off:], uint32(r.NDoS))
	_, err := w.Write(fixed[:])
	return err
}

func (r *BlockIndexRecord) deserialize(rd io.Reader) error {
	if err := r.Header.Deserialize(rd); err != nil {
		return err
	}
	var fixed [blockIndexFixedLen]byte
	if _, err := io.ReadFull(rd, fixed[:]); err != nil {
		return fmt.Errorf("chainstore: truncated block index record: %w", err)
	}
	off := 0
	r.Height = int32(binary.LittleEndian.Uint32(fixed[off:]))
	off += 4
	copy(r.ChainTrust[:], fixed[off:off+32])
	off += 32
	r.Status = binary.LittleEndian.Uint32(fixed[off:])
	off += 4
	r.FileID = binary.LittleEndian.Uint32(fixed[off:])
	off += 4
	r.BlockOffset = binary.LittleEndian.Uint32(fixed[off:])
	off += 4
	r.MoneySupply = int64(binary.LittleEndian.Uint64(fixed[off:]))
	off += 8
	r.Mint = int64(binary.LittleEndian.Uint64(fixed[off:]))
	off += 8
	r.StakeModifier = binary.LittleEndian.Uint64(fixed[off:])
	off += 8
	r.StakeModifierChecksum = binary.LittleEndian.Uint32(fixed[off:])
	off += 4
	r.EntropyBit = fixed[off]
	off++
	r.IsProofOfStake = fixed[off]&1 != 0
	r.GeneratedStakeModifier = fixed[off]&2 != 0
	off++
	copy(r.HashProofOfStake[:], fixed[off:off+32])
	off += 32
	copy(r.PrevoutStakeHash[:], fixed[off:off+32])
	off += 32
	r.PrevoutStakeIndex = binary.LittleEndian.Uint32(fixed[off:])
	off += 4
	r.StakeTime = binary.LittleEndian.Uint32(fixed[off:])
	off += 4
	r.NDoS = int32(binary.LittleEndian.Uint32(fixed[off:]))
	return nil
}

// ReadBlockIndex loads the BlockIndexRecord for hash, if present.
func (s *Store) ReadBlockIndex(hash chainhash.Hash256) (*BlockIndexRecord, bool, error) {
	val, err := s.db.Get(blockIndexKey(hash), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("chainstore: read block index: %w", err)
	}
	var rec BlockIndexRecord
	if err := rec.deserialize(bytes.NewReader(val)); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

// WriteBlockIndex stages a BlockIndexRecord write within tx.
func (tx *Tx) WriteBlockIndex(hash chainhash.Hash256, rec *BlockIndexRecord) error {
	var buf bytes.Buffer
	if err := rec.serialize(&buf); err != nil {
		return err
	}
	tx.batch.Put(blockIndexKey(hash), buf.Bytes())
	return nil
}

// AllBlockIndexRecords streams every stored block index record, for
// startup reconstruction of the in-memory DAG.
func (s *Store) AllBlockIndexRecords(fn func(hash chainhash.Hash256, rec *BlockIndexRecord) error) error {
	iter := s.db.NewIterator(util.BytesPrefix(prefixBlockIndex), nil)
	defer iter.Release()
	for iter.Next() {
		var hash chainhash.Hash256
		copy(hash[:], iter.Key()[len(prefixBlockIndex):])
		var rec BlockIndexRecord
		if err := rec.deserialize(bytes.NewReader(iter.Value())); err != nil {
			return err
		}
		if err := fn(hash, &rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// --- best chain pointer ---

// ReadBestChain returns the tip hash of the currently active chain.
func (s *Store) ReadBestChain() (chainhash.Hash256, bool, error) {
	val, err := s.db.Get(keyBestChain, nil)
	if err == leveldb.ErrNotFound {
		return chainhash.Hash256{}, false, nil
	}
	if err != nil {
		return chainhash.Hash256{}, false, fmt.Errorf("chainstore: read best chain: %w", err)
	}
	return chainhash.FromBytes(val), true, nil
}

// WriteBestChain stages the tip-hash update within tx.
func (tx *Tx) WriteBestChain(hash chainhash.Hash256) {
	tx.batch.Put(keyBestChain, hash[:])
}

// --- hardened checkpoints ---

func checkpointKey(height int32) []byte {
	buf := make([]byte, 4+len(prefixCheckpoint))
	n := copy(buf[:], prefixCheckpoint)
	binary.BigEndian.PutUint32(buf[n:], uint32(height))
	return buf[:]
}

// ReadCheckpoint returns the hardened hash for height, if recorded.
func (s *Store) ReadCheckpoint(height int32) (chainhash.Hash256, bool, error) {
	val, err := s.db.Get(checkpointKey(height), nil)
	if err == leveldb.ErrNotFound {
		return chainhash.Hash256{}, false, nil
	}
	if err != nil {
		return chainhash.Hash256{}, false, fmt.Errorf("chainstore: read checkpoint: %w", err)
	}
	return chainhash.FromBytes(val), true, nil
}

// WriteCheckpoint stages a hardened checkpoint write within tx.
func (tx *Tx) WriteCheckpoint(height int32, hash chainhash.Hash256) {
	tx.batch.Put(checkpointKey(height), hash[:])
}

// NodeToRecord projects a blockindex.Node into its durable form. The
// Prev/NextOnBest/children links are intentionally dropped; the
// caller relinks nodes as it replays AllBlockIndexRecords on startup.
func NodeToRecord(n *blockindex.Node) *BlockIndexRecord {
	rec := &BlockIndexRecord{
		Header:                 n.Header,
		Height:                 n.Height,
		Status:                 n.Status,
		FileID:                 n.FileID,
		BlockOffset:            n.BlockOffset,
		MoneySupply:            n.MoneySupply,
		Mint:                   n.Mint,
		StakeModifier:          n.StakeModifier,
		StakeModifierChecksum:  n.StakeModifierChecksum,
		EntropyBit:             n.EntropyBit,
		IsProofOfStake:         n.IsProofOfStake,
		GeneratedStakeModifier: n.GeneratedStakeModifier,
		HashProofOfStake:       n.HashProofOfStake,
		PrevoutStakeHash:       n.PrevoutStake.Hash,
		PrevoutStakeIndex:      n.PrevoutStake.Index,
		StakeTime:              n.StakeTime,
		NDoS:                   n.NDoS,
	}
	if n.ChainTrust != nil {
		trust := n.ChainTrust.Bytes()
		copy(rec.ChainTrust[32-len(trust):], trust)
	}
	return rec
}

// ToNode reconstructs a blockindex.Node from its durable record,
// leaving Prev/NextOnBest/children for the caller to relink.
func (r *BlockIndexRecord) ToNode(hash chainhash.Hash256) *blockindex.Node {
	n := &blockindex.Node{
		Hash:                   hash,
		Header:                 r.Header,
		Height:                 r.Height,
		ChainTrust:             new(big.Int).SetBytes(r.ChainTrust[:]),
		Status:                 r.Status,
		FileID:                 r.FileID,
		BlockOffset:            r.BlockOffset,
		MoneySupply:            r.MoneySupply,
		Mint:                   r.Mint,
		StakeModifier:          r.StakeModifier,
		StakeModifierChecksum:  r.StakeModifierChecksum,
		EntropyBit:             r.EntropyBit,
		IsProofOfStake:         r.IsProofOfStake,
		GeneratedStakeModifier: r.GeneratedStakeModifier,
		HashProofOfStake:       r.HashProofOfStake,
		StakeTime:              r.StakeTime,
		NDoS:                   r.NDoS,
	}
	n.PrevoutStake.Hash = r.PrevoutStakeHash
	n.PrevoutStake.Index = r.PrevoutStakeIndex
	return n
}
