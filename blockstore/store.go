// Package blockstore implements the append-only, file-partitioned raw
// block storage described in spec §4.3 (C3). Adapted from the
// teacher's filebundle.go/corestore.go, which only ever read an
// existing sequence of blk*.dat files; this generalizes that to
// read-and-append with size-triggered file rolling and an fsync
// policy.
package blockstore

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/svost/novacoin/primitives"
)

// ErrIO marks a storage I/O failure. Per spec §7 category 3, this is
// fatal: the caller must stop mutating the index and shut down.
type ErrIO struct {
	Op  string
	Err error
}

func (e *ErrIO) Error() string { return fmt.Sprintf("blockstore: %s: %v", e.Op, e.Err) }
func (e *ErrIO) Unwrap() error { return e.Err }

// DefaultMaxFileSize is the size past which Append rolls to a new file.
const DefaultMaxFileSize = 128 * 1024 * 1024

// SyncEverySteadyState and SyncEveryInitialSync are the fsync
// cadences from spec §4.3: every block in steady state, every 500th
// block during initial sync.
const (
	SyncEverySteadyState  = 1
	SyncEveryInitialSync = 500
)

// Locator addresses a block on disk.
type Locator struct {
	FileID uint32
	Offset uint32
}

// Store is the append-only block file bundle.
type Store struct {
	dir         string
	magic       uint32
	maxFileSize int64

	mu          sync.Mutex
	curFile     *os.File
	curFileID   uint32
	curSize     int64
	writesSince int
	initialSync bool
}

// Open opens (creating if necessary) a block store rooted at dir.
func Open(dir string, magic uint32) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &ErrIO{"mkdir", err}
	}
	s := &Store{
		dir:         dir,
		magic:       magic,
		maxFileSize: DefaultMaxFileSize,
		initialSync: true,
	}
	if err := s.openForAppend(s.latestFileID()); err != nil {
		return nil, err
	}
	return s, nil
}

// SetInitialSync toggles the fsync cadence between the initial-sync
// rate (every 500th block) and steady state (every block).
func (s *Store) SetInitialSync(v bool) {
	s.mu.Lock()
	s.initialSync = v
	s.mu.Unlock()
}

func (s *Store) fileName(id uint32) string {
	return filepath.Join(s.dir, fmt.Sprintf("blk%05d.dat", id))
}

// latestFileID scans the directory for the highest-numbered blk file,
// defaulting to 0 if none exist.
func (s *Store) latestFileID() uint32 {
	var id uint32
	for i := uint32(0); ; i++ {
		if _, err := os.Stat(s.fileName(i)); err != nil {
			break
		}
		id = i
	}
	return id
}

func (s *Store) openForAppend(id uint32) error {
	f, err := os.OpenFile(s.fileName(id), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return &ErrIO{"open", err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return &ErrIO{"stat", err}
	}
	s.curFile = f
	s.curFileID = id
	s.curSize = info.Size()
	return nil
}

// AppendBlock writes a framed block record and returns its locator.
// The record is <4-byte magic><4-byte LE size><serialized block>.
func (s *Store) AppendBlock(b *primitives.Block) (Locator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var body []byte
	{
		buf := bytes.NewBuffer(make([]byte, 0, b.Size()))
		if err := b.Serialize(buf); err != nil {
			return Locator{}, fmt.Errorf("blockstore: serialize: %w", err)
		}
		body = buf.Bytes()
	}

	if s.curSize > 0 && s.curSize+int64(len(body))+8 > s.maxFileSize {
		if err := s.roll(); err != nil {
			return Locator{}, err
		}
	}

	offset := uint32(s.curSize)

	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], s.magic)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(body)))

	if _, err := s.curFile.Write(hdr[:]); err != nil {
		return Locator{}, &ErrIO{"write-header", err}
	}
	if _, err := s.curFile.Write(body); err != nil {
		return Locator{}, &ErrIO{"write-body", err}
	}
	s.curSize += int64(len(hdr)) + int64(len(body))

	s.writesSince++
	every := SyncEverySteadyState
	if s.initialSync {
		every = SyncEveryInitialSync
	}
	if s.writesSince >= every {
		if err := s.curFile.Sync(); err != nil {
			return Locator{}, &ErrIO{"fsync", err}
		}
		s.writesSince = 0
	}

	return Locator{FileID: s.curFileID, Offset: offset}, nil
}

func (s *Store) roll() error {
	if err := s.curFile.Sync(); err != nil {
		return &ErrIO{"fsync-roll", err}
	}
	if err := s.curFile.Close(); err != nil {
		return &ErrIO{"close-roll", err}
	}
	return s.openForAppend(s.curFileID + 1)
}

// ReadBlock reads and parses a full block at loc.
func (s *Store) ReadBlock(loc Locator) (*primitives.Block, error) {
	return s.read(loc, false)
}

// ReadBlockHeader reads only the 80-byte header at loc, skipping the
// transaction list and block signature.
func (s *Store) ReadBlockHeader(loc Locator) (*primitives.Block, error) {
	return s.read(loc, true)
}

func (s *Store) read(loc Locator, headerOnly bool) (*primitives.Block, error) {
	f, err := os.Open(s.fileName(loc.FileID))
	if err != nil {
		return nil, &ErrIO{"open-read", err}
	}
	defer f.Close()

	if _, err := f.Seek(int64(loc.Offset), io.SeekStart); err != nil {
		return nil, &ErrIO{"seek", err}
	}

	var hdr [8]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return nil, &ErrIO{"read-header", err}
	}
	magic := binary.LittleEndian.Uint32(hdr[0:4])
	if magic != s.magic {
		return nil, &ErrIO{"read-header", fmt.Errorf("bad magic: %x", magic)}
	}
	size := binary.LittleEndian.Uint32(hdr[4:8])

	r := bufio.NewReaderSize(io.LimitReader(f, int64(size)), 64*1024)

	var b primitives.Block
	if headerOnly {
		if err := b.DeserializeHeader(r); err != nil {
			return nil, &ErrIO{"deserialize-header", err}
		}
		return &b, nil
	}
	if err := b.Deserialize(r); err != nil {
		return nil, &ErrIO{"deserialize", err}
	}
	return &b, nil
}

// Close flushes and closes the currently open file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curFile == nil {
		return nil
	}
	if err := s.curFile.Sync(); err != nil {
		return &ErrIO{"fsync-close", err}
	}
	if err := s.curFile.Close(); err != nil {
		return &ErrIO{"close", err}
	}
	s.curFile = nil
	return nil
}
