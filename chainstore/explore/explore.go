// Package explore is the optional secondary explorer index: a
// Postgres sink fed exclusively from notify.Registry.OnBlockConnected
// and OnBlockDisconnected, entirely off the consensus path. Adapted
// from the teacher's db/postgres.go (CREATE TABLE blocks / INSERT
// INTO blocks) and db/explore.go (the sqlx-backed read queries), cut
// down to the columns this core's block-index node actually carries
// (this core has no txid/explorer-granularity requirement beyond
// block-level reporting per spec Non-goals — no block explorer UI).
package explore

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/svost/novacoin/blockindex"
	"github.com/svost/novacoin/primitives"
)

// schema mirrors the teacher's createTables, trimmed to one table:
// this sink only ever needs block-level reporting, not the
// tx/txin/txout breakdown the teacher's full importer builds.
const schema = `
CREATE TABLE IF NOT EXISTS blocks (
  height        INT NOT NULL
 ,hash          BYTEA NOT NULL PRIMARY KEY
 ,prevhash      BYTEA NOT NULL
 ,version       INT NOT NULL
 ,merkleroot    BYTEA NOT NULL
 ,time          INT NOT NULL
 ,bits          INT NOT NULL
 ,nonce         INT NOT NULL
 ,is_proof_of_stake BOOLEAN NOT NULL
 ,mint          BIGINT NOT NULL
 ,money_supply  BIGINT NOT NULL
 ,num_txs       INT NOT NULL
 ,in_main_chain BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS blocks_height_idx ON blocks (height);
`

// Sink is the explorer's write side, driven by notify.Registry.
type Sink struct {
	db *sqlx.DB
}

// Open connects to dsn and ensures the reporting schema exists.
func Open(dsn string) (*Sink, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("explore: connect: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("explore: create schema: %w", err)
	}
	return &Sink{db: db}, nil
}

func (s *Sink) Close() error { return s.db.Close() }

// OnBlockConnected upserts one row per connected block. Wired as
// notify.Registry.OnBlockConnected so it runs on every best-chain
// extension; its own failures are discarded (neither logged nor
// returned upward) and cannot affect consensus, per §10.3's "not part
// of the consensus-critical path".
func (s *Sink) OnBlockConnected(block *primitives.Block, node *blockindex.Node) {
	_, _ = s.db.Exec(`
        INSERT INTO blocks (height, hash, prevhash, version, merkleroot, time, bits, nonce,
                             is_proof_of_stake, mint, money_supply, num_txs, in_main_chain)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, true)
        ON CONFLICT (hash) DO UPDATE SET in_main_chain = true`,
		node.Height, node.Hash[:], node.Header.PrevBlock[:], node.Header.Version,
		node.Header.MerkleRoot[:], node.Header.Time, node.Header.Bits, node.Header.Nonce,
		node.IsProofOfStake, node.Mint, node.MoneySupply, len(block.Txs))
}

// OnBlockDisconnected marks a block's row as no longer on the main
// chain rather than deleting it, so a later reorganize back onto it
// does not need to re-derive history this sink already recorded.
func (s *Sink) OnBlockDisconnected(block *primitives.Block, node *blockindex.Node) {
	_, _ = s.db.Exec(`UPDATE blocks SET in_main_chain = false WHERE hash = $1`, node.Hash[:])
}

// SelectMaxHeight returns the highest in_main_chain block height
// recorded, mirroring the teacher's SelectMaxHeight.
func (s *Sink) SelectMaxHeight() (int32, error) {
	var height int32
	stmt := `SELECT COALESCE(MAX(height), -1) FROM blocks WHERE in_main_chain`
	if err := s.db.Get(&height, stmt); err != nil {
		return 0, fmt.Errorf("explore: select max height: %w", err)
	}
	return height, nil
}

// SelectBlocksJSON returns up to limit main-chain blocks at or below
// height, most recent first, as JSON rows, mirroring the teacher's
// SelectBlocksJson.
func (s *Sink) SelectBlocksJSON(height int32, limit int) ([]string, error) {
	stmt := `SELECT to_json(b.*) FROM (
                SELECT height, encode(hash, 'hex') AS hash, version,
                       encode(prevhash, 'hex') AS prevhash, encode(merkleroot, 'hex') AS merkleroot,
                       time, bits, nonce, is_proof_of_stake, mint, money_supply, num_txs
                  FROM blocks
                 WHERE height <= $1 AND in_main_chain
                 ORDER BY height DESC LIMIT $2
              ) b`
	var rows []string
	if err := s.db.Select(&rows, stmt, height, limit); err != nil {
		return nil, fmt.Errorf("explore: select blocks: %w", err)
	}
	return rows, nil
}
