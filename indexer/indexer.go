// Package indexer owns the Merkle forest and drives it from decoded
// events: it applies Shield/Transact leaf inserts and Nullified spends to
// the forest, then fans each Shield/Transact event out to every
// registered account so their notebooks can attempt decryption. The
// indexer holds accounts only through the RegisteredAccount interface —
// no cyclic strong ownership between indexer and account.
package indexer

import (
	"sort"

	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/shieldhaven/engine/chainparams"
	ourcrypto "github.com/shieldhaven/engine/crypto"
	"github.com/shieldhaven/engine/eventdecoder"
	"github.com/shieldhaven/engine/fieldtypes"
	"github.com/shieldhaven/engine/log"
	"github.com/shieldhaven/engine/merkleforest"
	"github.com/shieldhaven/engine/notebook"
	"github.com/shieldhaven/engine/storage"
)

// RegisteredAccount is the fan-out surface the indexer drives. An account
// implements this to receive per-event decryption attempts without the
// indexer needing to know anything about key material.
type RegisteredAccount interface {
	// TryDecryptShield attempts to decrypt one Shield commitment's
	// ciphertext. Returns (note, true) on success; (nil, false) is an
	// expected, silent DecryptionMiss.
	TryDecryptShield(commitment eventdecoder.ShieldCommitment, ciphertext []byte) (*notebook.Note, bool)

	// TryDecryptTransact attempts to decrypt one Transact output's
	// ciphertext against the already-hashed leaf.
	TryDecryptTransact(leaf fieldtypes.Felt, ciphertext []byte) (*notebook.Note, bool)

	// SetNote writes a decrypted note into this account's notebook at
	// the given absolute (treeNumber, index).
	SetNote(treeNumber, index uint64, note *notebook.Note) error

	// EndBlock returns the account's last-synced block.
	EndBlock() uint64
	// SetEndBlock advances the account's last-synced block.
	SetEndBlock(uint64)
}

// ProcessOpts controls ProcessLogs behavior.
type ProcessOpts struct {
	// SkipMerkleTree skips forest mutation for every log in the batch;
	// account fan-out still runs. Used to replay a batch purely for
	// account-side decryption against an already-built forest.
	SkipMerkleTree bool
}

// Indexer owns the forest and a sync cursor, and fans decoded events out
// to every registered account.
type Indexer struct {
	network  *chainparams.Network
	forest   *merkleforest.Forest
	decoder  *eventdecoder.Decoder
	poseidon *ourcrypto.PoseidonHasher
	accounts []RegisteredAccount
	endBlock uint64
	logger   *log.Logger
}

// New creates an indexer for the given network, starting its cursor at
// the network's deployment block.
func New(network *chainparams.Network) *Indexer {
	return &Indexer{
		network:  network,
		forest:   merkleforest.New(),
		decoder:  eventdecoder.New(),
		poseidon: ourcrypto.NewPoseidonHasher(),
		endBlock: network.GlobalStartBlock,
		logger:   log.Default().Module("indexer"),
	}
}

// Restore reconstructs an indexer from a snapshot blob produced by
// GetSerializedState. The sync cursor resumes from the snapshot's
// endBlock, or from the network's deployment block if the snapshot
// predates it.
func Restore(network *chainparams.Network, blob []byte) (*Indexer, error) {
	forest, endBlock, err := storage.DeserializeIndexerState(blob)
	if err != nil {
		return nil, err
	}
	ix := New(network)
	ix.forest = forest
	if endBlock > ix.endBlock {
		ix.endBlock = endBlock
	}
	return ix, nil
}

// GetSerializedState returns the snapshot blob covering the forest and
// the sync cursor, ready for a storage backend's indexer namespace.
func (ix *Indexer) GetSerializedState() ([]byte, error) {
	return storage.SerializeIndexerState(ix.forest, ix.endBlock)
}

// Forest exposes the underlying forest for read-only queries (proof
// generation, root reads outside a batch).
func (ix *Indexer) Forest() *merkleforest.Forest { return ix.forest }

// EndBlock returns the indexer's sync cursor.
func (ix *Indexer) EndBlock() uint64 { return ix.endBlock }

// RegisterAccount adds account to the fan-out set.
func (ix *Indexer) RegisterAccount(account RegisteredAccount) {
	ix.accounts = append(ix.accounts, account)
}

// ProcessLog decodes and applies exactly one log. Forest mutation is
// skipped when skipMerkleTree is true; account fan-out always runs.
// Malformed or unrecognized logs are logged and dropped, not returned as
// an error, matching the "warnings, not fatal" contract for decode
// failures.
func (ix *Indexer) ProcessLog(rawLog gethtypes.Log, skipMerkleTree bool) {
	decoded, err := ix.decoder.Decode(rawLog)
	if err != nil {
		ix.logger.Warn("unparseable log dropped", "block", rawLog.BlockNumber, "err", err)
		return
	}
	ix.applyDecoded(decoded, skipMerkleTree)
}

func (ix *Indexer) applyDecoded(decoded *eventdecoder.DecodedEvent, skipMerkleTree bool) {
	switch decoded.Kind {
	case eventdecoder.EventShield:
		ix.applyShield(decoded.Shield, skipMerkleTree)
	case eventdecoder.EventTransact:
		ix.applyTransact(decoded.Transact, skipMerkleTree)
	case eventdecoder.EventNullified:
		if !skipMerkleTree {
			ix.applyNullified(decoded.Nullified)
		}
	}
}

// crossingAdjust computes the absolute leaf index an output at position i
// within a batch lands at. Callers pass the already-redirected
// (treeNumber, startPosition) pair returned by Forest.InsertLeaves, so a
// batch that crossed the tree boundary is addressed relative to its
// actual destination tree.
func crossingAdjust(startPosition uint64, i int) uint64 {
	return startPosition + uint64(i)
}

func (ix *Indexer) applyShield(ev *eventdecoder.ShieldEvent, skipMerkleTree bool) {
	leaves := make([]fieldtypes.Felt, len(ev.Commitments))
	for i, c := range ev.Commitments {
		valueBE := c.Value.Bytes32()
		leaf, err := ix.poseidon.CommitmentLeaf(c.NPK, ourcrypto.TokenID(c.TokenData), valueBE)
		if err != nil {
			ix.logger.Warn("commitment hash failed, leaf dropped", "err", err)
			continue
		}
		leaves[i] = leaf
	}

	actualTree, actualStart := ev.TreeNumber, ev.StartPosition
	if !skipMerkleTree {
		t, s, err := ix.forest.InsertLeaves(ev.TreeNumber, leaves, ev.StartPosition)
		if err != nil {
			ix.logger.Warn("shield leaf insert failed", "err", err)
			return
		}
		actualTree, actualStart = t, s
	}

	for _, account := range ix.accounts {
		for i, c := range ev.Commitments {
			if i >= len(ev.ShieldCiphertext) {
				continue
			}
			note, ok := account.TryDecryptShield(c, ev.ShieldCiphertext[i])
			if !ok {
				continue // DecryptionMiss: expected, silent
			}
			idx := crossingAdjust(actualStart, i)
			if err := account.SetNote(actualTree, idx, note); err != nil {
				ix.logger.Warn("notebook write failed", "err", err)
			}
		}
	}
}

func (ix *Indexer) applyTransact(ev *eventdecoder.TransactEvent, skipMerkleTree bool) {
	actualTree, actualStart := ev.TreeNumber, ev.StartPosition
	if !skipMerkleTree {
		t, s, err := ix.forest.InsertLeaves(ev.TreeNumber, ev.Hashes, ev.StartPosition)
		if err != nil {
			ix.logger.Warn("transact leaf insert failed", "err", err)
			return
		}
		actualTree, actualStart = t, s
	}

	for _, account := range ix.accounts {
		for i, h := range ev.Hashes {
			if i >= len(ev.Ciphertext) {
				continue
			}
			note, ok := account.TryDecryptTransact(h, ev.Ciphertext[i])
			if !ok {
				continue
			}
			idx := crossingAdjust(actualStart, i)
			if err := account.SetNote(actualTree, idx, note); err != nil {
				ix.logger.Warn("notebook write failed", "err", err)
			}
		}
	}
}

func (ix *Indexer) applyNullified(ev *eventdecoder.NullifiedEvent) {
	for _, nf := range ev.Nullifiers {
		if err := ix.forest.InsertNullifier(ev.TreeNumber, nf); err != nil {
			ix.logger.Error("nullifier insert against missing tree", "tree", ev.TreeNumber, "err", err)
		}
	}
}

// ProcessLogs iterates logs in order, then rebuilds sparse parents for
// every tree touched by this batch, and advances endBlock to the max
// block number observed. Each account's endBlock is advanced to
// min(max(account.EndBlock, maxBlock), indexer.EndBlock).
func (ix *Indexer) ProcessLogs(logs []gethtypes.Log, opts ProcessOpts) error {
	touched := make(map[uint64]struct{})
	var maxBlock uint64

	for _, raw := range logs {
		if raw.BlockNumber > maxBlock {
			maxBlock = raw.BlockNumber
		}

		decoded, err := ix.decoder.Decode(raw)
		if err != nil {
			ix.logger.Warn("unparseable log dropped", "block", raw.BlockNumber, "err", err)
			continue
		}
		ix.applyDecoded(decoded, opts.SkipMerkleTree)

		switch decoded.Kind {
		case eventdecoder.EventShield:
			touched[decoded.Shield.TreeNumber] = struct{}{}
			touched[decoded.Shield.TreeNumber+1] = struct{}{}
		case eventdecoder.EventTransact:
			touched[decoded.Transact.TreeNumber] = struct{}{}
			touched[decoded.Transact.TreeNumber+1] = struct{}{}
		}
	}

	if !opts.SkipMerkleTree {
		treeNums := make([]uint64, 0, len(touched))
		for t := range touched {
			if ix.forest.Tree(t) != nil {
				treeNums = append(treeNums, t)
			}
		}
		sort.Slice(treeNums, func(i, j int) bool { return treeNums[i] < treeNums[j] })
		for _, t := range treeNums {
			if err := ix.forest.RebuildSparse(t); err != nil {
				return err
			}
		}
	}

	if maxBlock > ix.endBlock {
		ix.endBlock = maxBlock
	}
	for _, account := range ix.accounts {
		next := account.EndBlock()
		if maxBlock > next {
			next = maxBlock
		}
		if next > ix.endBlock {
			next = ix.endBlock
		}
		account.SetEndBlock(next)
	}

	return nil
}
