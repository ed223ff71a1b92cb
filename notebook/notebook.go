// Package notebook maintains, per account, a per-tree index of decrypted
// notes. A slot is populated exactly once, at the block height its
// owning leaf was inserted and successfully decrypted; it is never
// removed. Spent-ness is derived from a tree's nullifier set, never from
// slot deletion, so a notebook never needs to coordinate writes with the
// forest beyond the one-time set at decryption time.
package notebook

import (
	"sort"

	"github.com/holiman/uint256"

	ourcrypto "github.com/shieldhaven/engine/crypto"
	"github.com/shieldhaven/engine/errs"
	"github.com/shieldhaven/engine/fieldtypes"
)

// Note is the owner-local record of a spendable commitment.
type Note struct {
	Value     *uint256.Int
	Random    [16]byte
	TokenData fieldtypes.TokenData
	Memo      []byte
}

// IndexedNote pairs a Note with its absolute leaf index, the unit
// get_unspent_notes and the account's note selector operate over.
type IndexedNote struct {
	Index uint64
	Note  *Note
}

// NullifierChecker reports whether a nullifier has been observed on a
// tree. Satisfied by *merkleforest.Tree; kept as an interface here so the
// notebook package never imports merkleforest.
type NullifierChecker interface {
	IsNullified(fieldtypes.Felt) bool
}

type perTree struct {
	slots map[uint64]*Note
}

// Notebook is one account's decrypted-note index across every tree in
// the forest.
type Notebook struct {
	trees         map[uint64]*perTree
	nullifyingKey fieldtypes.Felt
	poseidon      *ourcrypto.PoseidonHasher
}

// New creates an empty notebook for an account holding the given
// nullifying key.
func New(nullifyingKey fieldtypes.Felt) *Notebook {
	return &Notebook{
		trees:         make(map[uint64]*perTree),
		nullifyingKey: nullifyingKey,
		poseidon:      ourcrypto.NewPoseidonHasher(),
	}
}

func (nb *Notebook) tree(treeNumber uint64) *perTree {
	t, ok := nb.trees[treeNumber]
	if !ok {
		t = &perTree{slots: make(map[uint64]*Note)}
		nb.trees[treeNumber] = t
	}
	return t
}

// SetNote writes note at (treeNumber, index). Write-once: calling it
// again for an index that already holds a note is an invariant
// violation, since the event handler that calls SetNote fires at most
// once per leaf.
func (nb *Notebook) SetNote(treeNumber, index uint64, note *Note) error {
	t := nb.tree(treeNumber)
	if _, exists := t.slots[index]; exists {
		return errs.ErrInvariantViolation
	}
	t.slots[index] = note
	return nil
}

// Note returns the note at (treeNumber, index), if any.
func (nb *Notebook) Note(treeNumber, index uint64) (*Note, bool) {
	t, ok := nb.trees[treeNumber]
	if !ok {
		return nil, false
	}
	n, ok := t.slots[index]
	return n, ok
}

// Nullifier computes the nullifier this account would publish to spend
// the note at the given absolute leaf index.
func (nb *Notebook) Nullifier(index uint64) (fieldtypes.Felt, error) {
	return nb.poseidon.Nullifier(nb.nullifyingKey, index)
}

// GetBalance sums the value of notes on treeNumber whose tokenData
// matches token and whose nullifier has not been observed on that tree.
func (nb *Notebook) GetBalance(treeNumber uint64, token fieldtypes.Address, nullifiers NullifierChecker) (*uint256.Int, error) {
	total := uint256.NewInt(0)
	for _, in := range nb.unspentOrdered(treeNumber, token, nullifiers) {
		total.Add(total, in.Note.Value)
	}
	return total, nil
}

// GetUnspentNotes returns the ordered (by leaf index) subset of notes on
// treeNumber matching token whose nullifier has not been observed.
func (nb *Notebook) GetUnspentNotes(treeNumber uint64, token fieldtypes.Address, nullifiers NullifierChecker) ([]IndexedNote, error) {
	return nb.unspentOrdered(treeNumber, token, nullifiers), nil
}

func (nb *Notebook) unspentOrdered(treeNumber uint64, token fieldtypes.Address, nullifiers NullifierChecker) []IndexedNote {
	t, ok := nb.trees[treeNumber]
	if !ok {
		return nil
	}

	indices := make([]uint64, 0, len(t.slots))
	for idx := range t.slots {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	var out []IndexedNote
	for _, idx := range indices {
		note := t.slots[idx]
		if note.TokenData.Address != token {
			continue
		}
		nf, err := nb.Nullifier(idx)
		if err != nil {
			continue
		}
		if nullifiers != nil && nullifiers.IsNullified(nf) {
			continue
		}
		out = append(out, IndexedNote{Index: idx, Note: note})
	}
	return out
}

// Slots returns every (index -> note) pair this notebook holds for
// treeNumber, for storage to serialize. The returned map is owned by the
// notebook; callers must not mutate it.
func (nb *Notebook) Slots(treeNumber uint64) map[uint64]*Note {
	t, ok := nb.trees[treeNumber]
	if !ok {
		return nil
	}
	return t.slots
}

// TreeNumbers returns the set of tree indices this notebook has any
// slots on, ascending.
func (nb *Notebook) TreeNumbers() []uint64 {
	out := make([]uint64, 0, len(nb.trees))
	for t := range nb.trees {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
