// Package account holds one user's derived key material and per-tree
// notebook, and exposes the balance, unspent-note, and transaction-
// building surface a wallet drives. An Account never imports indexer
// directly; it satisfies indexer.RegisteredAccount by structural typing
// so the two packages stay decoupled.
package account

import (
	"strings"

	"github.com/holiman/uint256"

	"github.com/shieldhaven/engine/chainparams"
	ourcrypto "github.com/shieldhaven/engine/crypto"
	"github.com/shieldhaven/engine/errs"
	"github.com/shieldhaven/engine/eventdecoder"
	"github.com/shieldhaven/engine/fieldtypes"
	"github.com/shieldhaven/engine/keys"
	"github.com/shieldhaven/engine/merkleforest"
	"github.com/shieldhaven/engine/notebook"
)

// Forest is the read-only handle an account needs to resolve balances
// and build proofs; indexer.Forest() satisfies this directly.
type Forest interface {
	Tree(treeNumber uint64) *merkleforest.Tree
	TreeCount() int
	MultiProof(treeNumber uint64, positions []uint64) (*ourcrypto.MerkleMultiProof, error)
	VerifyMultiProof(root fieldtypes.Felt, p *ourcrypto.MerkleMultiProof) (bool, error)
}

// Account is one wallet's key material, notebook, and sync cursor. The
// shield key is optional: without it the account can still spend and
// receive transfers, but cannot recover its own shield ciphertexts.
type Account struct {
	network   *chainparams.Network
	keyNode   *keys.KeyNode
	notebook  *notebook.Notebook
	forest    Forest
	shieldKey *[32]byte
	endBlock  uint64
}

// New creates an account over node's key material, reading leaves and
// nullifiers from forest.
func New(network *chainparams.Network, node *keys.KeyNode, forest Forest) *Account {
	return &Account{
		network:  network,
		keyNode:  node,
		notebook: notebook.New(fieldtypes.Felt(node.Nullifying)),
		forest:   forest,
	}
}

// SetShieldKey installs the shield private key this account recovers
// its own shield ciphertexts with — crypto.DeriveShieldPrivateKey over
// the external signer's signature of the shield derivation label, the
// same value the transaction builder seals those bundles under.
func (a *Account) SetShieldKey(key [32]byte) {
	a.shieldKey = &key
}

// GetAddress returns this account's chain-agnostic 0zk address.
func (a *Account) GetAddress() (string, error) {
	return keys.AddressFor(a.keyNode, 0)
}

// KeyNode exposes this account's derived key material to the
// transaction builder, which cannot import account's own dependents
// without a cycle back through txbuilder.
func (a *Account) KeyNode() *keys.KeyNode { return a.keyNode }

// Network returns the chain configuration this account was constructed
// against.
func (a *Account) Network() *chainparams.Network { return a.network }

// Forest returns the read-only forest handle this account resolves
// balances and roots against.
func (a *Account) Forest() Forest { return a.forest }

// Notebook exposes this account's decrypted-note index, mainly so the
// transaction builder can compute the nullifier a selected note would
// publish.
func (a *Account) Notebook() *notebook.Notebook { return a.notebook }

// EndBlock returns this account's last-synced block, implementing
// indexer.RegisteredAccount.
func (a *Account) EndBlock() uint64 { return a.endBlock }

// SetEndBlock advances this account's last-synced block, implementing
// indexer.RegisteredAccount.
func (a *Account) SetEndBlock(b uint64) { a.endBlock = b }

// SetNote writes a decrypted note into this account's notebook,
// implementing indexer.RegisteredAccount.
func (a *Account) SetNote(treeNumber, index uint64, note *notebook.Note) error {
	return a.notebook.SetNote(treeNumber, index, note)
}

// TryDecryptShield attempts to recover one Shield commitment's
// ciphertext bundle with this account's shield private key, bound to
// its viewing public key. An account with no shield key installed, or a
// failed AEAD open, is an expected miss, not an error.
func (a *Account) TryDecryptShield(c eventdecoder.ShieldCommitment, ciphertext []byte) (*notebook.Note, bool) {
	if a.shieldKey == nil {
		return nil, false
	}
	key := ourcrypto.ShieldNoteKey(*a.shieldKey, a.keyNode.ViewingPublic)
	plaintext, err := ourcrypto.DecryptNote(key, ciphertext)
	if err != nil {
		return nil, false
	}
	note, ok := parseNotePlaintext(plaintext, c.TokenData, c.Value)
	return note, ok
}

// TryDecryptTransact attempts to decrypt one Transact output's
// ciphertext against this account's viewing key.
func (a *Account) TryDecryptTransact(leaf fieldtypes.Felt, ciphertext []byte) (*notebook.Note, bool) {
	plaintext, err := ourcrypto.DecryptNote([32]byte(a.keyNode.Viewing), ciphertext)
	if err != nil {
		return nil, false
	}
	note, ok := parseNotePlaintext(plaintext, fieldtypes.TokenData{}, nil)
	return note, ok
}

// parseNotePlaintext is the wire format a shield/transact ciphertext
// decrypts to: 16-byte random || 32-byte value (big-endian). tokenData
// and fallbackValue come from the on-chain event where available
// (Shield carries them in the clear; Transact does not, so note value
// must round-trip through the ciphertext alone).
func parseNotePlaintext(plaintext []byte, tokenData fieldtypes.TokenData, fallbackValue *uint256.Int) (*notebook.Note, bool) {
	if len(plaintext) < 16+32 {
		return nil, false
	}
	var random [16]byte
	copy(random[:], plaintext[:16])
	value := new(uint256.Int).SetBytes(plaintext[16:48])

	if fallbackValue != nil && value.Cmp(fallbackValue) != 0 {
		return nil, false
	}

	var memo []byte
	if len(plaintext) > 48 {
		memo = append(memo, plaintext[48:]...)
	}

	return &notebook.Note{
		Value:     value,
		Random:    random,
		TokenData: tokenData,
		Memo:      memo,
	}, true
}

// GetBalance sums unspent note values for token across every tree,
// normalizing the native-asset sentinel to the network's WETH address.
func (a *Account) GetBalance(token fieldtypes.Address) (*uint256.Int, error) {
	token = a.network.NormalizeToken(token)
	total := uint256.NewInt(0)
	for _, t := range a.notebook.TreeNumbers() {
		bal, err := a.notebook.GetBalance(t, token, a.forest.Tree(t))
		if err != nil {
			return nil, err
		}
		total.Add(total, bal)
	}
	return total, nil
}

// GetUnspentNotes returns every unspent note for token, grouped by tree
// in ascending tree order.
func (a *Account) GetUnspentNotes(token fieldtypes.Address) (map[uint64][]notebook.IndexedNote, error) {
	token = a.network.NormalizeToken(token)
	out := make(map[uint64][]notebook.IndexedNote)
	for _, t := range a.notebook.TreeNumbers() {
		notes, err := a.notebook.GetUnspentNotes(t, token, a.forest.Tree(t))
		if err != nil {
			return nil, err
		}
		if len(notes) > 0 {
			out[t] = notes
		}
	}
	return out, nil
}

// Selection is one tree's contribution to a spend: the notes consumed
// and, if the tree's sum exceeded what was still needed, the change
// amount returned to self.
type Selection struct {
	TreeNumber uint64
	Notes      []notebook.IndexedNote
	Change     *uint256.Int
}

// SelectNotes implements the greedy, tree-by-tree note selection
// policy: walk trees in ascending order, consuming each tree's unspent
// notes in stored order until the cumulative sum meets target. Each
// tree contributes at most one selection group; a change note is
// emitted at the tree where the cumulative sum first exceeds the
// remaining target. Returns ErrInsufficientFunds if the grand total
// across every tree falls short.
func (a *Account) SelectNotes(token fieldtypes.Address, target *uint256.Int) ([]Selection, error) {
	token = a.network.NormalizeToken(token)
	remaining := new(uint256.Int).Set(target)
	var selections []Selection

	for _, t := range a.notebook.TreeNumbers() {
		if remaining.IsZero() {
			break
		}
		notes, err := a.notebook.GetUnspentNotes(t, token, a.forest.Tree(t))
		if err != nil {
			return nil, err
		}
		if len(notes) == 0 {
			continue
		}

		var picked []notebook.IndexedNote
		sum := uint256.NewInt(0)
		for _, n := range notes {
			if !remaining.IsZero() && sum.Cmp(remaining) < 0 {
				picked = append(picked, n)
				sum.Add(sum, n.Note.Value)
			}
		}
		if len(picked) == 0 {
			continue
		}

		var change *uint256.Int
		if sum.Cmp(remaining) > 0 {
			change = new(uint256.Int).Sub(sum, remaining)
		}
		if sum.Cmp(remaining) >= 0 {
			remaining = uint256.NewInt(0)
		} else {
			remaining.Sub(remaining, sum)
		}

		selections = append(selections, Selection{TreeNumber: t, Notes: picked, Change: change})
	}

	if !remaining.IsZero() {
		return nil, errs.ErrInsufficientFunds
	}
	return selections, nil
}

// ReceiverKind tags how a receiver string was classified.
type ReceiverKind int

const (
	ReceiverUnknown ReceiverKind = iota
	ReceiverShieldedAddress
	ReceiverPublicAddress
)

// ClassifyReceiver validates a receiver string: exactly one of "0x" or
// "0zk" prefix is accepted; anything else is BadReceiver.
func ClassifyReceiver(receiver string) (ReceiverKind, error) {
	switch {
	case strings.HasPrefix(receiver, "0x"):
		return ReceiverPublicAddress, nil
	case strings.HasPrefix(receiver, keys.AddressHRP):
		return ReceiverShieldedAddress, nil
	default:
		return ReceiverUnknown, errs.ErrBadReceiver
	}
}
