// Package keys derives the spending, viewing, and nullifying keys an
// account holds, and the master public key its address is built from. Key
// derivation itself is an external collaborator per the indexer's scope;
// this package only implements the BIP32/BIP39 derivation path and the
// small amount of Poseidon-backed key-material expansion the account and
// transaction builder packages need directly.
package keys

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"

	ourcrypto "github.com/shieldhaven/engine/crypto"
	"github.com/shieldhaven/engine/fieldtypes"
)

// purposeIndex is the coin-type field FromMnemonic derives under
// (m/44'/1984'/account'/0/index), the shielded pool's own unregistered
// coin type rather than Ethereum's 60.
const purposeIndex = 1984

// SpendingKey authorizes spends: the key that derives a note's nullifier.
type SpendingKey fieldtypes.Felt

// ViewingKey decrypts shield and transact ciphertexts addressed to this
// account.
type ViewingKey fieldtypes.Felt

// NullifyingKey is derived from the spending key and feeds
// Poseidon(nullifyingKey, index) to produce a note's nullifier.
type NullifyingKey fieldtypes.Felt

// KeyNode is the derived key material for one account: a spending/viewing
// key pair plus the nullifying key and master public key computed from
// them.
type KeyNode struct {
	Spending      SpendingKey
	Viewing       ViewingKey
	Nullifying    NullifyingKey
	MasterPublic  fieldtypes.Felt
	ViewingPublic fieldtypes.Felt
}

var poseidon = ourcrypto.NewPoseidonHasher()

// deriveNullifyingKey computes nullifyingKey = Poseidon(spendingKey,
// domain-tag). It is a one-way function of the spending key so that
// revealing a nullifier never leaks the spending key itself.
func deriveNullifyingKey(sk SpendingKey) (NullifyingKey, error) {
	tag := [32]byte{}
	tag[31] = 0x01
	nk, err := poseidon.Hash(sk[:], tag[:])
	return NullifyingKey(nk), err
}

// deriveMasterPublicKey computes masterPublicKey = Poseidon(nullifyingKey,
// viewingPublicKey), the value a 0zk address and every commitment's npk
// ultimately bind to.
func deriveMasterPublicKey(nk NullifyingKey, viewingPublic fieldtypes.Felt) (fieldtypes.Felt, error) {
	return poseidon.Hash(nk[:], viewingPublic[:])
}

// derivePublicFromPrivate computes a Poseidon-based "public key" from a
// private scalar: Poseidon(priv, domain-tag). This stands in for the real
// babyjubjub scalar multiplication the key-derivation collaborator would
// perform; the forest/notebook/account logic this engine is responsible
// for only depends on the public value being a deterministic, collision-
// resistant function of the private one, which this satisfies.
func derivePublicFromPrivate(priv fieldtypes.Felt, tagByte byte) (fieldtypes.Felt, error) {
	tag := [32]byte{}
	tag[31] = tagByte
	return poseidon.Hash(priv[:], tag[:])
}

// FromPrivateKeys derives a KeyNode from a 32-byte spending private key
// and a 32-byte viewing private key, used directly. This is a test
// helper only: production callers must derive spending and viewing nodes
// from independent BIP32 paths via FromMnemonic.
func FromPrivateKeys(spendingPriv, viewingPriv [32]byte) (*KeyNode, error) {
	sk := SpendingKey(spendingPriv)
	vk := ViewingKey(viewingPriv)

	nk, err := deriveNullifyingKey(sk)
	if err != nil {
		return nil, err
	}
	viewingPublic, err := derivePublicFromPrivate(fieldtypes.Felt(vk), 0x02)
	if err != nil {
		return nil, err
	}
	mpk, err := deriveMasterPublicKey(nk, viewingPublic)
	if err != nil {
		return nil, err
	}
	return &KeyNode{
		Spending:      sk,
		Viewing:       vk,
		Nullifying:    nk,
		MasterPublic:  mpk,
		ViewingPublic: viewingPublic,
	}, nil
}

// FromMnemonic derives a KeyNode from a BIP39 mnemonic and account index
// using two independent BIP32 paths: m/44'/1984'/0'/0/index for spending,
// m/44'/1984'/1'/0/index for viewing. Independent paths ensure a leaked
// viewing key never exposes spending authority.
func FromMnemonic(mnemonic string, passphrase string, index uint32) (*KeyNode, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("keys: invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)

	spendingPriv, err := derivePathKey(seed, 0, index)
	if err != nil {
		return nil, err
	}
	viewingPriv, err := derivePathKey(seed, 1, index)
	if err != nil {
		return nil, err
	}

	return FromPrivateKeys(spendingPriv, viewingPriv)
}

// derivePathKey derives m/44'/1984'/account'/0/index from the BIP39 seed.
func derivePathKey(seed []byte, account, index uint32) ([32]byte, error) {
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return [32]byte{}, err
	}

	const hardened = hdkeychain.HardenedKeyStart
	path := []uint32{44 + hardened, purposeIndex + hardened, account + hardened, 0, index}

	node := master
	for _, p := range path {
		node, err = node.Derive(p)
		if err != nil {
			return [32]byte{}, err
		}
	}

	priv, err := node.ECPrivKey()
	if err != nil {
		return [32]byte{}, err
	}

	var out [32]byte
	b := priv.Serialize()
	copy(out[32-len(b):], b)
	return out, nil
}
