// Package txbuilder assembles shield and transact calldata: the Shield
// pathway encrypts a new note under a key bound to a recipient's viewing
// public key; the
// Transact pathway drives an external prover to produce PublicInputs
// binding a tree's Merkle root, spent nullifiers, and output
// commitments, then ABI-encodes the adapter's adapt_params_hash for
// relayed (native-unshield) submissions.
package txbuilder

import (
	"crypto/rand"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/shieldhaven/engine/account"
	"github.com/shieldhaven/engine/chainparams"
	ourcrypto "github.com/shieldhaven/engine/crypto"
	"github.com/shieldhaven/engine/errs"
	"github.com/shieldhaven/engine/fieldtypes"
)

// randSource feeds every salt this package mints. Tests swap it for a
// deterministic reader to reproduce calldata byte-for-byte.
var randSource io.Reader = rand.Reader

// ShieldKeyDerivationLabel is the message a Signer signs to derive the
// shield private key; kept identical to crypto.ShieldKeyDerivationLabel
// so both packages agree on the label without a cyclic import.
const ShieldKeyDerivationLabel = ourcrypto.ShieldKeyDerivationLabel

// Signer is the external collaborator a Shield build consumes to derive
// the shield private key: sign_message(msg) -> signature bytes.
type Signer interface {
	SignMessage(msg []byte) ([]byte, error)
}

// Prover is the external collaborator a Transact build consumes: it
// proves a PublicInputs structure and returns an opaque proof blob.
type Prover interface {
	Prove(inputs PublicInputs) ([]byte, error)
}

// IntentTag distinguishes a transfer from an unshield at the circuit
// level.
type IntentTag uint8

const (
	IntentTransfer IntentTag = 0
	IntentUnshield IntentTag = 1
)

// ShieldNote is the plaintext note a Shield call encrypts for its
// recipient.
type ShieldNote struct {
	MasterPublicKey fieldtypes.Felt
	Random          [16]byte
	Value           *uint256.Int
	TokenData       fieldtypes.TokenData
}

// ShieldCall is the calldata-ready form of one shield output: the
// cleartext fields the contract needs plus the encrypted note bundle.
type ShieldCall struct {
	NPK              fieldtypes.Felt
	TokenData        fieldtypes.TokenData
	Value            *uint256.Int
	ShieldCiphertext []byte
}

// BuildShield encrypts note for a recipient holding recipientViewingPub,
// sealing the bundle under a key derived from the external signer's
// shield private key and bound to the recipient's viewing public key.
// The recipient recovers it with the same shield private key (shields
// deposit into the shielder's own balance, so recipient and signer
// belong to the same account).
func BuildShield(signer Signer, note ShieldNote, recipientViewingPub fieldtypes.Felt) (*ShieldCall, error) {
	sig, err := signer.SignMessage([]byte(ShieldKeyDerivationLabel))
	if err != nil {
		return nil, errs.ErrSigner
	}
	shieldKey := ourcrypto.DeriveShieldPrivateKey(sig)

	plaintext := encodeNotePlaintext(note)
	ciphertext, err := ourcrypto.EncryptNote(ourcrypto.ShieldNoteKey(shieldKey, recipientViewingPub), plaintext)
	if err != nil {
		return nil, err
	}

	return &ShieldCall{
		NPK:              note.MasterPublicKey,
		TokenData:        note.TokenData,
		Value:            note.Value,
		ShieldCiphertext: ciphertext,
	}, nil
}

// MulticallStep is one call within a multicall bundle: a selector label
// for readability plus the actual calldata and native value the adapter
// forwards to To.
type MulticallStep struct {
	Selector string
	To       fieldtypes.Address
	Value    *uint256.Int
	Data     []byte
}

// NativeShieldBundle is a ready-to-submit native-asset shield: a
// multicall whose outer transaction value equals the shielded amount.
type NativeShieldBundle struct {
	Steps       []MulticallStep
	NativeValue *uint256.Int
}

// BuildShieldNative builds the wrapBase+shield multicall for shielding
// the chain's native asset: the outer call's value carries the total
// native amount, which wrapBase converts before shield deposits it.
func BuildShieldNative(railgunAddress fieldtypes.Address, signer Signer, note ShieldNote, recipientViewingPub fieldtypes.Felt) (*NativeShieldBundle, error) {
	call, err := BuildShield(signer, note, recipientViewingPub)
	if err != nil {
		return nil, err
	}

	wrapData, err := PackWrapBase(note.Value)
	if err != nil {
		return nil, err
	}
	shieldData, err := PackShield([]*ShieldCall{call})
	if err != nil {
		return nil, err
	}

	return &NativeShieldBundle{
		Steps: []MulticallStep{
			{Selector: "wrapBase", To: railgunAddress, Value: note.Value, Data: wrapData},
			{Selector: "shield", To: railgunAddress, Value: uint256.NewInt(0), Data: shieldData},
		},
		NativeValue: note.Value,
	}, nil
}

func encodeNotePlaintext(note ShieldNote) []byte {
	out := make([]byte, 0, 16+32)
	out = append(out, note.Random[:]...)
	valueBytes := note.Value.Bytes32()
	out = append(out, valueBytes[:]...)
	return out
}

// TransactInput is one nullified note feeding a Transact proof.
type TransactInput struct {
	TreeNumber uint64
	Nullifier  fieldtypes.Felt
}

// TransactOutput is one new commitment a Transact proof produces.
type TransactOutput struct {
	Leaf       fieldtypes.Felt
	Ciphertext []byte
}

// PublicInputs is everything a Transact proof binds, per the pool
// circuit's public-input layout.
type PublicInputs struct {
	MerkleRoot           fieldtypes.Felt
	Nullifiers           []fieldtypes.Felt
	Commitments          []fieldtypes.Felt
	MinGasPrice          *uint256.Int
	Intent               IntentTag
	ChainID              uint64
	AdaptContractAddress fieldtypes.Address
	AdaptParamsHash      fieldtypes.Felt
}

// ActionCall is one call the relay adapter executes as part of
// action_data.
type ActionCall struct {
	To             fieldtypes.Address
	Selector       string
	Value          *uint256.Int
	Data           []byte
	RequireSuccess bool
}

// ActionData is the relay adapter's action bundle: a sequence of calls
// executed with a caller-supplied minimum gas limit, plus a fresh salt so
// two otherwise-identical relayed transactions never hash to the same
// adapt_params_hash.
type ActionData struct {
	Calls       []ActionCall
	MinGasLimit uint64
	Salt        [31]byte
}

// TransactBuild is one tree's Transact call: a proof over its
// PublicInputs plus the outputs' ciphertexts.
type TransactBuild struct {
	Tree    uint64
	Inputs  PublicInputs
	Outputs []TransactOutput
	Proof   []byte
}

// adaptParamsHashArgs is the ABI tuple adapt_params_hash is computed
// over: (nullifiers[][], treeCount, actionDataTuple).
var adaptParamsHashArgs = abi.Arguments{
	{Type: mustType("uint256[][]")},
	{Type: mustType("uint256")},
	{Type: mustType("bytes")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// AdaptParamsHash computes keccak256(ABI-encode(nullifiers, treeCount,
// actionDataBytes)). Plain transfers pass a nil actionData and the
// corresponding 32-byte zero hash; only relayed submissions (native-
// unshield) compute a real one.
func AdaptParamsHash(nullifiersByTree [][]fieldtypes.Felt, treeCount uint64, actionDataBytes []byte) (fieldtypes.Felt, error) {
	packedNullifiers := make([][]*big.Int, len(nullifiersByTree))
	for i, group := range nullifiersByTree {
		row := make([]*big.Int, len(group))
		for j, nf := range group {
			row[j] = nf.Big()
		}
		packedNullifiers[i] = row
	}

	packed, err := adaptParamsHashArgs.Pack(packedNullifiers, new(big.Int).SetUint64(treeCount), actionDataBytes)
	if err != nil {
		return fieldtypes.Felt{}, err
	}

	hash := crypto.Keccak256(packed)
	return fieldtypes.FeltFromBigInt(new(big.Int).SetBytes(hash)), nil
}

// BuildNativeUnshieldActionData builds the two-call action bundle a
// native-unshield submits: unwrapBase(0) then transfer(receiver, 0),
// both requiring success, under the caller's minGasLimit and a fresh
// 31-byte salt.
func BuildNativeUnshieldActionData(relayAdapt fieldtypes.Address, receiver fieldtypes.Address, minGasLimit uint64) (ActionData, error) {
	unwrapData, err := PackUnwrapBase(uint256.NewInt(0))
	if err != nil {
		return ActionData{}, err
	}
	transferData, err := PackTransferMany(
		[]fieldtypes.Address{fieldtypes.ZeroAddress},
		[]fieldtypes.Address{receiver},
		[]*uint256.Int{uint256.NewInt(0)},
	)
	if err != nil {
		return ActionData{}, err
	}
	salt, err := randomTransactSalt()
	if err != nil {
		return ActionData{}, err
	}

	// Both calls target the adapter: transfer is an adapter entrypoint
	// like unwrapBase, and the recipient only appears inside its packed
	// Transfer.to argument.
	return ActionData{
		Calls: []ActionCall{
			{To: relayAdapt, Selector: "unwrapBase", Value: uint256.NewInt(0), Data: unwrapData, RequireSuccess: true},
			{To: relayAdapt, Selector: "transfer", Value: uint256.NewInt(0), Data: transferData, RequireSuccess: true},
		},
		MinGasLimit: minGasLimit,
		Salt:        salt,
	}, nil
}

// BuildTransact drives the external prover for one tree's contribution
// to a transfer/unshield, consuming selection (the notes spent), the
// nullifiers spending them publishes, and the new output commitments. The
// proof binds every field of the resulting PublicInputs, nullifiers
// included, so they must be known before the prover runs.
func BuildTransact(
	network *chainparams.Network,
	prover Prover,
	selection account.Selection,
	root fieldtypes.Felt,
	nullifiers []fieldtypes.Felt,
	outputs []TransactOutput,
	intent IntentTag,
	minGasPrice *uint256.Int,
	adaptParamsHash fieldtypes.Felt,
) (*TransactBuild, error) {
	if len(selection.Notes) == 0 {
		return nil, errs.ErrInsufficientFunds
	}

	commitments := make([]fieldtypes.Felt, len(outputs))
	for i, o := range outputs {
		commitments[i] = o.Leaf
	}

	inputs := PublicInputs{
		MerkleRoot:           root,
		Nullifiers:           nullifiers,
		Commitments:          commitments,
		MinGasPrice:          minGasPrice,
		Intent:               intent,
		ChainID:              network.ChainID,
		AdaptContractAddress: network.RelayAdaptAddress,
		AdaptParamsHash:      adaptParamsHash,
	}

	proof, err := prover.Prove(inputs)
	if err != nil {
		return nil, errs.ErrProver
	}

	return &TransactBuild{Tree: selection.TreeNumber, Inputs: inputs, Outputs: outputs, Proof: proof}, nil
}

// randomTransactSalt returns the fresh 31-byte salt each relayed action
// bundle carries so two otherwise-identical submissions never collide.
func randomTransactSalt() ([31]byte, error) {
	var buf [31]byte
	_, err := io.ReadFull(randSource, buf[:])
	return buf, err
}
