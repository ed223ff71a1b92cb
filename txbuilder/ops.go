// Account-facing transaction-building entrypoints: the Shield, Transfer,
// Unshield, and native-unshield facades a wallet drives. They live here
// rather than on Account itself because they depend on Signer/Prover,
// and txbuilder already depends on account — a dependency back from
// account to txbuilder would cycle.
package txbuilder

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/holiman/uint256"

	"github.com/shieldhaven/engine/account"
	"github.com/shieldhaven/engine/chainparams"
	ourcrypto "github.com/shieldhaven/engine/crypto"
	"github.com/shieldhaven/engine/errs"
	"github.com/shieldhaven/engine/fieldtypes"
	"github.com/shieldhaven/engine/keys"
)

// DefaultMinGasLimit is the adapter gas floor used when a caller does
// not supply one.
const DefaultMinGasLimit = 100000

var poseidon = ourcrypto.NewPoseidonHasher()

func randomSalt16() ([16]byte, error) {
	var buf [16]byte
	_, err := io.ReadFull(randSource, buf[:])
	return buf, err
}

// Shield builds calldata that deposits value of token from acct's
// external balance into its own shielded balance: a single ShieldNote
// addressed to acct itself, sealed under the key BuildShield derives
// from the signer's shield private key and acct's viewing public key.
func Shield(network *chainparams.Network, signer Signer, acct *account.Account, token fieldtypes.Address, value *uint256.Int) (*CallData, error) {
	return ShieldMany(network, signer, acct, []fieldtypes.Address{token}, []*uint256.Int{value})
}

// ShieldMany builds one shield call bundling several tokens/values into
// a single shield([ShieldRequest]) transaction.
func ShieldMany(network *chainparams.Network, signer Signer, acct *account.Account, tokens []fieldtypes.Address, values []*uint256.Int) (*CallData, error) {
	if len(tokens) != len(values) {
		return nil, errors.New("txbuilder: tokens and values must be the same length")
	}

	calls := make([]*ShieldCall, len(tokens))
	for i, token := range tokens {
		random, err := randomSalt16()
		if err != nil {
			return nil, err
		}
		note := ShieldNote{
			MasterPublicKey: acct.KeyNode().MasterPublic,
			Random:          random,
			Value:           values[i],
			TokenData: fieldtypes.TokenData{
				Type:    fieldtypes.TokenTypeERC20,
				Address: network.NormalizeToken(token),
			},
		}
		call, err := BuildShield(signer, note, acct.KeyNode().ViewingPublic)
		if err != nil {
			return nil, err
		}
		calls[i] = call
	}

	data, err := PackShield(calls)
	if err != nil {
		return nil, err
	}
	return &CallData{To: network.RailgunAddress, Data: data, Value: uint256.NewInt(0)}, nil
}

// ShieldNative builds the wrapBase+shield multicall that deposits the
// chain's native asset, normalized to the network's WETH token data,
// into acct's own shielded balance. The outer calldata's Value carries
// the native amount the caller must attach.
func ShieldNative(network *chainparams.Network, signer Signer, acct *account.Account, value *uint256.Int) (*CallData, error) {
	random, err := randomSalt16()
	if err != nil {
		return nil, err
	}
	note := ShieldNote{
		MasterPublicKey: acct.KeyNode().MasterPublic,
		Random:          random,
		Value:           value,
		TokenData:       fieldtypes.TokenData{Type: fieldtypes.TokenTypeERC20, Address: network.WETH},
	}

	bundle, err := BuildShieldNative(network.RailgunAddress, signer, note, acct.KeyNode().ViewingPublic)
	if err != nil {
		return nil, err
	}

	data, err := PackMulticall(true, bundle.Steps)
	if err != nil {
		return nil, err
	}
	return &CallData{To: network.RailgunAddress, Data: data, Value: bundle.NativeValue}, nil
}

// outputNote is one output note this package mints for a Transact call:
// its plaintext value/random, the recipient it's encrypted for, and the
// resulting leaf/ciphertext pair BuildTransact needs.
type outputNote struct {
	masterPublicKey fieldtypes.Felt
	viewingKey      [32]byte
	value           *uint256.Int
	tokenData       fieldtypes.TokenData
}

func (n outputNote) build() (TransactOutput, error) {
	random, err := randomSalt16()
	if err != nil {
		return TransactOutput{}, err
	}
	npk, err := poseidon.NPK(n.masterPublicKey, random)
	if err != nil {
		return TransactOutput{}, err
	}
	valueBE := n.value.Bytes32()
	leaf, err := poseidon.CommitmentLeaf(npk, ourcrypto.TokenID(n.tokenData), valueBE)
	if err != nil {
		return TransactOutput{}, err
	}

	plaintext := make([]byte, 0, 16+32)
	plaintext = append(plaintext, random[:]...)
	plaintext = append(plaintext, valueBE[:]...)
	ciphertext, err := ourcrypto.EncryptNote(n.viewingKey, plaintext)
	if err != nil {
		return TransactOutput{}, err
	}

	return TransactOutput{Leaf: leaf, Ciphertext: ciphertext}, nil
}

// selectionNullifiers computes the nullifiers the account would publish
// to spend every note in sel, via its own notebook (the formula is
// Poseidon(nullifyingKey, absoluteLeafIndex), independent of which tree
// the note sits on).
func selectionNullifiers(acct *account.Account, sel account.Selection) ([]fieldtypes.Felt, error) {
	out := make([]fieldtypes.Felt, len(sel.Notes))
	for i, n := range sel.Notes {
		nf, err := acct.Notebook().Nullifier(n.Index)
		if err != nil {
			return nil, err
		}
		out[i] = nf
	}
	return out, nil
}

// verifySelection checks the spent notes' leaf positions against root
// before the expensive prover call: a failed check means the tree is
// dirty (root read mid-batch) or the selection indexes leaves the
// forest never saw.
func verifySelection(acct *account.Account, sel account.Selection, root fieldtypes.Felt) error {
	positions := make([]uint64, len(sel.Notes))
	for i, n := range sel.Notes {
		positions[i] = n.Index
	}
	mp, err := acct.Forest().MultiProof(sel.TreeNumber, positions)
	if err != nil {
		return err
	}
	ok, err := acct.Forest().VerifyMultiProof(root, mp)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrap(errs.ErrInvariantViolation, "selection does not verify against tree root")
	}
	return nil
}

// buildTransactForSelection drives one tree's Transact build: its root,
// nullifiers, and whatever change/recipient outputs the caller supplies.
func buildTransactForSelection(
	network *chainparams.Network,
	prover Prover,
	acct *account.Account,
	sel account.Selection,
	outputs []outputNote,
	intent IntentTag,
	adaptParamsHash fieldtypes.Felt,
) (*TransactBuild, error) {
	tree := acct.Forest().Tree(sel.TreeNumber)
	if tree == nil {
		return nil, errs.ErrTreeIndexOutOfRange
	}
	if err := verifySelection(acct, sel, tree.Root()); err != nil {
		return nil, err
	}

	nullifiers, err := selectionNullifiers(acct, sel)
	if err != nil {
		return nil, err
	}

	builtOutputs := make([]TransactOutput, len(outputs))
	for i, o := range outputs {
		bo, err := o.build()
		if err != nil {
			return nil, err
		}
		builtOutputs[i] = bo
	}

	return BuildTransact(network, prover, sel, tree.Root(), nullifiers, builtOutputs, intent, uint256.NewInt(0), adaptParamsHash)
}

// Transfer builds a private-to-private transact() call: acct spends
// value of token from its own unspent notes and sends it to receiver0zk,
// emitting a change note back to acct wherever a tree's contribution
// exceeds what is still owed.
func Transfer(network *chainparams.Network, prover Prover, acct *account.Account, token fieldtypes.Address, value *uint256.Int, receiver0zk string) (*CallData, error) {
	kind, err := account.ClassifyReceiver(receiver0zk)
	if err != nil {
		return nil, err
	}
	if kind != account.ReceiverShieldedAddress {
		return nil, errs.ErrBadReceiver
	}
	recv, err := keys.Decode(receiver0zk)
	if err != nil {
		return nil, err
	}

	normalized := network.NormalizeToken(token)
	selections, err := acct.SelectNotes(normalized, value)
	if err != nil {
		return nil, err
	}

	builds := make([]*TransactBuild, 0, len(selections))
	for _, sel := range selections {
		var outputs []outputNote
		if sel.Change != nil && !sel.Change.IsZero() {
			outputs = append(outputs, outputNote{
				masterPublicKey: acct.KeyNode().MasterPublic,
				viewingKey:      [32]byte(acct.KeyNode().Viewing),
				value:           sel.Change,
				tokenData:       fieldtypes.TokenData{Type: fieldtypes.TokenTypeERC20, Address: normalized},
			})
		}
		sendAmount := sumSelectionNotes(sel)
		if sel.Change != nil {
			sendAmount = new(uint256.Int).Sub(sendAmount, sel.Change)
		}
		outputs = append(outputs, outputNote{
			masterPublicKey: fieldtypes.Felt(recv.MasterPublicKey),
			viewingKey:      recv.ViewingPublic,
			value:           sendAmount,
			tokenData:       fieldtypes.TokenData{Type: fieldtypes.TokenTypeERC20, Address: normalized},
		})

		// Plain transfers are never relayed through the adapter, so
		// adapt_params_hash is the 32-byte zero value.
		build, err := buildTransactForSelection(network, prover, acct, sel, outputs, IntentTransfer, fieldtypes.Felt{})
		if err != nil {
			return nil, err
		}
		builds = append(builds, build)
	}

	data, err := PackTransact(builds, nil)
	if err != nil {
		return nil, err
	}
	return &CallData{To: network.RailgunAddress, Data: data, Value: uint256.NewInt(0)}, nil
}

func sumSelectionNotes(sel account.Selection) *uint256.Int {
	sum := uint256.NewInt(0)
	for _, n := range sel.Notes {
		sum.Add(sum, n.Note.Value)
	}
	return sum
}

// Unshield builds a transact() call that withdraws value of token from
// acct's shielded balance to the public address receiver0x. Any
// overshoot on the contributing tree returns to acct as a change note;
// the withdrawn amount itself is carried as plain calldata alongside the
// proof, since PublicInputs has no recipient/value field of its own.
func Unshield(network *chainparams.Network, prover Prover, acct *account.Account, token fieldtypes.Address, value *uint256.Int, receiver0x fieldtypes.Address) (*CallData, error) {
	kind, err := account.ClassifyReceiver(receiver0x.Hex())
	if err != nil {
		return nil, err
	}
	if kind != account.ReceiverPublicAddress {
		return nil, errs.ErrBadReceiver
	}

	normalized := network.NormalizeToken(token)
	selections, err := acct.SelectNotes(normalized, value)
	if err != nil {
		return nil, err
	}

	builds := make([]*TransactBuild, 0, len(selections))
	rows := make([]unshieldRow, 0, len(selections))
	for _, sel := range selections {
		var outputs []outputNote
		if sel.Change != nil && !sel.Change.IsZero() {
			outputs = append(outputs, outputNote{
				masterPublicKey: acct.KeyNode().MasterPublic,
				viewingKey:      [32]byte(acct.KeyNode().Viewing),
				value:           sel.Change,
				tokenData:       fieldtypes.TokenData{Type: fieldtypes.TokenTypeERC20, Address: normalized},
			})
		}
		payout := sumSelectionNotes(sel)
		if sel.Change != nil {
			payout = new(uint256.Int).Sub(payout, sel.Change)
		}

		build, err := buildTransactForSelection(network, prover, acct, sel, outputs, IntentUnshield, fieldtypes.Felt{})
		if err != nil {
			return nil, err
		}
		builds = append(builds, build)
		rows = append(rows, unshieldRow{token: normalized, to: receiver0x, value: payout})
	}

	data, err := PackTransact(builds, rows)
	if err != nil {
		return nil, err
	}
	return &CallData{To: network.RailgunAddress, Data: data, Value: uint256.NewInt(0)}, nil
}

// UnshieldNative builds a relay([PublicInputs], ActionData) call that
// withdraws value of the chain's native asset to receiver0x: the
// transact proof's output is relayed through the adapter, which
// unwraps WETH and forwards native value to the recipient, so
// adapt_params_hash is computed over the real action bundle rather than
// passed as zero.
func UnshieldNative(network *chainparams.Network, prover Prover, acct *account.Account, value *uint256.Int, receiver0x fieldtypes.Address) (*CallData, error) {
	kind, err := account.ClassifyReceiver(receiver0x.Hex())
	if err != nil {
		return nil, err
	}
	if kind != account.ReceiverPublicAddress {
		return nil, errs.ErrBadReceiver
	}

	selections, err := acct.SelectNotes(network.WETH, value)
	if err != nil {
		return nil, err
	}

	actionData, err := BuildNativeUnshieldActionData(network.RelayAdaptAddress, receiver0x, DefaultMinGasLimit)
	if err != nil {
		return nil, err
	}
	actionDataBytes := encodeActionDataForHash(actionData)

	builds := make([]*TransactBuild, 0, len(selections))
	nullifiersByTree := make([][]fieldtypes.Felt, 0, len(selections))
	for _, sel := range selections {
		nf, err := selectionNullifiers(acct, sel)
		if err != nil {
			return nil, err
		}
		nullifiersByTree = append(nullifiersByTree, nf)
	}
	adaptParamsHash, err := AdaptParamsHash(nullifiersByTree, uint64(len(selections)), actionDataBytes)
	if err != nil {
		return nil, err
	}

	for i, sel := range selections {
		var outputs []outputNote
		if sel.Change != nil && !sel.Change.IsZero() {
			outputs = append(outputs, outputNote{
				masterPublicKey: acct.KeyNode().MasterPublic,
				viewingKey:      [32]byte(acct.KeyNode().Viewing),
				value:           sel.Change,
				tokenData:       fieldtypes.TokenData{Type: fieldtypes.TokenTypeERC20, Address: network.WETH},
			})
		}

		tree := acct.Forest().Tree(sel.TreeNumber)
		if tree == nil {
			return nil, errs.ErrTreeIndexOutOfRange
		}
		if err := verifySelection(acct, sel, tree.Root()); err != nil {
			return nil, err
		}
		builtOutputs := make([]TransactOutput, len(outputs))
		for j, o := range outputs {
			bo, err := o.build()
			if err != nil {
				return nil, err
			}
			builtOutputs[j] = bo
		}

		build, err := BuildTransact(network, prover, sel, tree.Root(), nullifiersByTree[i], builtOutputs, IntentUnshield, uint256.NewInt(0), adaptParamsHash)
		if err != nil {
			return nil, err
		}
		builds = append(builds, build)
	}

	data, err := PackRelay(builds, nil, actionData)
	if err != nil {
		return nil, err
	}
	return &CallData{To: network.RelayAdaptAddress, Data: data, Value: uint256.NewInt(0)}, nil
}

// encodeActionDataForHash packs the action bundle's salt, gas floor, and
// calls into the bytes blob AdaptParamsHash hashes alongside the
// nullifiers and tree count, giving the adapter's recipient/value pair a
// binding the proof covers.
func encodeActionDataForHash(action ActionData) []byte {
	out := make([]byte, 0, 31+8)
	out = append(out, action.Salt[:]...)
	var gasBuf [8]byte
	for i := 0; i < 8; i++ {
		gasBuf[7-i] = byte(action.MinGasLimit >> (8 * i))
	}
	out = append(out, gasBuf[:]...)
	for _, c := range action.Calls {
		out = append(out, c.To[:]...)
		out = append(out, c.Data...)
	}
	return out
}
