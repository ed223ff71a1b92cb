// Package eventdecoder turns raw on-chain logs from the shielded pool
// into strongly typed records: Shield, Transact, and Nullified. Decoding
// is ABI-level and happens once per log; everything downstream consumes
// the tagged union this package produces instead of dynamically
// inspecting event args.
package eventdecoder

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/shieldhaven/engine/errs"
	"github.com/shieldhaven/engine/fieldtypes"
)

// poolABIJSON describes the three non-indexed events this decoder
// understands, with commitment/ciphertext structs flattened into
// parallel arrays so they unpack via go-ethereum's abi.Arguments.Unpack
// without a hand-registered tuple type.
const poolABIJSON = `[
	{"anonymous":false,"name":"Shield","type":"event","inputs":[
		{"name":"treeNumber","type":"uint256"},
		{"name":"startPosition","type":"uint256"},
		{"name":"npks","type":"uint256[]"},
		{"name":"tokenTypes","type":"uint8[]"},
		{"name":"tokenAddresses","type":"address[]"},
		{"name":"tokenSubIDs","type":"uint256[]"},
		{"name":"values","type":"uint256[]"},
		{"name":"shieldCiphertext","type":"bytes[]"},
		{"name":"fees","type":"uint256[]"}
	]},
	{"anonymous":false,"name":"Transact","type":"event","inputs":[
		{"name":"treeNumber","type":"uint256"},
		{"name":"startPosition","type":"uint256"},
		{"name":"hashes","type":"uint256[]"},
		{"name":"ciphertext","type":"bytes[]"}
	]},
	{"anonymous":false,"name":"Nullified","type":"event","inputs":[
		{"name":"treeNumber","type":"uint256"},
		{"name":"nullifiers","type":"uint256[]"}
	]}
]`

// EventKind tags the variant a decoded record holds.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventShield
	EventTransact
	EventNullified
)

// ShieldCommitment is one commitment within a Shield event.
type ShieldCommitment struct {
	NPK       fieldtypes.Felt
	TokenData fieldtypes.TokenData
	Value     *uint256.Int
}

// ShieldEvent is the decoded form of a Shield log.
type ShieldEvent struct {
	TreeNumber       uint64
	StartPosition    uint64
	Commitments      []ShieldCommitment
	ShieldCiphertext [][]byte
	Fees             []*uint256.Int
}

// TransactEvent is the decoded form of a Transact log. Each Hash is
// already Poseidon-hashed on-chain and becomes a leaf directly.
type TransactEvent struct {
	TreeNumber    uint64
	StartPosition uint64
	Hashes        []fieldtypes.Felt
	Ciphertext    [][]byte
}

// NullifiedEvent is the decoded form of a Nullified log.
type NullifiedEvent struct {
	TreeNumber uint64
	Nullifiers []fieldtypes.Felt
}

// DecodedEvent is the tagged union every log decodes into.
type DecodedEvent struct {
	Kind        EventKind
	BlockNumber uint64
	LogIndex    uint
	Shield      *ShieldEvent
	Transact    *TransactEvent
	Nullified   *NullifiedEvent
}

// Decoder parses raw logs against the shielded pool's event ABI.
type Decoder struct {
	contract     abi.ABI
	shieldSig    common.Hash
	transactSig  common.Hash
	nullifiedSig common.Hash
}

// New parses the embedded pool ABI. Panics only on a malformed literal,
// which would be a build-time bug in this package, not a runtime input.
func New() *Decoder {
	parsed, err := abi.JSON(strings.NewReader(poolABIJSON))
	if err != nil {
		panic(err)
	}
	return &Decoder{
		contract:     parsed,
		shieldSig:    parsed.Events["Shield"].ID,
		transactSig:  parsed.Events["Transact"].ID,
		nullifiedSig: parsed.Events["Nullified"].ID,
	}
}

// ContractABI exposes the parsed event ABI, mainly so callers outside
// this package can pack well-formed test logs.
func (d *Decoder) ContractABI() abi.ABI { return d.contract }

// ShieldSignature returns the topic0 for a Shield event.
func (d *Decoder) ShieldSignature() common.Hash { return d.shieldSig }

// TransactSignature returns the topic0 for a Transact event.
func (d *Decoder) TransactSignature() common.Hash { return d.transactSig }

// NullifiedSignature returns the topic0 for a Nullified event.
func (d *Decoder) NullifiedSignature() common.Hash { return d.nullifiedSig }

// Decode parses one log into its tagged-union variant. Logs whose topic0
// does not match a known event return ErrDecode; callers should log and
// skip, not treat this as fatal.
func (d *Decoder) Decode(log gethtypes.Log) (*DecodedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, errs.ErrDecode
	}

	out := &DecodedEvent{BlockNumber: log.BlockNumber, LogIndex: log.Index}

	switch log.Topics[0] {
	case d.shieldSig:
		ev, err := d.decodeShield(log.Data)
		if err != nil {
			return nil, err
		}
		out.Kind = EventShield
		out.Shield = ev
	case d.transactSig:
		ev, err := d.decodeTransact(log.Data)
		if err != nil {
			return nil, err
		}
		out.Kind = EventTransact
		out.Transact = ev
	case d.nullifiedSig:
		ev, err := d.decodeNullified(log.Data)
		if err != nil {
			return nil, err
		}
		out.Kind = EventNullified
		out.Nullified = ev
	default:
		return nil, errs.ErrDecode
	}
	return out, nil
}

func (d *Decoder) decodeShield(data []byte) (*ShieldEvent, error) {
	vals, err := d.contract.Events["Shield"].Inputs.Unpack(data)
	if err != nil {
		return nil, errs.ErrDecode
	}
	if len(vals) != 9 {
		return nil, errs.ErrDecode
	}

	treeNumber := vals[0].(*big.Int).Uint64()
	startPosition := vals[1].(*big.Int).Uint64()
	npks := vals[2].([]*big.Int)
	tokenTypes := vals[3].([]uint8)
	tokenAddresses := vals[4].([]common.Address)
	tokenSubIDs := vals[5].([]*big.Int)
	values := vals[6].([]*big.Int)
	ciphertext := vals[7].([][]byte)
	fees := vals[8].([]*big.Int)

	n := len(npks)
	if len(tokenTypes) != n || len(tokenAddresses) != n || len(tokenSubIDs) != n || len(values) != n {
		return nil, errs.ErrDecode
	}

	commitments := make([]ShieldCommitment, n)
	for i := 0; i < n; i++ {
		val, overflow := uint256.FromBig(values[i])
		if overflow {
			return nil, errs.ErrDecode
		}
		commitments[i] = ShieldCommitment{
			NPK: fieldtypes.FeltFromBigInt(npks[i]),
			TokenData: fieldtypes.TokenData{
				Type:    fieldtypes.TokenType(tokenTypes[i]),
				Address: tokenAddresses[i],
				SubID:   tokenSubIDs[i],
			},
			Value: val,
		}
	}

	feeVals := make([]*uint256.Int, len(fees))
	for i, feeBig := range fees {
		v, overflow := uint256.FromBig(feeBig)
		if overflow {
			return nil, errs.ErrDecode
		}
		feeVals[i] = v
	}

	return &ShieldEvent{
		TreeNumber:       treeNumber,
		StartPosition:    startPosition,
		Commitments:      commitments,
		ShieldCiphertext: ciphertext,
		Fees:             feeVals,
	}, nil
}

func (d *Decoder) decodeTransact(data []byte) (*TransactEvent, error) {
	vals, err := d.contract.Events["Transact"].Inputs.Unpack(data)
	if err != nil {
		return nil, errs.ErrDecode
	}
	if len(vals) != 4 {
		return nil, errs.ErrDecode
	}

	treeNumber := vals[0].(*big.Int).Uint64()
	startPosition := vals[1].(*big.Int).Uint64()
	rawHashes := vals[2].([]*big.Int)
	ciphertext := vals[3].([][]byte)

	hashes := make([]fieldtypes.Felt, len(rawHashes))
	for i, h := range rawHashes {
		hashes[i] = fieldtypes.FeltFromBigInt(h)
	}

	return &TransactEvent{
		TreeNumber:    treeNumber,
		StartPosition: startPosition,
		Hashes:        hashes,
		Ciphertext:    ciphertext,
	}, nil
}

func (d *Decoder) decodeNullified(data []byte) (*NullifiedEvent, error) {
	vals, err := d.contract.Events["Nullified"].Inputs.Unpack(data)
	if err != nil {
		return nil, errs.ErrDecode
	}
	if len(vals) != 2 {
		return nil, errs.ErrDecode
	}

	treeNumber := vals[0].(*big.Int).Uint64()
	rawNullifiers := vals[1].([]*big.Int)

	nullifiers := make([]fieldtypes.Felt, len(rawNullifiers))
	for i, nf := range rawNullifiers {
		nullifiers[i] = fieldtypes.FeltFromBigInt(nf)
	}

	return &NullifiedEvent{TreeNumber: treeNumber, Nullifiers: nullifiers}, nil
}
