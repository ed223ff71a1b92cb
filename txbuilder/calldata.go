package txbuilder

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/shieldhaven/engine/fieldtypes"
)

// calldataABIJSON describes the shielded pool's and relay adapter's
// outer entrypoints. Each tuple-shaped argument the real contract takes
// is flattened into parallel top-level arrays, the same ABI-level
// simplification eventdecoder uses to decode Shield/Transact/Nullified
// logs: this engine only needs calldata that packs and unpacks
// consistently with itself, not a bit-exact replica of the real
// RAILGUN contract's ABI, which on-chain verification (out of scope)
// would require.
const calldataABIJSON = `[
	{"type":"function","name":"shield","stateMutability":"payable","inputs":[
		{"name":"npks","type":"uint256[]"},
		{"name":"tokenTypes","type":"uint8[]"},
		{"name":"tokenAddresses","type":"address[]"},
		{"name":"tokenSubIDs","type":"uint256[]"},
		{"name":"values","type":"uint256[]"},
		{"name":"shieldCiphertext","type":"bytes[]"}
	],"outputs":[]},
	{"type":"function","name":"transact","stateMutability":"nonpayable","inputs":[
		{"name":"merkleRoots","type":"uint256[]"},
		{"name":"nullifiers","type":"uint256[][]"},
		{"name":"commitments","type":"uint256[][]"},
		{"name":"minGasPrices","type":"uint256[]"},
		{"name":"intents","type":"uint8[]"},
		{"name":"chainIDs","type":"uint256[]"},
		{"name":"adaptContractAddresses","type":"address[]"},
		{"name":"adaptParamsHashes","type":"uint256[]"},
		{"name":"proofs","type":"bytes[]"},
		{"name":"ciphertexts","type":"bytes[][]"},
		{"name":"unshieldTokens","type":"address[]"},
		{"name":"unshieldTos","type":"address[]"},
		{"name":"unshieldValues","type":"uint256[]"}
	],"outputs":[]},
	{"type":"function","name":"relay","stateMutability":"nonpayable","inputs":[
		{"name":"merkleRoots","type":"uint256[]"},
		{"name":"nullifiers","type":"uint256[][]"},
		{"name":"commitments","type":"uint256[][]"},
		{"name":"minGasPrices","type":"uint256[]"},
		{"name":"intents","type":"uint8[]"},
		{"name":"chainIDs","type":"uint256[]"},
		{"name":"adaptContractAddresses","type":"address[]"},
		{"name":"adaptParamsHashes","type":"uint256[]"},
		{"name":"proofs","type":"bytes[]"},
		{"name":"ciphertexts","type":"bytes[][]"},
		{"name":"unshieldTokens","type":"address[]"},
		{"name":"unshieldTos","type":"address[]"},
		{"name":"unshieldValues","type":"uint256[]"},
		{"name":"actionMinGasLimit","type":"uint256"},
		{"name":"actionSalt","type":"bytes31"},
		{"name":"actionTos","type":"address[]"},
		{"name":"actionSelectors","type":"string[]"},
		{"name":"actionValues","type":"uint256[]"},
		{"name":"actionDatas","type":"bytes[]"},
		{"name":"actionRequireSuccess","type":"bool[]"}
	],"outputs":[]},
	{"type":"function","name":"multicall","stateMutability":"payable","inputs":[
		{"name":"requireSuccess","type":"bool"},
		{"name":"callTos","type":"address[]"},
		{"name":"callSelectors","type":"string[]"},
		{"name":"callValues","type":"uint256[]"},
		{"name":"callDatas","type":"bytes[]"}
	],"outputs":[]},
	{"type":"function","name":"wrapBase","stateMutability":"payable","inputs":[
		{"name":"amount","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"unwrapBase","stateMutability":"nonpayable","inputs":[
		{"name":"amount","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"transferMany","stateMutability":"nonpayable","inputs":[
		{"name":"tokens","type":"address[]"},
		{"name":"tos","type":"address[]"},
		{"name":"values","type":"uint256[]"}
	],"outputs":[]}
]`

var calldataABI = mustParseCalldataABI()

func mustParseCalldataABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(calldataABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}

// CallData is the to/data/value triple a caller submits via the
// external signer's send_transaction. The core never signs; it only
// produces this.
type CallData struct {
	To    fieldtypes.Address
	Data  []byte
	Value *uint256.Int
}

func bigOrZero(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

// PackShield ABI-encodes a shield([ShieldRequest]) call from the given
// per-commitment calls.
func PackShield(calls []*ShieldCall) ([]byte, error) {
	n := len(calls)
	npks := make([]*big.Int, n)
	tokenTypes := make([]uint8, n)
	tokenAddresses := make([]common.Address, n)
	tokenSubIDs := make([]*big.Int, n)
	values := make([]*big.Int, n)
	ciphertexts := make([][]byte, n)

	for i, c := range calls {
		npks[i] = c.NPK.Big()
		tokenTypes[i] = uint8(c.TokenData.Type)
		tokenAddresses[i] = c.TokenData.Address
		sub := c.TokenData.SubID
		if sub == nil {
			sub = new(big.Int)
		}
		tokenSubIDs[i] = sub
		values[i] = bigOrZero(c.Value)
		ciphertexts[i] = c.ShieldCiphertext
	}

	return calldataABI.Pack("shield", npks, tokenTypes, tokenAddresses, tokenSubIDs, values, ciphertexts)
}

// unshieldRow is one tree's plaintext unshield payout, packed alongside
// its Transact proof: the real contract circuit binds Intent/Commitments
// (§4.7), but the public recipient and value for a non-native unshield
// still have to reach the contract as plain calldata, since PublicInputs
// carries no recipient/value field of its own.
type unshieldRow struct {
	token fieldtypes.Address
	to    fieldtypes.Address
	value *uint256.Int
}

func packTransactRows(builds []*TransactBuild, rows []unshieldRow) ([]interface{}, error) {
	n := len(builds)
	merkleRoots := make([]*big.Int, n)
	nullifiers := make([][]*big.Int, n)
	commitments := make([][]*big.Int, n)
	minGasPrices := make([]*big.Int, n)
	intents := make([]uint8, n)
	chainIDs := make([]*big.Int, n)
	adaptContracts := make([]common.Address, n)
	adaptParamsHashes := make([]*big.Int, n)
	proofs := make([][]byte, n)
	ciphertexts := make([][][]byte, n)

	for i, b := range builds {
		merkleRoots[i] = b.Inputs.MerkleRoot.Big()
		nf := make([]*big.Int, len(b.Inputs.Nullifiers))
		for j, n := range b.Inputs.Nullifiers {
			nf[j] = n.Big()
		}
		nullifiers[i] = nf
		cm := make([]*big.Int, len(b.Inputs.Commitments))
		for j, c := range b.Inputs.Commitments {
			cm[j] = c.Big()
		}
		commitments[i] = cm
		minGasPrices[i] = bigOrZero(b.Inputs.MinGasPrice)
		intents[i] = uint8(b.Inputs.Intent)
		chainIDs[i] = new(big.Int).SetUint64(b.Inputs.ChainID)
		adaptContracts[i] = b.Inputs.AdaptContractAddress
		adaptParamsHashes[i] = b.Inputs.AdaptParamsHash.Big()
		proofs[i] = b.Proof
		ct := make([][]byte, len(b.Outputs))
		for j, o := range b.Outputs {
			ct[j] = o.Ciphertext
		}
		ciphertexts[i] = ct
	}

	unshieldTokens := make([]common.Address, n)
	unshieldTos := make([]common.Address, n)
	unshieldValues := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		unshieldValues[i] = new(big.Int)
	}
	for i, row := range rows {
		if i >= n {
			break
		}
		unshieldTokens[i] = row.token
		unshieldTos[i] = row.to
		unshieldValues[i] = bigOrZero(row.value)
	}

	return []interface{}{
		merkleRoots, nullifiers, commitments, minGasPrices, intents, chainIDs,
		adaptContracts, adaptParamsHashes, proofs, ciphertexts,
		unshieldTokens, unshieldTos, unshieldValues,
	}, nil
}

// PackTransact ABI-encodes a transact([PublicInputs]) call over builds,
// with rows[i] (if present) carrying tree i's plaintext unshield payout.
func PackTransact(builds []*TransactBuild, rows []unshieldRow) ([]byte, error) {
	args, err := packTransactRows(builds, rows)
	if err != nil {
		return nil, err
	}
	return calldataABI.Pack("transact", args...)
}

// PackRelay ABI-encodes a relay([PublicInputs], ActionData) call: the
// same transact() argument list plus the adapter's action bundle.
func PackRelay(builds []*TransactBuild, rows []unshieldRow, action ActionData) ([]byte, error) {
	args, err := packTransactRows(builds, rows)
	if err != nil {
		return nil, err
	}

	tos := make([]common.Address, len(action.Calls))
	selectors := make([]string, len(action.Calls))
	values := make([]*big.Int, len(action.Calls))
	datas := make([][]byte, len(action.Calls))
	requireSuccess := make([]bool, len(action.Calls))
	for i, c := range action.Calls {
		tos[i] = c.To
		selectors[i] = c.Selector
		values[i] = bigOrZero(c.Value)
		datas[i] = c.Data
		requireSuccess[i] = c.RequireSuccess
	}

	args = append(args,
		new(big.Int).SetUint64(action.MinGasLimit),
		action.Salt,
		tos, selectors, values, datas, requireSuccess,
	)
	return calldataABI.Pack("relay", args...)
}

// PackMulticall ABI-encodes a multicall(bool, [Call]) call from steps.
func PackMulticall(requireSuccess bool, steps []MulticallStep) ([]byte, error) {
	n := len(steps)
	addrs := make([]common.Address, n)
	selectors := make([]string, n)
	vals := make([]*big.Int, n)
	datas := make([][]byte, n)
	for i, s := range steps {
		addrs[i] = s.To
		selectors[i] = s.Selector
		vals[i] = bigOrZero(s.Value)
		datas[i] = s.Data
	}
	return calldataABI.Pack("multicall", requireSuccess, addrs, selectors, vals, datas)
}

// PackWrapBase ABI-encodes a wrapBase(uint256) call.
func PackWrapBase(amount *uint256.Int) ([]byte, error) {
	return calldataABI.Pack("wrapBase", bigOrZero(amount))
}

// PackUnwrapBase ABI-encodes an unwrapBase(uint256) call.
func PackUnwrapBase(amount *uint256.Int) ([]byte, error) {
	return calldataABI.Pack("unwrapBase", bigOrZero(amount))
}

// PackTransferMany ABI-encodes a transferMany(address[], address[],
// uint256[]) call, the flattened form of the adapter's transfer([Transfer])
// entrypoint.
func PackTransferMany(tokens, tos []fieldtypes.Address, values []*uint256.Int) ([]byte, error) {
	n := len(tokens)
	tokenAddrs := make([]common.Address, n)
	toAddrs := make([]common.Address, n)
	vals := make([]*big.Int, n)
	for i := range tokens {
		tokenAddrs[i] = tokens[i]
		toAddrs[i] = tos[i]
		vals[i] = bigOrZero(values[i])
	}
	return calldataABI.Pack("transferMany", tokenAddrs, toAddrs, vals)
}
