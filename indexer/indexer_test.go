package indexer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/shieldhaven/engine/chainparams"
	ourcrypto "github.com/shieldhaven/engine/crypto"
	"github.com/shieldhaven/engine/eventdecoder"
	"github.com/shieldhaven/engine/fieldtypes"
	"github.com/shieldhaven/engine/notebook"
)

type stubAccount struct {
	secretNPK fieldtypes.Felt
	notes     map[[2]uint64]*notebook.Note
	endBlock  uint64
}

func newStubAccount(npk fieldtypes.Felt) *stubAccount {
	return &stubAccount{secretNPK: npk, notes: make(map[[2]uint64]*notebook.Note)}
}

func (s *stubAccount) TryDecryptShield(c eventdecoder.ShieldCommitment, ciphertext []byte) (*notebook.Note, bool) {
	if c.NPK != s.secretNPK {
		return nil, false
	}
	return &notebook.Note{Value: uint256.NewInt(0).Set(c.Value), TokenData: c.TokenData}, true
}

func (s *stubAccount) TryDecryptTransact(leaf fieldtypes.Felt, ciphertext []byte) (*notebook.Note, bool) {
	return nil, false
}

func (s *stubAccount) SetNote(treeNumber, index uint64, note *notebook.Note) error {
	s.notes[[2]uint64{treeNumber, index}] = note
	return nil
}

func (s *stubAccount) EndBlock() uint64     { return s.endBlock }
func (s *stubAccount) SetEndBlock(b uint64) { s.endBlock = b }

func buildShieldLog(d *eventdecoder.Decoder, npk, value int64, ciphertext []byte, blockNum uint64) gethtypes.Log {
	packed, err := d.ContractABI().Events["Shield"].Inputs.Pack(
		big.NewInt(0),
		big.NewInt(0),
		[]*big.Int{big.NewInt(npk)},
		[]uint8{0},
		[]common.Address{{0xAA}},
		[]*big.Int{big.NewInt(0)},
		[]*big.Int{big.NewInt(value)},
		[][]byte{ciphertext},
		[]*big.Int{big.NewInt(0)},
	)
	if err != nil {
		panic(err)
	}
	return gethtypes.Log{
		Topics:      []common.Hash{d.ShieldSignature()},
		Data:        packed,
		BlockNumber: blockNum,
	}
}

func TestRegisterAccountFanOut(t *testing.T) {
	ix := New(chainparams.Mainnet())
	a1 := newStubAccount(fieldtypes.Felt{1})
	a2 := newStubAccount(fieldtypes.Felt{2})
	ix.RegisterAccount(a1)
	ix.RegisterAccount(a2)
	require.Len(t, ix.accounts, 2)
}

func TestProcessLogNullifiedMutatesForestOnly(t *testing.T) {
	ix := New(chainparams.Mainnet())
	ix.Forest().InsertLeaves(0, []fieldtypes.Felt{{9}}, 0)
	require.NoError(t, ix.Forest().RebuildSparse(0))

	d := eventdecoder.New()
	packed, err := d.ContractABI().Events["Nullified"].Inputs.Pack(big.NewInt(0), []*big.Int{big.NewInt(1)})
	require.NoError(t, err)
	log := gethtypes.Log{Topics: []common.Hash{d.NullifiedSignature()}, Data: packed}

	ix.ProcessLog(log, false)
	nf := fieldtypes.FeltFromBigInt(big.NewInt(1))
	require.True(t, ix.Forest().Tree(0).IsNullified(nf))
}

func TestProcessLogsAdvancesEndBlock(t *testing.T) {
	ix := New(chainparams.Mainnet())
	account := newStubAccount(fieldtypes.Felt{1})
	ix.RegisterAccount(account)

	start := ix.EndBlock()
	d := eventdecoder.New()
	log1 := buildShieldLog(d, 111, 100, []byte("ct"), start+500)
	log2 := buildShieldLog(d, 222, 200, []byte("ct"), start+600)

	err := ix.ProcessLogs([]gethtypes.Log{log1, log2}, ProcessOpts{})
	require.NoError(t, err)
	require.Equal(t, start+600, ix.EndBlock())
	require.Equal(t, start+600, account.EndBlock())
}

func TestProcessLogsSkipMerkleTreeLeavesForestUntouched(t *testing.T) {
	ix := New(chainparams.Mainnet())
	d := eventdecoder.New()
	log1 := buildShieldLog(d, 111, 100, []byte("ct"), 500)

	err := ix.ProcessLogs([]gethtypes.Log{log1}, ProcessOpts{SkipMerkleTree: true})
	require.NoError(t, err)
	require.Nil(t, ix.Forest().Tree(0))
}

func TestProcessLogUnparseableLogDropped(t *testing.T) {
	ix := New(chainparams.Mainnet())
	require.NotPanics(t, func() {
		ix.ProcessLog(gethtypes.Log{Topics: []common.Hash{{0xFF}}}, false)
	})
}

func TestProcessLogShieldDecryptsMatchingAccount(t *testing.T) {
	ix := New(chainparams.Mainnet())
	npk := fieldtypes.FeltFromBigInt(big.NewInt(111))
	account := newStubAccount(npk)
	ix.RegisterAccount(account)

	d := eventdecoder.New()
	log := buildShieldLog(d, 111, 42, []byte("ct"), 10)

	ix.ProcessLog(log, false)
	note, ok := account.notes[[2]uint64{0, 0}]
	require.True(t, ok)
	require.Equal(t, uint256.NewInt(42), note.Value)
}

func TestSerializedStateRoundTrip(t *testing.T) {
	ix := New(chainparams.Mainnet())
	d := eventdecoder.New()
	log := buildShieldLog(d, 111, 42, []byte("ct"), ix.EndBlock()+1000)
	require.NoError(t, ix.ProcessLogs([]gethtypes.Log{log}, ProcessOpts{}))

	wantRoot, err := ix.Forest().Root(0)
	require.NoError(t, err)

	blob, err := ix.GetSerializedState()
	require.NoError(t, err)

	restored, err := Restore(chainparams.Mainnet(), blob)
	require.NoError(t, err)
	require.Equal(t, ix.EndBlock(), restored.EndBlock())
	gotRoot, err := restored.Forest().Root(0)
	require.NoError(t, err)
	require.Equal(t, wantRoot, gotRoot)
}

func TestRestoreRejectsMalformedBlob(t *testing.T) {
	_, err := Restore(chainparams.Mainnet(), []byte("not json"))
	require.Error(t, err)
}

func TestTokenIDDeterministic(t *testing.T) {
	td := fieldtypes.TokenData{Address: fieldtypes.Address{0xAA}}
	a := ourcrypto.TokenID(td)
	b := ourcrypto.TokenID(td)
	require.Equal(t, a, b)

	other := fieldtypes.TokenData{Address: fieldtypes.Address{0xBB}}
	require.NotEqual(t, a, ourcrypto.TokenID(other))
}
