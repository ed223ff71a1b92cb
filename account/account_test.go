package account

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/shieldhaven/engine/chainparams"
	"github.com/shieldhaven/engine/errs"
	"github.com/shieldhaven/engine/fieldtypes"
	"github.com/shieldhaven/engine/keys"
	"github.com/shieldhaven/engine/merkleforest"
	"github.com/shieldhaven/engine/notebook"
)

func testAccount(t *testing.T) *Account {
	t.Helper()
	node, err := keys.FromPrivateKeys([32]byte{1}, [32]byte{2})
	require.NoError(t, err)
	forest := merkleforest.New()
	forest.InsertLeaves(0, []fieldtypes.Felt{{1}}, 0)
	require.NoError(t, forest.RebuildSparse(0))
	return New(chainparams.Mainnet(), node, forest)
}

func TestGetAddressDeterministic(t *testing.T) {
	a := testAccount(t)
	addr1, err := a.GetAddress()
	require.NoError(t, err)
	addr2, err := a.GetAddress()
	require.NoError(t, err)
	require.Equal(t, addr1, addr2)
}

func TestGetBalanceSumsNotesInTree(t *testing.T) {
	a := testAccount(t)
	token := fieldtypes.Address{0xAA}
	require.NoError(t, a.SetNote(0, 0, &notebook.Note{Value: uint256.NewInt(10), TokenData: fieldtypes.TokenData{Address: token}}))
	require.NoError(t, a.SetNote(0, 1, &notebook.Note{Value: uint256.NewInt(20), TokenData: fieldtypes.TokenData{Address: token}}))

	bal, err := a.GetBalance(token)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(30), bal)
}

func TestSelectNotesGreedyAndChange(t *testing.T) {
	a := testAccount(t)
	token := fieldtypes.Address{0xAA}
	require.NoError(t, a.SetNote(0, 0, &notebook.Note{Value: uint256.NewInt(70), TokenData: fieldtypes.TokenData{Address: token}}))
	require.NoError(t, a.SetNote(0, 1, &notebook.Note{Value: uint256.NewInt(40), TokenData: fieldtypes.TokenData{Address: token}}))

	selections, err := a.SelectNotes(token, uint256.NewInt(100))
	require.NoError(t, err)
	require.Len(t, selections, 1)
	require.Equal(t, uint64(0), selections[0].TreeNumber)
	require.Len(t, selections[0].Notes, 2)
	require.Equal(t, uint256.NewInt(10), selections[0].Change)
}

func TestSelectNotesInsufficientFunds(t *testing.T) {
	a := testAccount(t)
	token := fieldtypes.Address{0xAA}
	require.NoError(t, a.SetNote(0, 0, &notebook.Note{Value: uint256.NewInt(5), TokenData: fieldtypes.TokenData{Address: token}}))

	_, err := a.SelectNotes(token, uint256.NewInt(100))
	require.ErrorIs(t, err, errs.ErrInsufficientFunds)
}

func TestClassifyReceiver(t *testing.T) {
	kind, err := ClassifyReceiver("0xabc123")
	require.NoError(t, err)
	require.Equal(t, ReceiverPublicAddress, kind)

	kind, err = ClassifyReceiver("0zkabc123")
	require.NoError(t, err)
	require.Equal(t, ReceiverShieldedAddress, kind)

	_, err = ClassifyReceiver("garbage")
	require.ErrorIs(t, err, errs.ErrBadReceiver)
}
