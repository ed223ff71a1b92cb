package notebook

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/shieldhaven/engine/errs"
	"github.com/shieldhaven/engine/fieldtypes"
)

type fakeNullifiers struct {
	spent map[fieldtypes.Felt]bool
}

func (f fakeNullifiers) IsNullified(nf fieldtypes.Felt) bool { return f.spent[nf] }

func weth() fieldtypes.Address {
	var a fieldtypes.Address
	a[19] = 0xAA
	return a
}

func TestSetNoteWriteOnce(t *testing.T) {
	nb := New(fieldtypes.Felt{1})
	note := &Note{Value: uint256.NewInt(100), TokenData: fieldtypes.TokenData{Address: weth()}}

	require.NoError(t, nb.SetNote(0, 0, note))
	err := nb.SetNote(0, 0, note)
	require.ErrorIs(t, err, errs.ErrInvariantViolation)
}

func TestGetBalanceSumsUnspent(t *testing.T) {
	nb := New(fieldtypes.Felt{1})
	token := weth()
	require.NoError(t, nb.SetNote(0, 0, &Note{Value: uint256.NewInt(70), TokenData: fieldtypes.TokenData{Address: token}}))
	require.NoError(t, nb.SetNote(0, 1, &Note{Value: uint256.NewInt(40), TokenData: fieldtypes.TokenData{Address: token}}))

	bal, err := nb.GetBalance(0, token, fakeNullifiers{spent: map[fieldtypes.Felt]bool{}})
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(110), bal)
}

func TestGetBalanceExcludesSpent(t *testing.T) {
	nb := New(fieldtypes.Felt{1})
	token := weth()
	require.NoError(t, nb.SetNote(0, 0, &Note{Value: uint256.NewInt(70), TokenData: fieldtypes.TokenData{Address: token}}))
	require.NoError(t, nb.SetNote(0, 1, &Note{Value: uint256.NewInt(40), TokenData: fieldtypes.TokenData{Address: token}}))

	nf0, err := nb.Nullifier(0)
	require.NoError(t, err)

	bal, err := nb.GetBalance(0, token, fakeNullifiers{spent: map[fieldtypes.Felt]bool{nf0: true}})
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(40), bal)
}

func TestGetBalanceFiltersByToken(t *testing.T) {
	nb := New(fieldtypes.Felt{1})
	token := weth()
	var other fieldtypes.Address
	other[19] = 0xBB

	require.NoError(t, nb.SetNote(0, 0, &Note{Value: uint256.NewInt(70), TokenData: fieldtypes.TokenData{Address: token}}))
	require.NoError(t, nb.SetNote(0, 1, &Note{Value: uint256.NewInt(500), TokenData: fieldtypes.TokenData{Address: other}}))

	bal, err := nb.GetBalance(0, token, fakeNullifiers{spent: map[fieldtypes.Felt]bool{}})
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(70), bal)
}

func TestGetUnspentNotesOrderedByIndex(t *testing.T) {
	nb := New(fieldtypes.Felt{1})
	token := weth()
	require.NoError(t, nb.SetNote(0, 5, &Note{Value: uint256.NewInt(1), TokenData: fieldtypes.TokenData{Address: token}}))
	require.NoError(t, nb.SetNote(0, 2, &Note{Value: uint256.NewInt(2), TokenData: fieldtypes.TokenData{Address: token}}))
	require.NoError(t, nb.SetNote(0, 9, &Note{Value: uint256.NewInt(3), TokenData: fieldtypes.TokenData{Address: token}}))

	notes, err := nb.GetUnspentNotes(0, token, fakeNullifiers{spent: map[fieldtypes.Felt]bool{}})
	require.NoError(t, err)
	require.Len(t, notes, 3)
	require.Equal(t, []uint64{2, 5, 9}, []uint64{notes[0].Index, notes[1].Index, notes[2].Index})
}

func TestGetUnspentNotesEmptyTree(t *testing.T) {
	nb := New(fieldtypes.Felt{1})
	notes, err := nb.GetUnspentNotes(3, weth(), nil)
	require.NoError(t, err)
	require.Empty(t, notes)
}
