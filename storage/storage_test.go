package storage

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/shieldhaven/engine/errs"
	"github.com/shieldhaven/engine/fieldtypes"
	"github.com/shieldhaven/engine/merkleforest"
	"github.com/shieldhaven/engine/notebook"
)

func TestForestSnapshotRoundTrip(t *testing.T) {
	forest := merkleforest.New()
	_, _, err := forest.InsertLeaves(0, []fieldtypes.Felt{{1}, {2}, {3}}, 0)
	require.NoError(t, err)
	require.NoError(t, forest.RebuildSparse(0))
	wantRoot, err := forest.Root(0)
	require.NoError(t, err)

	blob, err := SerializeForest(forest)
	require.NoError(t, err)

	loaded, err := DeserializeForest(blob)
	require.NoError(t, err)
	gotRoot, err := loaded.Root(0)
	require.NoError(t, err)
	require.Equal(t, wantRoot, gotRoot)
}

func TestForestSnapshotPreservesNullifiers(t *testing.T) {
	forest := merkleforest.New()
	_, _, err := forest.InsertLeaves(0, []fieldtypes.Felt{{1}}, 0)
	require.NoError(t, err)
	require.NoError(t, forest.RebuildSparse(0))
	var nullifier fieldtypes.Felt
	nullifier[31] = 7
	require.NoError(t, forest.InsertNullifier(0, nullifier))

	blob, err := SerializeForest(forest)
	require.NoError(t, err)
	loaded, err := DeserializeForest(blob)
	require.NoError(t, err)
	require.True(t, loaded.Tree(0).IsNullified(nullifier))
}

func TestIndexerStatePreservesEndBlock(t *testing.T) {
	forest := merkleforest.New()
	_, _, err := forest.InsertLeaves(0, []fieldtypes.Felt{{1}}, 0)
	require.NoError(t, err)
	require.NoError(t, forest.RebuildSparse(0))

	blob, err := SerializeIndexerState(forest, 12345)
	require.NoError(t, err)

	_, endBlock, err := DeserializeIndexerState(blob)
	require.NoError(t, err)
	require.Equal(t, uint64(12345), endBlock)
}

func TestDeserializeForestRejectsBadVersion(t *testing.T) {
	_, err := DeserializeForest([]byte(`{"version":99,"trees":{}}`))
	require.ErrorIs(t, err, errs.ErrSnapshotFormat)
}

func TestAccountSnapshotRoundTrip(t *testing.T) {
	nb := notebook.New(fieldtypes.Felt{1})
	token := fieldtypes.Address{0xAA}
	require.NoError(t, nb.SetNote(0, 0, &notebook.Note{Value: uint256.NewInt(42), TokenData: fieldtypes.TokenData{Address: token}}))

	blob, err := SerializeAccount(nb, 100)
	require.NoError(t, err)

	loaded, endBlock, err := DeserializeAccount(blob, fieldtypes.Felt{1}, 200)
	require.NoError(t, err)
	require.Equal(t, uint64(100), endBlock)
	note, ok := loaded.Note(0, 0)
	require.True(t, ok)
	require.Equal(t, uint256.NewInt(42), note.Value)
}

func TestAccountSnapshotRejectsAheadOfIndexer(t *testing.T) {
	nb := notebook.New(fieldtypes.Felt{1})
	blob, err := SerializeAccount(nb, 500)
	require.NoError(t, err)

	_, _, err = DeserializeAccount(blob, fieldtypes.Felt{1}, 100)
	require.ErrorIs(t, err, errs.ErrSnapshotVersionMismatch)
}
