package syncdriver

import (
	"context"
	"sync"
	"testing"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/shieldhaven/engine/chainparams"
	"github.com/shieldhaven/engine/errs"
	"github.com/shieldhaven/engine/indexer"
)

type fakeSource struct {
	mu       sync.Mutex
	head     uint64
	logs     map[uint64][]gethtypes.Log // keyed by block number
	rangeErr map[uint64]int             // remaining range errors to inject per call count bucket
	calls    int
}

func (f *fakeSource) GetBlockNumber(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeSource) GetLogs(ctx context.Context, from, to uint64) ([]gethtypes.Log, error) {
	f.mu.Lock()
	f.calls++
	if f.rangeErr[from] > 0 {
		f.rangeErr[from]--
		f.mu.Unlock()
		return nil, errs.NewTransportRangeError(errs.ErrTransportFatal)
	}
	f.mu.Unlock()

	var out []gethtypes.Log
	for b := from; b <= to; b++ {
		out = append(out, f.logs[b]...)
	}
	return out, nil
}

type fakeCheckpoint struct {
	saves int
}

func (f *fakeCheckpoint) Save(ctx context.Context) error {
	f.saves++
	return nil
}

func TestSyncAdvancesEndBlockToHead(t *testing.T) {
	ix := indexer.New(chainparams.Mainnet())
	start := ix.EndBlock()
	source := &fakeSource{head: start + 50, logs: map[uint64][]gethtypes.Log{}, rangeErr: map[uint64]int{}}
	cp := &fakeCheckpoint{}

	d := New(source, ix, cp, WithMaxBatch(10))
	err := d.Sync(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, start+50, ix.EndBlock())
	require.Greater(t, cp.saves, 0)
}

func TestSyncHalvesBatchOnRangeError(t *testing.T) {
	ix := indexer.New(chainparams.Mainnet())
	start := ix.EndBlock()
	source := &fakeSource{
		head:     start + 20,
		logs:     map[uint64][]gethtypes.Log{},
		rangeErr: map[uint64]int{start + 1: 1},
	}
	cp := &fakeCheckpoint{}

	d := New(source, ix, cp, WithMaxBatch(20))
	err := d.Sync(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, start+20, ix.EndBlock())
}

func TestSyncNoOpWhenAlreadyCaughtUp(t *testing.T) {
	ix := indexer.New(chainparams.Mainnet())
	start := ix.EndBlock()
	source := &fakeSource{head: start, logs: map[uint64][]gethtypes.Log{}, rangeErr: map[uint64]int{}}
	cp := &fakeCheckpoint{}

	d := New(source, ix, cp)
	to := start - 1
	from := start
	err := d.Sync(context.Background(), &from, &to)
	require.NoError(t, err)
	require.Equal(t, 0, cp.saves)
}
