// Package syncdriver pulls log ranges from a log source with adaptive
// batch sizing and drives an Indexer from the result, one bounded
// double-buffered producer/consumer pipeline per Sync call. Cancellation
// is cooperative at batch boundaries only: a mid-batch rebuild+persist
// always runs to completion before a cancelled context takes effect.
package syncdriver

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/shieldhaven/engine/errs"
	"github.com/shieldhaven/engine/indexer"
	"github.com/shieldhaven/engine/log"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

const (
	minBatch     = 1
	defaultMax   = 1000
	growthFactor = 1.2
	saveInterval = 8192
)

// LogSource is the external collaborator this package drives against:
// an async get_logs/get_block_number pair. Implementations decide their
// own transport; TransportFatal vs transport-range-error classification
// is theirs to make via errs.IsRangeError.
type LogSource interface {
	GetLogs(ctx context.Context, fromBlock, toBlock uint64) ([]gethtypes.Log, error)
	GetBlockNumber(ctx context.Context) (uint64, error)
}

// Checkpointer persists a forest/account snapshot at sync boundaries.
// Sync calls Save after every SAVE_INTERVAL blocks and once more at loop
// end; implementations decide where a snapshot lands.
type Checkpointer interface {
	Save(ctx context.Context) error
}

// Driver owns the adaptive-batch sync loop for one indexer.
type Driver struct {
	source       LogSource
	ix           *indexer.Indexer
	checkpoint   Checkpointer
	maxBatch     uint64
	saveInterval uint64
	logger       *log.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithMaxBatch overrides the adaptive batch ceiling (default 1000).
func WithMaxBatch(max uint64) Option {
	return func(d *Driver) { d.maxBatch = max }
}

// WithSaveInterval overrides how many blocks elapse between checkpoints.
func WithSaveInterval(blocks uint64) Option {
	return func(d *Driver) { d.saveInterval = blocks }
}

// New creates a Driver over source, driving ix and checkpointing through
// checkpoint.
func New(source LogSource, ix *indexer.Indexer, checkpoint Checkpointer, opts ...Option) *Driver {
	d := &Driver{
		source:       source,
		ix:           ix,
		checkpoint:   checkpoint,
		maxBatch:     defaultMax,
		saveInterval: saveInterval,
		logger:       log.Default().Module("syncdriver"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type fetchResult struct {
	logs     []gethtypes.Log
	from, to uint64
}

// Sync drives the indexer from fromBlock (default: ix.EndBlock()+1) to
// toBlock (default: the log source's current head), delivering logs to
// the indexer in strict (blockNumber, logIndex) order. Only one producer
// and one consumer run at a time; the channel between them is bounded to
// depth 1 so the producer blocks on a full buffer rather than racing
// ahead unbounded.
func (d *Driver) Sync(ctx context.Context, fromBlock, toBlock *uint64) error {
	from := d.ix.EndBlock() + 1
	if fromBlock != nil {
		from = *fromBlock
	}

	to, err := d.resolveTo(ctx, toBlock)
	if err != nil {
		return err
	}
	if from > to {
		return nil
	}

	batch := d.maxBatch
	if span := to - from + 1; span < batch {
		batch = span
	}
	if batch < minBatch {
		batch = minBatch
	}

	results := make(chan fetchResult, 1)
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer close(results)
		cursor := from
		for cursor <= to {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			end := cursor + batch - 1
			if end > to {
				end = to
			}

			logs, err := d.source.GetLogs(gctx, cursor, end)
			if err != nil {
				if errs.IsRangeError(err) {
					if batch > minBatch {
						batch = batch / 2
						if batch < minBatch {
							batch = minBatch
						}
						d.logger.Warn("range error, halving batch", "batch", batch, "from", cursor, "to", end)
						continue
					}
					d.logger.Warn("range error at minimum batch, skipping block", "block", cursor)
					cursor++
					continue
				}
				return err
			}

			select {
			case results <- fetchResult{logs: logs, from: cursor, to: end}:
			case <-gctx.Done():
				return gctx.Err()
			}

			cursor = end + 1
			batch = growBatch(batch, d.maxBatch)
		}
		return nil
	})

	var lastSaveBoundary uint64
	group.Go(func() error {
		for result := range results {
			if err := d.ix.ProcessLogs(result.logs, indexer.ProcessOpts{}); err != nil {
				return err
			}
			if result.to-lastSaveBoundary >= d.saveInterval {
				if err := d.checkpoint.Save(ctx); err != nil {
					return err
				}
				lastSaveBoundary = result.to
			}
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		// A partial run still persists what was processed; progress is
		// never silently dropped by a failed sync.
		if saveErr := d.checkpoint.Save(ctx); saveErr != nil {
			d.logger.Error("checkpoint save after sync failure also failed", "err", saveErr)
		}
		return err
	}

	return d.checkpoint.Save(ctx)
}

func (d *Driver) resolveTo(ctx context.Context, toBlock *uint64) (uint64, error) {
	if toBlock != nil {
		return *toBlock, nil
	}
	head, err := d.source.GetBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	return head, nil
}

func growBatch(current, max uint64) uint64 {
	next := uint64(float64(current) * growthFactor)
	if next <= current {
		next = current + 1
	}
	if next > max {
		next = max
	}
	return next
}
