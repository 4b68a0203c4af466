package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"promoetl/internal/metrics"
	"promoetl/internal/table"
)

// CopyFn abstracts a backend's bulk insert capability. Implementations insert
// the provided rows (aligned to 'columns' order) and return the number of rows
// reported as inserted. It must cancel promptly when ctx is done.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches drains rows from 'in', groups them into batches of size
// 'batchSize', and calls 'copyFn' for each non-empty batch. It returns the
// total number of rows reported by copyFn and the first error encountered.
//
// Cancellation: returns (total, ctx.Err()) when canceled. Progress is logged on
// each successful flush, labelled with name.
func LoadBatches(
	ctx context.Context,
	name string,
	columns []string,
	in <-chan []any,
	batchSize int,
	copyFn CopyFn,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}

	var (
		total       int64
		batches     int64
		batch       = make([][]any, 0, batchSize)
		start       = time.Now()
		lastFlushTS = start
		lastTotal   int64
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		total += n

		// Backends must not retain the slice; its backing array is reused.
		batch = batch[:0]

		if err != nil {
			log.Printf("loader: table=%s COPY failed after=%d total=%d err=%v", name, n, total, err)
			return err
		}

		batches++
		metrics.RecordBatches(name, 1)
		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(total-lastTotal) / sinceLast.Seconds()
		}
		log.Printf(
			"loader: table=%s batch=%d rps=%.0f inserted=%d total_inserted=%d elapsed=%s",
			name,
			batches,
			rps,
			n,
			total,
			now.Sub(start).Truncate(time.Millisecond),
		)
		lastFlushTS = now
		lastTotal = total
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()

		case row, ok := <-in:
			if !ok {
				if err := flush(); err != nil {
					return total, err
				}
				return total, nil
			}
			batch = append(batch, row)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}

// CopyTable streams every row of t through LoadBatches. The producer stops
// when ctx is canceled or LoadBatches returns.
func CopyTable(ctx context.Context, t *table.Table, batchSize int, copyFn CopyFn) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan []any, batchSize)
	go func() {
		defer close(in)
		for i := 0; i < t.Len(); i++ {
			select {
			case in <- t.Row(i):
			case <-ctx.Done():
				return
			}
		}
	}()
	return LoadBatches(ctx, t.Name(), t.Schema().Names(), in, batchSize, copyFn)
}
