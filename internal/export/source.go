package export

import (
	"context"
	"io"
)

// Source supplies CSV rows in batches. Implementations return io.EOF from
// NextBatch once drained. Pull-based sources page data on demand; push-based
// streams adapt through ChanSource.
type Source interface {
	Header() []string
	NextBatch(ctx context.Context) ([][]string, error)
}

// SliceSource serves an in-memory row set in fixed-size batches.
type SliceSource struct {
	header    []string
	rows      [][]string
	batchSize int
	offset    int
}

// NewSliceSource wraps rows for export. batchSize <= 0 serves everything in
// one batch.
func NewSliceSource(header []string, rows [][]string, batchSize int) *SliceSource {
	if batchSize <= 0 {
		batchSize = len(rows)
	}
	return &SliceSource{header: header, rows: rows, batchSize: batchSize}
}

func (s *SliceSource) Header() []string { return s.header }

func (s *SliceSource) NextBatch(ctx context.Context) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.offset >= len(s.rows) {
		return nil, io.EOF
	}
	end := s.offset + s.batchSize
	if end > len(s.rows) {
		end = len(s.rows)
	}
	batch := s.rows[s.offset:end]
	s.offset = end
	return batch, nil
}

// ChanSource adapts a push-based stream of row batches. The producer closes
// the channel when done; batches are consumed in arrival order.
type ChanSource struct {
	header  []string
	batches <-chan [][]string
}

// NewChanSource wraps a batch channel for export.
func NewChanSource(header []string, batches <-chan [][]string) *ChanSource {
	return &ChanSource{header: header, batches: batches}
}

func (s *ChanSource) Header() []string { return s.header }

func (s *ChanSource) NextBatch(ctx context.Context) ([][]string, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case batch, ok := <-s.batches:
		if !ok {
			return nil, io.EOF
		}
		return batch, nil
	}
}

// FuncSource turns a pull callback into a Source. Useful for paging rows out
// of a repository without materializing the full result.
type FuncSource struct {
	header []string
	next   func(ctx context.Context) ([][]string, error)
}

// NewFuncSource wraps next as a Source; next must return io.EOF when drained.
func NewFuncSource(header []string, next func(ctx context.Context) ([][]string, error)) *FuncSource {
	return &FuncSource{header: header, next: next}
}

func (s *FuncSource) Header() []string { return s.header }

func (s *FuncSource) NextBatch(ctx context.Context) ([][]string, error) {
	return s.next(ctx)
}
