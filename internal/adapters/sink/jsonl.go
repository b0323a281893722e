// Package sink writes reconciled events to downstream consumers.
package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/okian/telsync/internal/domain/types"
	"github.com/okian/telsync/pkg/metrics"
)

// Sink consumes the pipeline output, one record per event in merged order.
type Sink interface {
	Write(ctx context.Context, rec types.ReconciledEvent) error
	Close() error
}

// JSONL writes one JSON object per line. The format is append-only and
// stream-friendly so downstream tools can tail a run in progress.
type JSONL struct {
	f      *os.File
	w      *bufio.Writer
	enc    *json.Encoder
	closed bool
}

// NewJSONL creates (or truncates) the output file.
func NewJSONL(path string) (*JSONL, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create sink: %w", err)
	}
	w := bufio.NewWriter(f)
	return &JSONL{f: f, w: w, enc: json.NewEncoder(w)}, nil
}

// Write appends one record.
func (s *JSONL) Write(ctx context.Context, rec types.ReconciledEvent) error {
	if s.closed {
		return ErrSinkClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.enc.Encode(rec); err != nil {
		metrics.RecordWriteError()
		return fmt.Errorf("encode record: %w", err)
	}
	metrics.RecordRecordWritten()
	return nil
}

// Close flushes buffered records and releases the file. Safe to call twice.
func (s *JSONL) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return fmt.Errorf("flush sink: %w", err)
	}
	return s.f.Close()
}
