// Package merge presents N independently advancing substreams as a single
// sequence ascending in event id.
package merge

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/okian/telsync/internal/domain/model"
	"github.com/okian/telsync/pkg/metrics"
)

// Source is one substream as consumed by the merger. *substream.Reader
// satisfies it; tests substitute in-memory sources.
type Source interface {
	// Next returns the next event record, or io.EOF when exhausted.
	Next() (*model.Event, error)

	// Config returns the substream's configuration record, or nil.
	Config() *model.CameraConfig

	// Count returns the total record count from cheap metadata, not iteration.
	Count() uint64

	// Rewind resets the cursor to the first event without reopening.
	Rewind() error

	// Close releases the substream's resources.
	Close() error
}

// handle owns one source and its buffered head event. A nil head means the
// source is exhausted and no longer considered by Next.
type handle struct {
	src  Source
	head *model.Event
}

// Merger yields the globally next event by ascending event id across all
// substreams. Output is non-decreasing in event id as long as each substream
// is itself sorted; the merger does not re-sort a misordered substream.
type Merger struct {
	handles []*handle
	config  *model.CameraConfig
	closed  bool
}

// New opens the merge over the given sources, buffering each source's first
// event. Sources that are empty from the start are skipped silently. The
// canonical configuration is the first non-nil config record in registration
// order; mismatched configs across substreams are not reconciled.
func New(ctx context.Context, sources ...Source) (*Merger, error) {
	if len(sources) == 0 {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		closeAll(sources)
		return nil, err
	}

	m := &Merger{handles: make([]*handle, 0, len(sources))}
	for _, src := range sources {
		h := &handle{src: src}
		ev, err := src.Next()
		switch {
		case err == nil:
			h.head = ev
		case errors.Is(err, io.EOF):
			// empty substream, keep the handle for Rewind/Close only
		default:
			closeAll(sources)
			return nil, fmt.Errorf("buffer first event: %w", err)
		}
		if m.config == nil {
			m.config = src.Config()
		}
		m.handles = append(m.handles, h)
	}

	if m.config == nil {
		closeAll(sources)
		return nil, ErrConfigurationMissing
	}

	metrics.UpdateActiveSubstreams(m.active())
	return m, nil
}

// Next returns the buffered event with the smallest event id, refilling that
// substream's buffer. Ties break deterministically by registration order.
// Returns ErrExhausted once no substream has a buffered event.
func (m *Merger) Next(ctx context.Context) (*model.Event, error) {
	if m.closed {
		return nil, ErrMergerClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var min *handle
	for _, h := range m.handles {
		if h.head == nil {
			continue
		}
		if min == nil || h.head.EventID < min.head.EventID {
			min = h
		}
	}
	if min == nil {
		return nil, ErrExhausted
	}

	ev := min.head
	next, err := min.src.Next()
	switch {
	case err == nil:
		min.head = next
	case errors.Is(err, io.EOF):
		min.head = nil
		metrics.UpdateActiveSubstreams(m.active())
	default:
		return nil, fmt.Errorf("refill substream buffer: %w", err)
	}

	metrics.RecordEventMerged()
	return ev, nil
}

// Config returns the canonical configuration record.
func (m *Merger) Config() *model.CameraConfig {
	return m.config
}

// Len returns the total number of events across all substreams, from
// metadata and independent of consumption progress.
func (m *Merger) Len() uint64 {
	var total uint64
	for _, h := range m.handles {
		total += h.src.Count()
	}
	return total
}

// NumInputs returns the number of registered substreams.
func (m *Merger) NumInputs() int {
	return len(m.handles)
}

// Rewind resets every substream to its start and re-buffers the head events,
// so a re-scan yields the identical sequence.
func (m *Merger) Rewind() error {
	if m.closed {
		return ErrMergerClosed
	}
	for _, h := range m.handles {
		if err := h.src.Rewind(); err != nil {
			return fmt.Errorf("rewind substream: %w", err)
		}
		ev, err := h.src.Next()
		switch {
		case err == nil:
			h.head = ev
		case errors.Is(err, io.EOF):
			h.head = nil
		default:
			return fmt.Errorf("re-buffer first event: %w", err)
		}
	}
	metrics.RecordMergerRewind()
	metrics.UpdateActiveSubstreams(m.active())
	return nil
}

// Close releases every substream. Safe to call more than once; the first
// error encountered is returned after all handles were attempted.
func (m *Merger) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	var firstErr error
	for _, h := range m.handles {
		if err := h.src.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		h.head = nil
	}
	metrics.UpdateActiveSubstreams(0)
	return firstErr
}

// closeAll releases every source on a failed construction; handles must not
// leak file descriptors on any exit path.
func closeAll(sources []Source) {
	for _, src := range sources {
		_ = src.Close()
	}
}

func (m *Merger) active() int {
	n := 0
	for _, h := range m.handles {
		if h.head != nil {
			n++
		}
	}
	return n
}
