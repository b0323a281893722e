package substream

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/okian/telsync/internal/domain/model"
)

// Writer produces substream files readable by Reader. Used by the synthetic
// generator and by tests; the real acquisition hardware writes the same
// layout.
type Writer struct {
	f           *os.File
	telescopeID uint16
	numModules  int
	config      *model.CameraConfig
	count       uint64
	buf         []byte
	closed      bool
}

// WriterOption applies a configuration option to the Writer.
type WriterOption func(*Writer)

// WithConfig embeds a configuration record in the file. The writer adopts
// the record's telescope id and module count.
func WithConfig(cfg *model.CameraConfig) WriterOption {
	return func(w *Writer) {
		if cfg != nil {
			w.config = cfg
			w.telescopeID = cfg.TelescopeID
			w.numModules = cfg.NumModules()
		}
	}
}

// NewWriter creates a substream file. The header's event count is zero until
// Close patches in the number of records written.
func NewWriter(path string, telescopeID uint16, numModules int, opts ...WriterOption) (*Writer, error) {
	w := &Writer{
		telescopeID: telescopeID,
		numModules:  numModules,
	}
	for _, opt := range opts {
		opt(w)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create substream: %w", err)
	}
	w.f = f

	hdr := header{
		telescopeID: w.telescopeID,
		numModules:  uint16(w.numModules),
	}
	if w.config != nil {
		hdr.flags |= flagHasConfig
	}
	hb := make([]byte, headerSize)
	encodeHeader(hb, hdr)
	if _, err := f.Write(hb); err != nil {
		f.Close()
		return nil, fmt.Errorf("write substream header: %w", err)
	}

	if w.config != nil {
		cb := make([]byte, configSize(w.numModules))
		encodeConfig(cb, w.config)
		if _, err := f.Write(cb); err != nil {
			f.Close()
			return nil, fmt.Errorf("write substream config: %w", err)
		}
	}

	w.buf = make([]byte, eventSize(w.numModules))
	return w, nil
}

// WriteEvent appends one event record.
func (w *Writer) WriteEvent(ev *model.Event) error {
	if w.closed {
		return ErrClosed
	}
	if len(ev.Modules) != w.numModules {
		return fmt.Errorf("%w: got %d, header says %d", ErrModuleCountMismatch, len(ev.Modules), w.numModules)
	}
	encodeEvent(w.buf, ev)
	if _, err := w.f.Write(w.buf); err != nil {
		return fmt.Errorf("write substream event: %w", err)
	}
	w.count++
	return nil
}

// Close patches the final event count into the header and closes the file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if _, err := w.f.Seek(countOffset, io.SeekStart); err != nil {
		w.f.Close()
		return fmt.Errorf("seek substream header: %w", err)
	}
	cb := make([]byte, 8)
	binary.LittleEndian.PutUint64(cb, w.count)
	if _, err := w.f.Write(cb); err != nil {
		w.f.Close()
		return fmt.Errorf("patch substream count: %w", err)
	}
	return w.f.Close()
}
