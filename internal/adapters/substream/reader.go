package substream

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/telsync/internal/domain/model"
)

// Reader is a sequential, one-directional cursor over one substream file.
// It yields typed event records in source order; it performs no merge logic.
type Reader struct {
	f          *os.File
	path       string
	hdr        header
	config     *model.CameraConfig
	dataOffset int64
	read       uint64
	recordSize int
	buf        []byte
	closed     bool
}

// Open opens a substream file and positions the cursor on the first event.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open substream: %w", err)
	}

	hb := make([]byte, headerSize)
	if _, err := io.ReadFull(f, hb); err != nil {
		f.Close()
		return nil, fmt.Errorf("read substream header %s: %w", path, err)
	}
	hdr, err := decodeHeader(hb)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode substream header %s: %w", path, err)
	}

	r := &Reader{
		f:          f,
		path:       path,
		hdr:        hdr,
		recordSize: eventSize(int(hdr.numModules)),
	}
	r.buf = make([]byte, r.recordSize)

	if hdr.flags&flagHasConfig != 0 {
		cb := make([]byte, configSize(int(hdr.numModules)))
		if _, err := io.ReadFull(f, cb); err != nil {
			f.Close()
			return nil, fmt.Errorf("read substream config %s: %w", path, err)
		}
		cfg, err := decodeConfig(cb, hdr.telescopeID, int(hdr.numModules))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("decode substream config %s: %w", path, err)
		}
		r.config = cfg
	}

	off, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("locate substream data %s: %w", path, err)
	}
	r.dataOffset = off

	return r, nil
}

// Next returns the next event record, or io.EOF when the substream is
// exhausted.
func (r *Reader) Next() (*model.Event, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if r.read >= r.hdr.eventCount {
		return nil, io.EOF
	}
	if _, err := io.ReadFull(r.f, r.buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("substream %s shorter than header count: %w", r.path, ErrTruncated)
		}
		return nil, fmt.Errorf("read substream event %s: %w", r.path, err)
	}
	ev, err := decodeEvent(r.buf, r.hdr.telescopeID, int(r.hdr.numModules))
	if err != nil {
		return nil, fmt.Errorf("decode substream event %s: %w", r.path, err)
	}
	r.read++
	return ev, nil
}

// Config returns the configuration record discovered on this substream, or
// nil when the file carries none.
func (r *Reader) Config() *model.CameraConfig {
	return r.config
}

// Count returns the total number of event records from the header metadata,
// independent of consumption progress.
func (r *Reader) Count() uint64 {
	return r.hdr.eventCount
}

// TelescopeID returns the telescope this substream belongs to.
func (r *Reader) TelescopeID() uint16 {
	return r.hdr.telescopeID
}

// Rewind resets the cursor to the first event without reopening the file.
func (r *Reader) Rewind() error {
	if r.closed {
		return ErrClosed
	}
	if _, err := r.f.Seek(r.dataOffset, io.SeekStart); err != nil {
		return fmt.Errorf("rewind substream %s: %w", r.path, err)
	}
	r.read = 0
	return nil
}

// Close releases the underlying file handle. Safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.f.Close()
}
