package merge_test

import (
	"context"
	"io"
	"testing"

	model "github.com/okian/telsync/internal/domain/model"
	merge "github.com/okian/telsync/internal/merge"
	. "github.com/smartystreets/goconvey/convey"
)

// memSource is an in-memory Source for merge tests.
type memSource struct {
	ids    []uint64
	pos    int
	config *model.CameraConfig
	closed bool
}

func (s *memSource) Next() (*model.Event, error) {
	if s.pos >= len(s.ids) {
		return nil, io.EOF
	}
	ev := &model.Event{EventID: s.ids[s.pos], TelescopeID: 1}
	s.pos++
	return ev, nil
}

func (s *memSource) Config() *model.CameraConfig { return s.config }
func (s *memSource) Count() uint64               { return uint64(len(s.ids)) }
func (s *memSource) Rewind() error               { s.pos = 0; return nil }
func (s *memSource) Close() error                { s.closed = true; return nil }

func defaultConfig() *model.CameraConfig {
	return &model.CameraConfig{TelescopeID: 1, ModuleIDs: []uint16{132}}
}

func drain(ctx context.Context, m *merge.Merger) ([]uint64, error) {
	var ids []uint64
	for {
		ev, err := m.Next(ctx)
		if err != nil {
			if err == merge.ErrExhausted {
				return ids, nil
			}
			return ids, err
		}
		ids = append(ids, ev.EventID)
	}
}

func TestMergerOrdering(t *testing.T) {
	ctx := context.Background()

	Convey("Given three round-robin substreams", t, func() {
		s1 := &memSource{ids: []uint64{1, 4, 7}, config: defaultConfig()}
		s2 := &memSource{ids: []uint64{2, 5, 8}}
		s3 := &memSource{ids: []uint64{3, 6, 9}}

		m, err := merge.New(ctx, s1, s2, s3)
		So(err, ShouldBeNil)
		defer m.Close()

		Convey("When draining the merge", func() {
			ids, err := drain(ctx, m)

			Convey("Then events come out in ascending id order", func() {
				So(err, ShouldBeNil)
				So(ids, ShouldResemble, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9})
			})
		})

		Convey("When one substream exhausts early", func() {
			short := &memSource{ids: []uint64{2, 5}}
			m2, err := merge.New(ctx, &memSource{ids: []uint64{1, 4, 7}, config: defaultConfig()}, short, &memSource{ids: []uint64{3, 6, 9}})
			So(err, ShouldBeNil)
			defer m2.Close()

			ids, err := drain(ctx, m2)

			Convey("Then the merge of the remaining substreams does not stall", func() {
				So(err, ShouldBeNil)
				So(ids, ShouldResemble, []uint64{1, 2, 3, 4, 5, 6, 7, 9})
			})
		})
	})
}

func TestMergerTieBreak(t *testing.T) {
	ctx := context.Background()

	Convey("Given two substreams with a duplicated event id", t, func() {
		s1 := &memSource{ids: []uint64{5}, config: defaultConfig()}
		s2 := &memSource{ids: []uint64{5}}

		m, err := merge.New(ctx, s1, s2)
		So(err, ShouldBeNil)
		defer m.Close()

		Convey("When merging twice after a rewind", func() {
			first, err := drain(ctx, m)
			So(err, ShouldBeNil)
			So(m.Rewind(), ShouldBeNil)
			second, err := drain(ctx, m)
			So(err, ShouldBeNil)

			Convey("Then the tie breaks the same way both times", func() {
				So(first, ShouldResemble, second)
			})
		})
	})
}

func TestMergerConstruction(t *testing.T) {
	ctx := context.Background()

	Convey("Given merger construction inputs", t, func() {
		Convey("When the substream collection is empty", func() {
			_, err := merge.New(ctx)

			Convey("Then construction is rejected", func() {
				So(err, ShouldEqual, merge.ErrEmptyInput)
			})
		})

		Convey("When no substream carries a configuration record", func() {
			s1 := &memSource{ids: []uint64{1}}
			s2 := &memSource{ids: []uint64{2}}
			_, err := merge.New(ctx, s1, s2)

			Convey("Then construction is rejected and sources are closed", func() {
				So(err, ShouldEqual, merge.ErrConfigurationMissing)
				So(s1.closed, ShouldBeTrue)
				So(s2.closed, ShouldBeTrue)
			})
		})

		Convey("When one substream is empty from the start", func() {
			empty := &memSource{}
			m, err := merge.New(ctx, empty, &memSource{ids: []uint64{1, 2}, config: defaultConfig()})
			So(err, ShouldBeNil)
			defer m.Close()

			ids, err := drain(ctx, m)

			Convey("Then it is skipped silently", func() {
				So(err, ShouldBeNil)
				So(ids, ShouldResemble, []uint64{1, 2})
			})
		})

		Convey("When the canonical config is picked", func() {
			later := &model.CameraConfig{TelescopeID: 9, ModuleIDs: []uint16{1}}
			m, err := merge.New(ctx,
				&memSource{ids: []uint64{1}},
				&memSource{ids: []uint64{2}, config: defaultConfig()},
				&memSource{ids: []uint64{3}, config: later},
			)
			So(err, ShouldBeNil)
			defer m.Close()

			Convey("Then the first non-empty config in registration order wins", func() {
				So(m.Config().TelescopeID, ShouldEqual, 1)
			})
		})
	})
}

func TestMergerMetadata(t *testing.T) {
	ctx := context.Background()

	Convey("Given a merger over three substreams", t, func() {
		m, err := merge.New(ctx,
			&memSource{ids: []uint64{1, 4}, config: defaultConfig()},
			&memSource{ids: []uint64{2}},
			&memSource{ids: []uint64{3, 5, 6}},
		)
		So(err, ShouldBeNil)
		defer m.Close()

		Convey("Then Len is the metadata sum, independent of progress", func() {
			So(m.Len(), ShouldEqual, 6)
			_, err := m.Next(ctx)
			So(err, ShouldBeNil)
			So(m.Len(), ShouldEqual, 6)
		})

		Convey("And NumInputs counts registered substreams", func() {
			So(m.NumInputs(), ShouldEqual, 3)
		})
	})
}

func TestMergerRewindIdempotence(t *testing.T) {
	ctx := context.Background()

	Convey("Given a fully drained merger", t, func() {
		m, err := merge.New(ctx,
			&memSource{ids: []uint64{1, 4, 7}, config: defaultConfig()},
			&memSource{ids: []uint64{2, 5, 8}},
			&memSource{ids: []uint64{3, 6, 9}},
		)
		So(err, ShouldBeNil)
		defer m.Close()

		first, err := drain(ctx, m)
		So(err, ShouldBeNil)

		Convey("When rewinding and draining again", func() {
			So(m.Rewind(), ShouldBeNil)
			second, err := drain(ctx, m)

			Convey("Then the sequence is identical", func() {
				So(err, ShouldBeNil)
				So(second, ShouldResemble, first)
			})
		})
	})
}

func TestMergerLifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given an open merger", t, func() {
		s1 := &memSource{ids: []uint64{1}, config: defaultConfig()}
		m, err := merge.New(ctx, s1)
		So(err, ShouldBeNil)

		Convey("When closing it", func() {
			So(m.Close(), ShouldBeNil)

			Convey("Then the sources are released and further use is rejected", func() {
				So(s1.closed, ShouldBeTrue)
				_, err := m.Next(ctx)
				So(err, ShouldEqual, merge.ErrMergerClosed)
				So(m.Rewind(), ShouldEqual, merge.ErrMergerClosed)
				So(m.Close(), ShouldBeNil) // idempotent
			})
		})

		Convey("When the context is already canceled", func() {
			canceled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := m.Next(canceled)

			Convey("Then Next surfaces the context error", func() {
				So(err, ShouldEqual, context.Canceled)
			})
		})
	})
}
