package service

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/telsync/internal/adapters/substream"
	"github.com/okian/telsync/internal/domain/model"
	"github.com/okian/telsync/internal/domain/types"
	"github.com/okian/telsync/internal/reconcile"
	"github.com/okian/telsync/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

const (
	testEpoch  = int64(1_600_000_000_000_000_000) // ns TAI
	testPeriod = int64(52_000)                    // ns between triggers
)

func pipelineConfig() *model.CameraConfig {
	return &model.CameraConfig{
		TelescopeID: 1,
		LocalRunID:  42,
		ModuleIDs:   []uint16{12, 132, 7},
	}
}

// pipelineEvent builds a fully consistent event: all counters agree with the
// UCTS timestamp at testEpoch + offset nanoseconds.
func pipelineEvent(id uint64, offset int64, withUCTS bool) *model.Event {
	pps := uint16(offset / 1_000_000_000)
	tenMHz := uint32((offset % 1_000_000_000) / 100)

	ev := &model.Event{
		EventID:        id,
		DevicePresence: model.PresenceTIB,
		Modules:        make([]model.DragonCounters, 3),
		TIB: model.TIBData{
			EventCounter:  uint32(id),
			PPSCounter:    pps,
			TenMHzCounter: tenMHz,
			MaskedTrigger: 4,
		},
	}
	for i := range ev.Modules {
		ev.Modules[i] = model.DragonCounters{
			PPSCounter:    pps,
			TenMHzCounter: tenMHz,
			EventCounter:  uint32(id),
		}
	}
	if withUCTS {
		ev.DevicePresence |= model.PresenceUCTS
		ev.UCTS = model.UCTSData{
			Timestamp:    uint64(testEpoch + offset),
			EventCounter: uint32(id),
			TriggerType:  1,
		}
	}
	return ev
}

func writePipelineSubstream(t *testing.T, dir, name string, withConfig bool, events []*model.Event) string {
	t.Helper()

	path := filepath.Join(dir, name)
	opts := []substream.WriterOption{}
	if withConfig {
		opts = append(opts, substream.WithConfig(pipelineConfig()))
	}
	w, err := substream.NewWriter(path, 1, 3, opts...)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	for _, ev := range events {
		if err := w.WriteEvent(ev); err != nil {
			t.Fatalf("write event: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return path
}

func readRecords(t *testing.T, path string) []types.ReconciledEvent {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	var records []types.ReconciledEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec types.ReconciledEvent
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("unmarshal record: %v", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan output: %v", err)
	}
	return records
}

func TestServiceConstruction(t *testing.T) {
	Convey("Given pipeline service construction", t, func() {
		Convey("When no inputs are configured", func() {
			_, err := New(WithOutput("out.jsonl"))

			Convey("Then construction fails", func() {
				So(err, ShouldWrap, ErrNoInputs)
			})
		})

		Convey("When no output is configured", func() {
			_, err := New(WithInputs([]string{"a.tlsb"}))

			Convey("Then construction fails", func() {
				So(err, ShouldWrap, ErrNoOutput)
			})
		})

		Convey("When inputs and output are set", func() {
			svc, err := New(
				WithInputs([]string{"a.tlsb"}),
				WithOutput("out.jsonl"),
				WithClockSource(reconcile.ClockUCTS),
			)

			Convey("Then the service is ready", func() {
				So(err, ShouldBeNil)
				So(svc, ShouldNotBeNil)
			})
		})
	})
}

func TestServiceRun(t *testing.T) {
	Convey("Given two interleaved substreams on disk", t, func() {
		dir := t.TempDir()

		var odd, even []*model.Event
		for id := uint64(1); id <= 6; id++ {
			ev := pipelineEvent(id, int64(id)*testPeriod, true)
			if id%2 == 1 {
				odd = append(odd, ev)
			} else {
				even = append(even, ev)
			}
		}
		inputA := writePipelineSubstream(t, dir, "a.tlsb", true, odd)
		inputB := writePipelineSubstream(t, dir, "b.tlsb", false, even)
		output := filepath.Join(dir, "out.jsonl")

		Convey("When the pipeline runs to completion", func() {
			svc, err := New(
				WithInputs([]string{inputA, inputB}),
				WithOutput(output),
			)
			So(err, ShouldBeNil)

			stats, err := svc.Run(context.Background())
			So(err, ShouldBeNil)

			Convey("Then every event is merged and reconciled", func() {
				So(stats.EventsMerged, ShouldEqual, 6)
				So(stats.EventsReconciled, ShouldEqual, 6)
				So(stats.MissingUCTS, ShouldEqual, 0)
				So(stats.Jumps, ShouldEqual, 0)
				So(stats.PendingCorrections, ShouldBeEmpty)
			})

			Convey("Then the output records are ordered by event id with correct timestamps", func() {
				records := readRecords(t, output)
				So(records, ShouldHaveLength, 6)
				for i, rec := range records {
					id := uint64(i + 1)
					So(rec.EventID, ShouldEqual, id)
					So(rec.TelescopeID, ShouldEqual, 1)
					So(rec.Valid, ShouldBeTrue)
					So(rec.TimestampNS, ShouldEqual, testEpoch+int64(id)*testPeriod)
					So(rec.TriggerType, ShouldEqual, 1)
					So(rec.Jump, ShouldBeFalse)
				}
			})
		})

		Convey("When an input path does not exist", func() {
			svc, err := New(
				WithInputs([]string{inputA, filepath.Join(dir, "missing.tlsb")}),
				WithOutput(output),
			)
			So(err, ShouldBeNil)

			_, err = svc.Run(context.Background())

			Convey("Then the run fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})

	Convey("Given a substream with an event lacking the absolute clock", t, func() {
		dir := t.TempDir()

		events := []*model.Event{
			pipelineEvent(1, testPeriod, true),
			pipelineEvent(2, 2*testPeriod, false),
			pipelineEvent(3, 3*testPeriod, true),
		}
		input := writePipelineSubstream(t, dir, "a.tlsb", true, events)
		output := filepath.Join(dir, "out.jsonl")

		Convey("When the pipeline runs", func() {
			svc, err := New(
				WithInputs([]string{input}),
				WithOutput(output),
			)
			So(err, ShouldBeNil)

			stats, err := svc.Run(context.Background())
			So(err, ShouldBeNil)

			Convey("Then the gap is reported, not fatal", func() {
				So(stats.EventsMerged, ShouldEqual, 3)
				So(stats.EventsReconciled, ShouldEqual, 2)
				So(stats.MissingUCTS, ShouldEqual, 1)

				records := readRecords(t, output)
				So(records, ShouldHaveLength, 3)
				So(records[1].Valid, ShouldBeFalse)
				So(records[1].TimestampNS, ShouldEqual, 0)
				So(records[1].TriggerType, ShouldEqual, 4)
				So(records[2].Valid, ShouldBeTrue)
			})
		})
	})

	Convey("Given pre-calibrated references and no first-event bootstrap", t, func() {
		dir := t.TempDir()

		events := []*model.Event{
			pipelineEvent(1, testPeriod, true),
			pipelineEvent(2, 2*testPeriod, true),
		}
		input := writePipelineSubstream(t, dir, "a.tlsb", true, events)
		output := filepath.Join(dir, "out.jsonl")

		Convey("When the dragon reference maps counters to absolute time", func() {
			svc, err := New(
				WithInputs([]string{input}),
				WithOutput(output),
				WithUseFirstEvent(false),
				WithReferences(map[uint16]TelescopeReferences{
					1: {Dragon: &reconcile.ClockReference{
						UCTSTimestamp: uint64(testEpoch),
						Counter0:      0,
					}},
				}),
			)
			So(err, ShouldBeNil)

			stats, err := svc.Run(context.Background())
			So(err, ShouldBeNil)

			Convey("Then timestamps follow the reference exactly", func() {
				So(stats.EventsReconciled, ShouldEqual, 2)
				records := readRecords(t, output)
				So(records, ShouldHaveLength, 2)
				So(records[0].TimestampNS, ShouldEqual, testEpoch+testPeriod)
				So(records[1].TimestampNS, ShouldEqual, testEpoch+2*testPeriod)
			})
		})
	})
}
