// Package gensub generates synthetic substream files for exercising the
// pipeline without telescope hardware: consistent counters by default, with
// optional UCTS sample losses and missing UCTS blocks.
package gensub

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/okian/telsync/internal/adapters/substream"
	"github.com/okian/telsync/internal/domain/model"
	"github.com/okian/telsync/pkg/logger"
)

// Defaults for generation.
const (
	defaultSubstreams    = 4
	defaultEvents        = 1000
	defaultTelescopeID   = 1
	defaultStartTime     = uint64(1_700_000_000_000_000_000) // ns TAI
	defaultTriggerPeriod = 52 * time.Microsecond
	defaultTriggerType   = uint8(1)
)

// Config holds generation parameters.
type Config struct {
	OutputDir   string        // directory receiving the substream files
	BaseName    string        // file name prefix, e.g. "run01"
	Substreams  int           // number of substream files
	Events      int           // total events across all substreams
	TelescopeID uint16        //
	ModuleIDs   []uint16      // hardware module ids, in readout order
	LocalRunID  uint32        // 0 picks a random run id
	Seed        int64         // rng seed for reproducible fixtures
	StartTime   uint64        // absolute time of the first trigger, ns TAI
	Period      time.Duration // nominal time between triggers

	// LoseUCTSEvery drops the UCTS sample of every n-th event from the
	// sample stream, shifting all later samples one event ahead. 0
	// disables losses.
	LoseUCTSEvery int

	// OmitUCTSEvery writes every n-th event without a UCTS block at all.
	// 0 disables omissions.
	OmitUCTSEvery int
}

// DefaultConfig returns a Config that produces a clean, jump-free run.
func DefaultConfig(outputDir string) Config {
	return Config{
		OutputDir:   outputDir,
		BaseName:    "run",
		Substreams:  defaultSubstreams,
		Events:      defaultEvents,
		TelescopeID: defaultTelescopeID,
		ModuleIDs:   []uint16{12, 132, 7, 201},
		StartTime:   defaultStartTime,
		Period:      defaultTriggerPeriod,
	}
}

// Generator produces substream files from a Config.
type Generator struct {
	cfg    Config
	logger logger.Logger
}

// New validates the configuration and creates a generator.
func New(cfg Config) (*Generator, error) {
	if cfg.Substreams <= 0 {
		return nil, fmt.Errorf("%w: substreams must be positive, got %d", ErrInvalidConfig, cfg.Substreams)
	}
	if cfg.Events <= 0 {
		return nil, fmt.Errorf("%w: events must be positive, got %d", ErrInvalidConfig, cfg.Events)
	}
	if len(cfg.ModuleIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one module id required", ErrInvalidConfig)
	}
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("%w: period must be positive, got %s", ErrInvalidConfig, cfg.Period)
	}
	if cfg.LocalRunID == 0 {
		cfg.LocalRunID = uuid.New().ID()
	}

	return &Generator{
		cfg:    cfg,
		logger: logger.Get().Named("gensub"),
	}, nil
}

// Generate writes the substream files and returns their paths. Events are
// distributed round-robin, so each file holds an ascending id sequence and
// merging the files reproduces 1..Events.
func (g *Generator) Generate(ctx context.Context) ([]string, error) {
	cfg := g.cfg

	g.logger.Info(ctx, "generating substreams",
		logger.String("dir", cfg.OutputDir),
		logger.Int("substreams", cfg.Substreams),
		logger.Int("events", cfg.Events),
		logger.Int("telescope", int(cfg.TelescopeID)),
	)

	camera := &model.CameraConfig{
		TelescopeID: cfg.TelescopeID,
		LocalRunID:  cfg.LocalRunID,
		ModuleIDs:   cfg.ModuleIDs,
	}

	paths := make([]string, cfg.Substreams)
	writers := make([]*substream.Writer, cfg.Substreams)
	for i := range writers {
		paths[i] = filepath.Join(cfg.OutputDir, fmt.Sprintf("%s.chain%d.tlsb", cfg.BaseName, i))
		w, err := substream.NewWriter(paths[i], cfg.TelescopeID, len(cfg.ModuleIDs),
			substream.WithConfig(camera))
		if err != nil {
			closeWriters(writers[:i])
			return nil, fmt.Errorf("create substream %d: %w", i, err)
		}
		writers[i] = w
	}

	// sampleShift counts lost UCTS samples so far: the sample recorded with
	// event i actually belongs to event i+sampleShift.
	sampleShift := 0
	for i := 1; i <= cfg.Events; i++ {
		if err := ctx.Err(); err != nil {
			closeWriters(writers)
			return nil, err
		}

		if cfg.LoseUCTSEvery > 0 && i%cfg.LoseUCTSEvery == 0 {
			sampleShift++
		}

		ev := g.event(uint64(i), sampleShift)
		if cfg.OmitUCTSEvery > 0 && i%cfg.OmitUCTSEvery == 0 {
			ev.DevicePresence &^= model.PresenceUCTS
			ev.UCTS = model.UCTSData{}
		}

		w := writers[(i-1)%cfg.Substreams]
		if err := w.WriteEvent(ev); err != nil {
			closeWriters(writers)
			return nil, fmt.Errorf("write event %d: %w", i, err)
		}
	}

	for i, w := range writers {
		if err := w.Close(); err != nil {
			closeWriters(writers[i+1:])
			return nil, fmt.Errorf("close substream %d: %w", i, err)
		}
	}

	g.logger.Info(ctx, "substreams generated",
		logger.Int("files", len(paths)),
		logger.Int("lost_ucts_samples", sampleShift),
	)
	return paths, nil
}

// event builds one fully populated event. The dragon and tib counters always
// track the event's true trigger time; the UCTS block carries the sample
// shifted ahead by the losses accumulated so far.
func (g *Generator) event(id uint64, sampleShift int) *model.Event {
	cfg := g.cfg
	trueOffset := g.offsetNanos(id)
	uctsOffset := g.offsetNanos(id + uint64(sampleShift))

	pps := uint16(trueOffset / 1_000_000_000)
	tenMHz := uint32((trueOffset % 1_000_000_000) / 100)

	ev := &model.Event{
		EventID:        id,
		TelescopeID:    cfg.TelescopeID,
		DevicePresence: model.PresenceTIB | model.PresenceUCTS,
		Modules:        make([]model.DragonCounters, len(cfg.ModuleIDs)),
		TIB: model.TIBData{
			EventCounter:  uint32(id),
			PPSCounter:    pps,
			TenMHzCounter: tenMHz,
			StereoPattern: 1,
			MaskedTrigger: defaultTriggerType,
		},
		UCTS: model.UCTSData{
			Timestamp:    cfg.StartTime + uint64(uctsOffset),
			EventCounter: uint32(id) + uint32(sampleShift),
			PPSCounter:   uint32(pps),
			ClockCounter: tenMHz,
			TriggerType:  defaultTriggerType,
			NumInBunch:   1,
		},
	}
	for m := range ev.Modules {
		ev.Modules[m] = model.DragonCounters{
			PPSCounter:        pps,
			TenMHzCounter:     tenMHz,
			EventCounter:      uint32(id),
			TriggerCounter:    uint32(id),
			LocalClockCounter: uint64(trueOffset),
		}
	}
	return ev
}

// offsetNanos returns the trigger time of an event relative to StartTime.
// The spacing is the nominal period plus bounded deterministic jitter, kept
// well under the period so event order and trigger times never cross.
func (g *Generator) offsetNanos(id uint64) int64 {
	period := g.cfg.Period.Nanoseconds()
	jitter := rand.New(rand.NewSource(g.cfg.Seed + int64(id))).Int63n(period / 10)
	return int64(id)*period + jitter
}

func closeWriters(writers []*substream.Writer) {
	for _, w := range writers {
		if w != nil {
			_ = w.Close()
		}
	}
}
