// Package batch fans feature computation out over worker goroutines.
// The lifecycle is strict: warm every cache single-threaded, seal, then
// fan out; the sealed engine structures are read-only and need no locks.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/courtdata/feature-engine/internal/engine"
	"github.com/courtdata/feature-engine/internal/models"
	"github.com/courtdata/feature-engine/pkg/logger"
)

// Config tunes the fan-out shape.
type Config struct {
	ChunkSize int
	Workers   int
}

func DefaultConfig() Config {
	return Config{ChunkSize: 250, Workers: 4}
}

// Result is one batch run's output. Vectors holds one feature set per
// successfully computed game, in input order; Skipped counts games whose
// computation failed, which never aborts the run.
type Result struct {
	RunID    string
	Vectors  []*engine.FeatureSet
	Skipped  int
	Warmed   int
	Duration time.Duration
}

// Driver partitions a game list into fixed-size chunks processed on
// separate workers, each owning its own output buffer.
type Driver struct {
	cfg Config
	eng *engine.Engine
	log *logrus.Entry
}

func NewDriver(cfg Config, eng *engine.Engine) *Driver {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 250
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Driver{cfg: cfg, eng: eng, log: logger.WithComponent("batch_driver")}
}

// Run computes feature vectors for every game in order. Phase one warms
// the stat cache single-threaded and seals the scope; phase two fans the
// chunks out. A panicking game is counted as skipped and the batch
// continues.
func (d *Driver) Run(ctx context.Context, games []models.GameEvent) *Result {
	runID := uuid.New().String()
	log := d.log.WithField("batch_run_id", runID)
	start := time.Now()

	requests := make([]engine.MatchupRequest, len(games))
	for i, g := range games {
		requests[i] = engine.MatchupRequest{
			HomeTeam: g.HomeTeam,
			AwayTeam: g.AwayTeam,
			Season:   g.Season,
			Date:     g.Date,
		}
	}

	// Phase one: single-threaded warm, then seal.
	warmed := 0
	if !d.eng.Preload().Sealed() {
		for _, req := range requests {
			if err := d.eng.Warm(ctx, req); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"home": req.HomeTeam,
					"away": req.AwayTeam,
				}).Warn("Cache warm failed for matchup")
				continue
			}
			warmed++
		}
		d.eng.Preload().Seal()
	}

	// Phase two: chunked fan-out, one output buffer per chunk.
	type chunk struct {
		start int
		reqs  []engine.MatchupRequest
	}
	var chunks []chunk
	for i := 0; i < len(requests); i += d.cfg.ChunkSize {
		end := i + d.cfg.ChunkSize
		if end > len(requests) {
			end = len(requests)
		}
		chunks = append(chunks, chunk{start: i, reqs: requests[i:end]})
	}

	vectors := make([]*engine.FeatureSet, len(requests))
	skippedPer := make([]int, len(chunks))

	work := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < d.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ci := range work {
				c := chunks[ci]
				for j, req := range c.reqs {
					if fs := d.computeOne(ctx, req); fs != nil {
						vectors[c.start+j] = fs
					} else {
						skippedPer[ci]++
					}
				}
			}
		}()
	}
	for ci := range chunks {
		work <- ci
	}
	close(work)
	wg.Wait()

	skipped := 0
	for _, s := range skippedPer {
		skipped += s
	}
	out := make([]*engine.FeatureSet, 0, len(vectors))
	for _, v := range vectors {
		if v != nil {
			out = append(out, v)
		}
	}

	result := &Result{
		RunID:    runID,
		Vectors:  out,
		Skipped:  skipped,
		Warmed:   warmed,
		Duration: time.Since(start),
	}
	log.WithFields(logrus.Fields{
		"games":    len(games),
		"computed": len(out),
		"skipped":  skipped,
		"duration": result.Duration,
	}).Info("Batch run completed")
	return result
}

// computeOne isolates a single game so a panic is converted into a skip.
func (d *Driver) computeOne(ctx context.Context, req engine.MatchupRequest) (fs *engine.FeatureSet) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithFields(logrus.Fields{
				"home":  req.HomeTeam,
				"away":  req.AwayTeam,
				"date":  req.Date.Format("2006-01-02"),
				"panic": r,
			}).Error("Feature computation panicked, skipping game")
			fs = nil
		}
	}()
	return d.eng.ComputeFeatures(ctx, req)
}
