package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"polaroid-extractor/internal/config"
	"polaroid-extractor/internal/logger"
	"polaroid-extractor/internal/models"
	"polaroid-extractor/internal/pipeline"
	"polaroid-extractor/internal/scan"
	"polaroid-extractor/internal/shutdown"
	"polaroid-extractor/internal/worker"
)

var errInterrupted = errors.New("interrupted")

func newExtractCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "extract [files|dirs...]",
		Short: "Extract every polaroid from the given scans",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := scan.Discover(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no supported images in %v", args)
			}

			mgr := shutdown.NewManager(a.logger)
			stop := mgr.Listen()
			defer stop()

			b := newBatch(a.cfg, a.logger, mgr, pipeline.NewExtractor(a.logger))
			bar := newProgressBar(cmd.ErrOrStderr(), len(files))
			outcomes := b.run(files, func() { _ = bar.Add(1) })
			_ = bar.Finish()

			printSummary(cmd.OutOrStdout(), outcomes)

			failed := 0
			for _, o := range outcomes {
				if o.Err != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scans failed", failed, len(outcomes))
			}
			return nil
		},
	}
}

// scanOutcome is what happened to one input file.
type scanOutcome struct {
	Path          string
	Written       []string
	RegionsFailed int
	Skipped       bool
	Err           error
}

type batch struct {
	jobs     int
	params   models.ExtractionParams
	engine   worker.Engine
	loader   *scan.Loader
	saver    *scan.Saver
	shutdown *shutdown.Manager
	logger   logger.Logger
	opts     []worker.Option
}

func newBatch(cfg config.Config, log logger.Logger, mgr *shutdown.Manager, engine worker.Engine, opts ...worker.Option) *batch {
	return &batch{
		jobs:     cfg.Jobs,
		params:   cfg.Params,
		engine:   engine,
		loader:   scan.NewLoader(log),
		saver:    scan.NewSaver(cfg.Output, log),
		shutdown: mgr,
		logger:   log,
		opts:     opts,
	}
}

// run processes files on at most jobs workers at a time, one worker per
// scan, and returns the outcomes sorted by path.
func (b *batch) run(files []string, progress func()) []scanOutcome {
	p := pool.NewWithResults[scanOutcome]().WithMaxGoroutines(b.jobs)
	for _, path := range files {
		p.Go(func() scanOutcome {
			defer progress()
			return b.process(path)
		})
	}

	outcomes := p.Wait()
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].Path < outcomes[j].Path
	})
	return outcomes
}

func (b *batch) process(path string) scanOutcome {
	outcome := scanOutcome{Path: path}
	if b.interrupted() {
		outcome.Skipped = true
		return outcome
	}

	img, err := b.loader.Load(path)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	w := worker.New(b.engine, b.logger, b.opts...)
	defer w.Shutdown()
	b.shutdown.Register("worker "+path, w)
	if b.interrupted() {
		outcome.Skipped = true
		return outcome
	}

	if err := w.Start(); err != nil {
		outcome.Err = err
		return outcome
	}
	// Start has already queued Ready or Failed.
	ev, ok := <-w.Events()
	if !ok {
		outcome.Err = errInterrupted
		return outcome
	}
	if ev.Type != worker.EventReady {
		outcome.Err = ev.Err
		return outcome
	}

	id, err := w.Submit(img.Request(b.params))
	if err != nil {
		outcome.Err = err
		return outcome
	}

	for ev := range w.Events() {
		if ev.RequestID != id {
			continue
		}
		switch ev.Type {
		case worker.EventPreview:
			if _, err := b.saver.SavePreview(path, *ev.Preview); err != nil {
				b.logger.Warning("Batch", "preview not written", map[string]interface{}{
					"scan":  path,
					"stage": ev.Preview.Stage,
					"error": err.Error(),
				})
			}
		case worker.EventExtracted:
			outcome.RegionsFailed = len(ev.Result.Failures)
			outcome.Written, outcome.Err = b.saver.SavePolaroids(path, ev.Result.Polaroids)
			return outcome
		case worker.EventFailed:
			outcome.Err = ev.Err
			return outcome
		}
	}

	// Events closed before a result: the shutdown manager stopped the worker.
	outcome.Err = errInterrupted
	return outcome
}

func (b *batch) interrupted() bool {
	select {
	case <-b.shutdown.Done():
		return true
	default:
		return false
	}
}
