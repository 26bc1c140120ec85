// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package trainer orchestrates the external profile trainer. The engine
// gathers the event history and book metadata into a payload file, invokes
// the configured trainer command, and applies the profiles it reports. The
// trainer process owns the model math; this package owns process lifecycle,
// timeouts, and applying results.
package trainer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/shelfwise/shelfwise/internal/logging"
	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/internal/recerr"
	"github.com/shelfwise/shelfwise/internal/store"
)

// DefaultTimeout bounds one trainer run. A run that exceeds it is killed.
const DefaultTimeout = 10 * time.Minute

// catalogBatchSize bounds one book metadata fetch.
const catalogBatchSize = 100

// BookSource fetches catalog records for the payload. May be nil; the
// payload then carries events only.
type BookSource interface {
	GetBooks(ctx context.Context, ids []int64) ([]models.Book, error)
}

// ProfileReplacer applies trained profiles. Implemented by the
// recommendation service; replacement cascades snapshot rebuild and fanout.
// A topK of zero asks for the service default.
type ProfileReplacer interface {
	ReplaceProfile(ctx context.Context, key string, scores map[int64]float64, topK int) (*models.RecommendationSnapshot, error)
}

// Config holds the trainer runner configuration.
type Config struct {
	// Command is the trainer executable. Empty disables training.
	Command string

	// Timeout bounds one run. Default: 10 minutes.
	Timeout time.Duration

	// HistoryDays is how far back the payload history reaches.
	HistoryDays int

	// MinScore filters events below this final score out of training.
	MinScore float64

	// TopK is the per-profile item count the trainer should emit.
	TopK int

	// MaxProfiles caps how many profiles one run may train.
	MaxProfiles int
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.HistoryDays == 0 {
		c.HistoryDays = 90
	}
	if c.TopK == 0 {
		c.TopK = 25
	}
	if c.MaxProfiles == 0 {
		c.MaxProfiles = 10000
	}
}

// Options are per-run overrides. Zero (or nil) fields fall back to the
// runner's configured values.
type Options struct {
	// HistoryDays overrides the payload history window.
	HistoryDays int

	// MinScore overrides the event score floor. Pointer so an explicit
	// zero is distinguishable from unset.
	MinScore *float64

	// TopK overrides the per-profile item count.
	TopK int

	// MaxProfiles overrides the per-run profile cap.
	MaxProfiles int

	// DryRun trains without applying the resulting profiles.
	DryRun bool
}

// runConfig folds per-run overrides over the configured baseline.
func (r *Runner) runConfig(opts Options) Config {
	run := r.cfg
	if opts.HistoryDays > 0 {
		run.HistoryDays = opts.HistoryDays
	}
	if opts.MinScore != nil {
		run.MinScore = *opts.MinScore
	}
	if opts.TopK > 0 {
		run.TopK = opts.TopK
	}
	if opts.MaxProfiles > 0 {
		run.MaxProfiles = opts.MaxProfiles
	}
	return run
}

// Report is the trainer's output document.
type Report struct {
	TrainedAt       time.Time                    `json:"trained_at"`
	EventsProcessed int                          `json:"events_processed"`
	ProfilesTrained int                          `json:"profiles_trained"`
	Profiles        map[string]map[int64]float64 `json:"profiles"`
}

// Result is the outcome of one run. Report is nil when the trainer produced
// no readable report; the captured output is retained either way.
type Result struct {
	Report   *Report       `json:"report"`
	Applied  int           `json:"applied"`
	DryRun   bool          `json:"dry_run"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`
}

// payload is the input document handed to the trainer.
type payload struct {
	GeneratedAt time.Time              `json:"generated_at"`
	HistoryDays int                    `json:"history_days"`
	Events      []models.FeedbackEvent `json:"events"`
	Books       []models.Book          `json:"books"`
}

// Runner invokes the external trainer.
type Runner struct {
	cfg      Config
	store    *store.Store
	catalog  BookSource
	replacer ProfileReplacer
	now      func() time.Time
}

// NewRunner creates a trainer runner.
func NewRunner(cfg Config, st *store.Store, catalog BookSource, replacer ProfileReplacer) *Runner {
	cfg.applyDefaults()
	return &Runner{
		cfg:      cfg,
		store:    st,
		catalog:  catalog,
		replacer: replacer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Train runs one training pass: payload out, trainer invoked, report read,
// profiles applied. Synchronous; the caller decides about backgrounding.
// A failed run is never retried automatically.
func (r *Runner) Train(ctx context.Context, opts Options) (*Result, error) {
	if r.cfg.Command == "" {
		return nil, recerr.New(recerr.KindValidation, "no trainer command configured")
	}

	run := r.runConfig(opts)
	start := r.now()

	workDir, err := os.MkdirTemp("", "shelfwise-train-*")
	if err != nil {
		return nil, recerr.Wrap(recerr.KindInternal, err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logging.Warn().Err(err).Str("dir", workDir).Msg("failed to remove trainer work dir")
		}
	}()

	payloadPath := filepath.Join(workDir, "payload.json")
	reportPath := filepath.Join(workDir, "report.json")

	eventCount, err := r.writePayload(ctx, run, payloadPath)
	if err != nil {
		return nil, err
	}

	result, err := r.invoke(ctx, run, payloadPath, reportPath, opts)
	if err != nil {
		metrics.RecordTrainRun(trainOutcome(err), time.Since(start))
		return nil, err
	}
	result.Duration = time.Since(start)

	result.Report = r.readReport(ctx, reportPath)
	if result.Report == nil {
		metrics.RecordTrainRun("no_report", result.Duration)
		logging.CtxWarn(ctx).
			Int("events", eventCount).
			Msg("trainer finished without a readable report")
		return result, nil
	}

	if !opts.DryRun {
		applied, err := r.applyProfiles(ctx, result.Report, run.TopK)
		if err != nil {
			return nil, err
		}
		result.Applied = applied
	}
	result.DryRun = opts.DryRun

	metrics.RecordTrainRun("success", result.Duration)
	logging.CtxInfo(ctx).
		Int("events", eventCount).
		Int("profiles", result.Report.ProfilesTrained).
		Int("applied", result.Applied).
		Bool("dry_run", opts.DryRun).
		Dur("duration", result.Duration).
		Msg("training run completed")

	return result, nil
}

// writePayload collects the event history and the referenced book metadata
// into one payload file. Event scan and catalog fetches overlap via
// errgroup: book batches are fetched while later batches queue.
func (r *Runner) writePayload(ctx context.Context, run Config, path string) (int, error) {
	since := r.now().AddDate(0, 0, -run.HistoryDays).UnixNano()

	var events []models.FeedbackEvent
	itemIDs := make(map[int64]struct{})

	err := r.store.ScanFeedbackSince(ctx, since, func(ev *models.FeedbackEvent) error {
		if ev.FinalScore < run.MinScore {
			return nil
		}
		events = append(events, *ev)
		itemIDs[ev.ItemID] = struct{}{}
		return nil
	})
	if err != nil {
		return 0, recerr.Wrap(recerr.KindInternal, err)
	}

	books, err := r.fetchBooks(ctx, itemIDs)
	if err != nil {
		// Metadata is an enrichment; the trainer can work from events
		// alone.
		logging.CtxWarn(ctx).Err(err).Msg("book metadata unavailable for training payload")
		books = nil
	}

	doc := payload{
		GeneratedAt: r.now(),
		HistoryDays: run.HistoryDays,
		Events:      events,
		Books:       books,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, recerr.Wrap(recerr.KindInternal, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return 0, recerr.Wrap(recerr.KindInternal, err)
	}

	return len(events), nil
}

// fetchBooks hydrates the distinct item set in parallel batches.
func (r *Runner) fetchBooks(ctx context.Context, itemIDs map[int64]struct{}) ([]models.Book, error) {
	if r.catalog == nil || len(itemIDs) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(itemIDs))
	for id := range itemIDs {
		ids = append(ids, id)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	batches := make([][]models.Book, (len(ids)+catalogBatchSize-1)/catalogBatchSize)
	for i := 0; i < len(batches); i++ {
		i := i
		lo := i * catalogBatchSize
		hi := lo + catalogBatchSize
		if hi > len(ids) {
			hi = len(ids)
		}
		g.Go(func() error {
			books, err := r.catalog.GetBooks(gctx, ids[lo:hi])
			if err != nil {
				return err
			}
			batches[i] = books
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var books []models.Book
	for _, batch := range batches {
		books = append(books, batch...)
	}
	return books, nil
}

// invoke runs the trainer command under the configured ceiling. The process
// is killed when the ceiling passes; its captured output survives for
// diagnosis.
func (r *Runner) invoke(ctx context.Context, run Config, payloadPath, reportPath string, opts Options) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, run.Timeout)
	defer cancel()

	args := []string{
		"--history-days", strconv.Itoa(run.HistoryDays),
		"--min-score", strconv.FormatFloat(run.MinScore, 'f', -1, 64),
		"--top-k", strconv.Itoa(run.TopK),
		"--max-profiles", strconv.Itoa(run.MaxProfiles),
		"--payload-json", payloadPath,
		"--report-json", reportPath,
	}
	if opts.DryRun {
		args = append(args, "--dry-run")
	}

	cmd := exec.CommandContext(runCtx, run.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.CtxInfo(ctx).
		Str("command", run.Command).
		Strs("args", args).
		Msg("invoking trainer")

	err := cmd.Run()
	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, recerr.Wrap(recerr.KindUpstream,
				fmt.Errorf("trainer killed after %s: %w: stdout: %s: stderr: %s",
					run.Timeout, context.DeadlineExceeded, stdout.String(), stderr.String()))
		}
		return nil, recerr.Wrap(recerr.KindUpstream,
			fmt.Errorf("trainer failed: %w: stdout: %s: stderr: %s", err, stdout.String(), stderr.String()))
	}

	return result, nil
}

// readReport parses the report file. A missing or malformed report is not a
// run failure: the trainer exited zero, so the run counts, just without
// applicable output.
func (r *Runner) readReport(ctx context.Context, path string) *Report {
	data, err := os.ReadFile(path)
	if err != nil {
		logging.CtxWarn(ctx).Err(err).Msg("trainer report missing")
		return nil
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		logging.CtxWarn(ctx).Err(err).Msg("trainer report malformed")
		return nil
	}
	return &report
}

func (r *Runner) applyProfiles(ctx context.Context, report *Report, topK int) (int, error) {
	applied := 0
	for key, scores := range report.Profiles {
		if _, err := r.replacer.ReplaceProfile(ctx, key, scores, topK); err != nil {
			return applied, err
		}
		applied++
		metrics.TrainProfilesApplied.Inc()
	}
	return applied, nil
}

func trainOutcome(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "failed"
}
