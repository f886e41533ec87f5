// Package batch implements BatchScheduler (§4.7): a bounded worker pool
// that runs IngestionOrchestrator over many patch files, ordered by size
// ascending, retrying each patch's graph writes on optimistic-concurrency
// conflicts.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/patextra/patchlink/internal/graphengine"
	"github.com/patextra/patchlink/pkg/ingest"
)

// DefaultConcurrency is BatchScheduler's default worker count N (§4.7).
const DefaultConcurrency = 8

// DefaultMaxRetries bounds the optimistic-concurrency retry wrapped around
// every patch's graph writes (§4.7).
const DefaultMaxRetries = 6

// PatchResult is one patch file's outcome, success or failure.
type PatchResult struct {
	Path   string
	Report *ingest.Report
	Err    error
}

// Scheduler runs a fixed-size worker pool over a list of patch paths.
type Scheduler struct {
	Orchestrator *ingest.Orchestrator
	Concurrency  int
	MaxRetries   int
}

// New returns a Scheduler with DefaultConcurrency/DefaultMaxRetries.
func New(orchestrator *ingest.Orchestrator) *Scheduler {
	return &Scheduler{
		Orchestrator: orchestrator,
		Concurrency:  DefaultConcurrency,
		MaxRetries:   DefaultMaxRetries,
	}
}

// Run ingests every path in paths, ordered by file size ascending, using up
// to s.Concurrency workers. It never stops early on a single patch's
// failure — every dispatched patch gets a result, recorded in the returned
// slice in the same size-ascending order the patches were dispatched in
// (not completion order). Once ctx is cancelled no further patches are
// dispatched, and those patches have no entry in the returned slice.
func (s *Scheduler) Run(ctx context.Context, paths []string) []PatchResult {
	ordered := sortBySizeAscending(paths)

	jobs := make(chan string)
	resultsCh := make(chan PatchResult, len(ordered))

	n := s.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}

	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go s.worker(ctx, jobs, resultsCh, done)
	}

	go func() {
		defer close(jobs)
		for _, p := range ordered {
			select {
			case jobs <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		for i := 0; i < n; i++ {
			<-done
		}
		close(resultsCh)
	}()

	byPath := make(map[string]PatchResult, len(ordered))
	for r := range resultsCh {
		byPath[r.Path] = r
	}

	results := make([]PatchResult, 0, len(ordered))
	for _, p := range ordered {
		if r, ok := byPath[p]; ok {
			results = append(results, r)
		}
	}
	return results
}

func (s *Scheduler) worker(ctx context.Context, jobs <-chan string, results chan<- PatchResult, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	for path := range jobs {
		raw, err := os.ReadFile(path)
		if err != nil {
			results <- PatchResult{Path: path, Err: fmt.Errorf("batch: read %s: %w", path, err)}
			continue
		}

		report, err := s.runWithRetry(ctx, path, raw)
		if err != nil {
			log.Printf("[Batch] %s failed: %v", path, err)
		}
		results <- PatchResult{Path: path, Report: report, Err: err}
	}
}

// runWithRetry retries only on graphengine.ErrConflict; every other error
// fails the patch immediately, per §4.7/§7.
func (s *Scheduler) runWithRetry(ctx context.Context, path string, raw []byte) (*ingest.Report, error) {
	maxRetries := s.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		report, err := s.Orchestrator.Run(ctx, path, raw)
		if err == nil {
			return report, nil
		}
		if !errors.Is(err, graphengine.ErrConflict) {
			return nil, err
		}
		lastErr = err
		log.Printf("[Batch] %s: graph conflict, retrying (attempt %d/%d)", path, attempt+1, maxRetries)
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return nil, lastErr
}

// ExitCode implements §7's batch exit-code policy: zero if any patch
// succeeded, non-zero only if none were processable.
func ExitCode(results []PatchResult) int {
	for _, r := range results {
		if r.Err == nil {
			return 0
		}
	}
	return 1
}

func sortBySizeAscending(paths []string) []string {
	type sized struct {
		path string
		size int64
	}
	entries := make([]sized, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		var size int64
		if err == nil {
			size = info.Size()
		}
		entries = append(entries, sized{path: p, size: size})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].size < entries[j].size })

	ordered := make([]string, len(entries))
	for i, e := range entries {
		ordered[i] = e.path
	}
	return ordered
}
