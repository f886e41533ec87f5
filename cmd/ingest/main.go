// Command ingest is the CLI surface for the ingestion pipeline (§6):
//
//	ingest [flags] <project> <patch-or-directory>
//
// <project> is the live codebase root a forward/reverse patch is
// fuzzy-applied against; <patch-or-directory> is either a single .patch
// file or a directory, in which case every *.patch file in it is run
// through BatchScheduler.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/patextra/patchlink/internal/config"
	"github.com/patextra/patchlink/internal/graphengine"
	"github.com/patextra/patchlink/pkg/batch"
	"github.com/patextra/patchlink/pkg/fuzzyapply"
	"github.com/patextra/patchlink/pkg/ingest"
	"github.com/patextra/patchlink/pkg/linker"
	"github.com/patextra/patchlink/pkg/sourceimport"
	"github.com/patextra/patchlink/pkg/stats"
)

func main() {
	cfg := config.Register(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[Ingest] %v", err)
	}

	args := flag.Args()
	if len(args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <project> <patch-or-directory>\n", os.Args[0])
		os.Exit(1)
	}
	project, target := args[0], args[1]

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("[Ingest] failed to create data directory: %v", err)
	}
	if err := stats.InitStatsManager(cfg.DataDir); err != nil {
		log.Fatalf("[Ingest] failed to initialize stats manager: %v", err)
	}

	ctx := context.Background()

	engine, err := graphengine.Connect(ctx, cfg.DBURL, cfg.MaxRetries)
	if err != nil {
		log.Fatalf("[Ingest] failed to connect to graph engine: %v", err)
	}
	defer engine.Close()

	var graphEngine graphengine.Engine = engine
	if cfg.RedisAddr != "" {
		graphEngine = graphengine.NewCachedPathLookup(engine, cfg.RedisAddr, 0)
	}

	orchestrator := ingest.New(graphEngine, linker.New(graphEngine), fuzzyapply.New(cfg.PatchTool), cfg.WorkspaceDir, project)
	if cfg.SourceParserBin != "" {
		orchestrator.Importer = sourceimport.New(cfg.SourceParserBin, cfg.SourceParserOutDir, graphEngine)
	}
	scheduler := batch.New(orchestrator)
	scheduler.Concurrency = cfg.Concurrency
	scheduler.MaxRetries = cfg.MaxRetries

	patches, err := resolvePatchPaths(target)
	if err != nil {
		log.Fatalf("[Ingest] %v", err)
	}

	results := scheduler.Run(ctx, patches)

	succeeded := 0
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("importing %s ... FAILED: %v\n", r.Path, r.Err)
			continue
		}
		succeeded++
		fmt.Printf("importing %s ... connected %d/%d\n", r.Path, r.Report.Counters.ActualHunks, r.Report.Counters.OriginalHunks)
		fmt.Printf("  files %d/%d, lines +%d/-%d, avg hunk complexity %.3f\n",
			r.Report.Counters.ActualFilesAffected, r.Report.Counters.OriginalFilesAffected,
			r.Report.Counters.ActualLinesAdded, r.Report.Counters.ActualLinesRemoved,
			r.Report.Counters.AvgHunkComplexity)
	}
	fmt.Printf("\n%d/%d patches succeeded\n", succeeded, len(results))

	if statsManager := stats.GetStatsManager(); statsManager != nil {
		sessionStats := statsManager.GetSessionStats()
		persistentStats := statsManager.GetPersistentStats()
		log.Printf("[Ingest] Final statistics:\n%s", stats.FormatStats(sessionStats, persistentStats))
	}

	os.Exit(batch.ExitCode(results))
}

func resolvePatchPaths(target string) ([]string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", target, err)
	}
	if !info.IsDir() {
		return []string{target}, nil
	}
	return filepath.Glob(filepath.Join(target, "*.patch"))
}
