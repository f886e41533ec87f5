// Package config centralizes the flag-based configuration shared by
// cmd/ingest and cmd/mcp-server, the way the teacher's cmd/mcp-server/main.go
// declares its flags at package level but scoped into one struct since two
// binaries now need the same values.
package config

import (
	"flag"
	"fmt"
	"path/filepath"

	"github.com/patextra/patchlink/pkg/batch"
)

// Config holds every value either binary needs to construct an
// IngestionOrchestrator/BatchScheduler/GraphEngine.
type Config struct {
	Concurrency int    // BatchScheduler's N (§4.7), default 8
	MaxRetries  int    // optimistic-concurrency retry budget, default 6
	PatchTool   string // path to the external patch binary, default "patch"
	DataDir     string // stats persistence directory
	DBURL       string // Postgres DSN for the graph engine
	RedisAddr   string // optional path-lookup cache address, empty disables it
	WorkspaceDir string // base directory for scoped scratch workspaces

	SourceParserBin    string // external source-parser binary (§6 "External source parser"), empty disables the side-car/reverse-import paths
	SourceParserOutDir string // base directory for the source parser's scratch output trees
}

// Register adds this package's flags to fs and returns a Config populated
// once fs.Parse has run. Both cmd/ingest and cmd/mcp-server call this with
// flag.CommandLine, the teacher's convention of parsing flags in main().
func Register(fs *flag.FlagSet) *Config {
	cfg := &Config{}
	fs.IntVar(&cfg.Concurrency, "concurrency", batch.DefaultConcurrency, "number of patches to ingest concurrently")
	fs.IntVar(&cfg.MaxRetries, "max-retries", batch.DefaultMaxRetries, "optimistic-concurrency retry budget for graph writes")
	fs.StringVar(&cfg.PatchTool, "patch-tool", "patch", "path to the external patch binary")
	fs.StringVar(&cfg.DataDir, "data-dir", filepath.Join(".", "data"), "directory to store persisted stats")
	fs.StringVar(&cfg.DBURL, "db-url", "", "Postgres DSN backing the graph engine")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "", "optional Redis address for the file-path lookup cache (empty disables it)")
	fs.StringVar(&cfg.WorkspaceDir, "workspace-dir", filepath.Join(".", "workspaces"), "base directory for per-patch scratch workspaces")
	fs.StringVar(&cfg.SourceParserBin, "source-parser-bin", "", "external source-parser binary for the side-car and reverse-import paths (empty disables them)")
	fs.StringVar(&cfg.SourceParserOutDir, "source-parser-out-dir", filepath.Join(".", "parsed"), "base directory for the source parser's scratch output trees")
	return cfg
}

// Validate reports the first missing required value.
func (c *Config) Validate() error {
	if c.DBURL == "" {
		return fmt.Errorf("config: -db-url is required")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("config: -concurrency must be positive")
	}
	return nil
}
