// Package sourceimport implements the "external source parser" collaborator
// from §6: a configurable external binary parses a directory of source
// files into the tabular CPG representation internal/graphengine's
// Engine.ImportParsedSource knows how to load, the way the original
// importer shelled out to joern-parse and then ran a CSV import (see
// patch_importer.py's _joern_import_file). This package owns only the
// process-invocation and per-call output-directory bookkeeping; the table
// format itself is the graph engine's contract, not this package's.
package sourceimport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/patextra/patchlink/internal/graphengine"
	"github.com/patextra/patchlink/pkg/cmdexec"
)

// Importer invokes BinaryPath against a source directory and loads its
// tabular output into Engine, implementing ingest.SourceImporter.
type Importer struct {
	// BinaryPath is the external source-parser executable: given
	// (sourceDir, outputDir) arguments, it must write nodes.csv (and
	// optionally edges.csv) into outputDir per Engine.ImportParsedSource's
	// format.
	BinaryPath string
	// OutputBaseDir is where each invocation's scratch output directory is
	// created; cleaned up after the import completes.
	OutputBaseDir string
	Engine        graphengine.Engine
}

// New returns an Importer. binaryPath defaults to "cpg-export" on PATH.
func New(binaryPath, outputBaseDir string, engine graphengine.Engine) *Importer {
	if binaryPath == "" {
		binaryPath = "cpg-export"
	}
	return &Importer{BinaryPath: binaryPath, OutputBaseDir: outputBaseDir, Engine: engine}
}

// ImportFile parses dir (a source tree containing relPath) and loads the
// result into i.Engine, returning relPath's File-vertex id. Used both for
// the side-car vulnerable-code path (dir = the patch's sibling directory)
// and for reverse-patch ingestion (dir = the scoped workspace root, already
// mutated by a reverse patch apply, per §4.5's reverse row).
func (i *Importer) ImportFile(ctx context.Context, dir, relPath string) (string, error) {
	outDir := filepath.Join(i.OutputBaseDir, uuid.NewString())
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("sourceimport: create output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	result, err := cmdexec.Run(ctx, 0, i.BinaryPath, []string{dir, outDir}, "")
	if err != nil {
		return "", fmt.Errorf("sourceimport: invoke parser for %s: %w", dir, err)
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("sourceimport: parser exited %d for %s: %s",
			result.ExitCode, dir, strings.TrimSpace(string(result.Stderr)))
	}

	fileID, err := i.Engine.ImportParsedSource(ctx, outDir, relPath)
	if err != nil {
		return "", fmt.Errorf("sourceimport: import parsed output for %s: %w", relPath, err)
	}
	return fileID, nil
}
