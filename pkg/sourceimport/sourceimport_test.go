package sourceimport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/patextra/patchlink/internal/graphengine"
)

// writeFakeParser writes a shell script standing in for the real external
// source-parser binary: given (sourceDir, outputDir) arguments, it drops a
// single-file nodes.csv into outputDir, just like a real parser would.
func writeFakeParser(t *testing.T, relPath string) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "fake-parser.sh")
	body := "#!/bin/sh\n" +
		"set -e\n" +
		"outdir=\"$2\"\n" +
		"printf 'rawID,label,path,startLine,endLine\\nn1,File," + relPath + ",0,0\\nn2,Method," + relPath + ",2,4\\n' > \"$outdir/nodes.csv\"\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write fake parser: %v", err)
	}
	return script
}

func TestImporter_ImportFileLoadsParsedOutput(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}

	engine := graphengine.NewFakeEngine()
	relPath := "src/foo.c"
	parser := writeFakeParser(t, relPath)

	imp := New(parser, t.TempDir(), engine)

	fileID, err := imp.ImportFile(context.Background(), t.TempDir(), relPath)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if fileID == "" {
		t.Fatalf("expected a non-empty file id")
	}
	if got := engine.FilesByPath[relPath]; got != fileID {
		t.Fatalf("FilesByPath[%s] = %q, want %q", relPath, got, fileID)
	}
}

func TestImporter_DefaultsBinaryPath(t *testing.T) {
	imp := New("", t.TempDir(), graphengine.NewFakeEngine())
	if imp.BinaryPath != "cpg-export" {
		t.Fatalf("expected default binary path cpg-export, got %q", imp.BinaryPath)
	}
}
