// Package workspace provides scoped acquisition of per-patch scratch
// directories, per spec §4.4. Each ingestion gets its own directory, seeded
// with copies of the files its sub-patches target, and torn down on release.
// It replaces the teacher's long-lived SessionStore (a map keyed by
// session_id, intended for an interactive MCP session) with a value that is
// acquired once per ingestion and released when the ingestion finishes,
// matching the teacher's "one concern, one struct, log on every boundary"
// style rather than its session-registry shape.
package workspace

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/patextra/patchlink/pkg/diffpatch"
)

// Workspace is a scratch directory scoped to a single patch ingestion.
type Workspace struct {
	Root string
}

// Acquire creates a new, uniquely named scratch directory under baseDir.
func Acquire(baseDir string) (*Workspace, error) {
	root := filepath.Join(baseDir, uuid.NewString())
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: acquire %s: %w", root, err)
	}
	log.Printf("[Workspace] acquired %s", root)
	return &Workspace{Root: root}, nil
}

// Release tears down the scratch directory. It is safe to call more than
// once; failures are logged rather than returned since a caller tearing down
// after a successful ingestion has nothing useful left to do with an error.
func (w *Workspace) Release() {
	if w == nil || w.Root == "" {
		return
	}
	if err := os.RemoveAll(w.Root); err != nil {
		log.Printf("[Workspace] release %s failed: %v", w.Root, err)
		return
	}
	log.Printf("[Workspace] released %s", w.Root)
}

// Seed copies, for each sub-patch, the current on-disk file it targets from
// sourceRoot into the workspace at the same relative path, creating parent
// directories as needed. A sub-patch whose target file does not exist under
// sourceRoot is skipped (the patch may be adding a brand-new file), not
// treated as an error. It returns the relative paths actually seeded.
func (w *Workspace) Seed(subPatches []diffpatch.SubPatch, sourceRoot string) ([]string, error) {
	var seeded []string

	for _, sp := range subPatches {
		src := filepath.Join(sourceRoot, sp.Path)
		if _, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return seeded, fmt.Errorf("workspace: stat %s: %w", src, err)
		}

		dst := filepath.Join(w.Root, sp.Path)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return seeded, fmt.Errorf("workspace: mkdir for %s: %w", dst, err)
		}
		if err := copyFile(src, dst); err != nil {
			return seeded, fmt.Errorf("workspace: seed %s: %w", sp.Path, err)
		}
		seeded = append(seeded, sp.Path)
	}

	return seeded, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
