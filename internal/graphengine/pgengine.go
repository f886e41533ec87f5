package graphengine

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGEngine is a GraphEngine implementation over a vertices/edges schema in
// Postgres:
//
//	vertices(id uuid primary key, label text, props jsonb)
//	edges(from_id uuid, to_id uuid, label text)
//
// CPG vertices (file-version and code nodes) are assumed pre-loaded by the
// external source parser (§6); PGEngine reads them by id/path and never
// mutates them. The one place it creates CPG vertices is ImportParsedSource,
// which loads a parsed snapshot produced during ingestion.
type PGEngine struct {
	Pool *pgxpool.Pool

	// MaxRetries bounds SetPatchCounters' optimistic-concurrency retry loop
	// (§4.7, default 6).
	MaxRetries int
}

// Connect opens a pooled connection to dsn. maxRetries defaults to 6 when <= 0.
func Connect(ctx context.Context, dsn string, maxRetries int) (*PGEngine, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("graphengine: connect: %w", err)
	}
	if maxRetries <= 0 {
		maxRetries = 6
	}
	return &PGEngine{Pool: pool, MaxRetries: maxRetries}, nil
}

func (e *PGEngine) Close() {
	e.Pool.Close()
}

const uniqueViolation = "23505"

func (e *PGEngine) CreatePatchNode(ctx context.Context, path, description string) (string, error) {
	var id string
	err := e.Pool.QueryRow(ctx, `
		SELECT id FROM vertices
		WHERE label = $1 AND props->>'path' = $2`, LabelPatch, path).Scan(&id)
	if err == nil {
		return id, ErrDuplicatePatch
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("graphengine: lookup patch node: %w", err)
	}

	err = e.Pool.QueryRow(ctx, `
		INSERT INTO vertices (id, label, props)
		VALUES (gen_random_uuid(), $1, jsonb_build_object('path', $2, 'description', $3))
		RETURNING id`, LabelPatch, path, description).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			// A concurrent creation for the same path won the race: return
			// its id, the same result a sequential second call gets.
			if lookupErr := e.Pool.QueryRow(ctx, `
				SELECT id FROM vertices
				WHERE label = $1 AND props->>'path' = $2`, LabelPatch, path).Scan(&id); lookupErr != nil {
				return "", fmt.Errorf("graphengine: lookup patch node after duplicate: %w", lookupErr)
			}
			return id, ErrDuplicatePatch
		}
		return "", fmt.Errorf("graphengine: create patch node: %w", err)
	}
	return id, nil
}

func (e *PGEngine) CleanupPatchEffects(ctx context.Context, patchID string) error {
	tag, err := e.Pool.Exec(ctx, `
		DELETE FROM vertices
		WHERE id IN (
			SELECT pf.to_id
			FROM edges pf
			WHERE pf.from_id = $1 AND pf.label = $2
		) OR id IN (
			SELECT h.to_id
			FROM edges h
			JOIN edges pf ON h.from_id = pf.to_id AND pf.label = $2
			WHERE pf.from_id = $1 AND h.label = $3
		)`, patchID, EdgeAffects, EdgeApplies)
	if err != nil {
		return fmt.Errorf("graphengine: cleanup patch effects: %w", err)
	}
	log.Printf("[GraphEngine] cleaned up %d vertices owned by patch %s", tag.RowsAffected(), patchID)
	return nil
}

func (e *PGEngine) QueryFileByPath(ctx context.Context, suffix string) ([]string, error) {
	rows, err := e.Pool.Query(ctx, `
		SELECT id FROM vertices
		WHERE label = $2 AND props->>'path' LIKE '%' || $1
			AND coalesce((props->>'synthetic')::bool, false) = false`, suffix, fileVertexLabel)
	if err != nil {
		return nil, fmt.Errorf("graphengine: query file by path: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("graphengine: scan file id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (e *PGEngine) CreatePatchFileNode(ctx context.Context, patchID, fileID string) (string, error) {
	var id string
	err := e.Pool.QueryRow(ctx, `
		INSERT INTO vertices (id, label, props) VALUES (gen_random_uuid(), $1, '{}'::jsonb)
		RETURNING id`, LabelPatchFile).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("graphengine: create patch file node: %w", err)
	}

	if _, err := e.Pool.Exec(ctx, `INSERT INTO edges (from_id, to_id, label) VALUES ($1, $2, $3)`,
		patchID, id, EdgeAffects); err != nil {
		return "", fmt.Errorf("graphengine: link affects: %w", err)
	}
	if _, err := e.Pool.Exec(ctx, `INSERT INTO edges (from_id, to_id, label) VALUES ($1, $2, $3)`,
		id, fileID, EdgeIsFile); err != nil {
		return "", fmt.Errorf("graphengine: link isFile: %w", err)
	}
	return id, nil
}

func (e *PGEngine) CreateHunkNode(ctx context.Context, patchFileID string, linesAdded, linesRemoved int) (string, error) {
	var id string
	err := e.Pool.QueryRow(ctx, `
		INSERT INTO vertices (id, label, props)
		VALUES (gen_random_uuid(), $1, jsonb_build_object('linesAdded', $2::int, 'linesRemoved', $3::int))
		RETURNING id`, LabelHunk, linesAdded, linesRemoved).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("graphengine: create hunk node: %w", err)
	}

	if _, err := e.Pool.Exec(ctx, `INSERT INTO edges (from_id, to_id, label) VALUES ($1, $2, $3)`,
		patchFileID, id, EdgeApplies); err != nil {
		return "", fmt.Errorf("graphengine: link applies: %w", err)
	}
	return id, nil
}

func (e *PGEngine) ConnectPatchWithAffectedCode(ctx context.Context, fileID, hunkID, op string, start, end int) (int, error) {
	var label EdgeLabel
	switch op {
	case "add":
		label = EdgeAdds
	case "remove":
		label = EdgeRemoves
	case "replace":
		label = EdgeReplaces
	default:
		return 0, fmt.Errorf("graphengine: unknown segment op %q", op)
	}

	rows, err := e.Pool.Query(ctx, `
		SELECT v.id FROM vertices v
		JOIN edges fv ON fv.to_id = v.id AND fv.from_id = $1
		WHERE (v.props->>'startLine')::int <= $3 AND (v.props->>'endLine')::int >= $2`,
		fileID, start, end)
	if err != nil {
		return 0, fmt.Errorf("graphengine: range query: %w", err)
	}
	defer rows.Close()

	var linked int
	for rows.Next() {
		var nodeID string
		if err := rows.Scan(&nodeID); err != nil {
			return linked, fmt.Errorf("graphengine: scan cpg node: %w", err)
		}
		if _, err := e.Pool.Exec(ctx, `INSERT INTO edges (from_id, to_id, label) VALUES ($1, $2, $3)`,
			hunkID, nodeID, label); err != nil {
			return linked, fmt.Errorf("graphengine: link %s: %w", label, err)
		}
		linked++
	}
	return linked, rows.Err()
}

// SetPatchCounters writes counters with optimistic-concurrency retry: any
// *pgconn.PgError the UPDATE returns (a conflicting concurrent write, a
// dropped connection mid-transaction, etc.) is treated as retryable and
// logged, up to MaxRetries retries after the first attempt (MaxRetries+1
// attempts in all), before returning ErrConflict;
// mirroring the "Concurrency error. Retrying..." loop the original importer
// ran around its writes.
func (e *PGEngine) SetPatchCounters(ctx context.Context, patchID string, counters PatchCounters) error {
	for attempt := 0; attempt <= e.MaxRetries; attempt++ {
		tag, err := e.Pool.Exec(ctx, `
			UPDATE vertices
			SET props = props || jsonb_build_object(
				'reversed', $2::bool,
				'originalFilesAffected', $3::int,
				'originalLinesAdded', $4::int,
				'originalLinesRemoved', $5::int,
				'originalHunks', $6::int,
				'actualFilesAffected', $7::int,
				'actualLinesAdded', $8::int,
				'actualLinesRemoved', $9::int,
				'actualHunks', $10::int,
				'avgHunkComplexity', $11::numeric
			)
			WHERE id = $1 AND label = $12`,
			patchID, counters.Reversed,
			counters.OriginalFilesAffected, counters.OriginalLinesAdded, counters.OriginalLinesRemoved, counters.OriginalHunks,
			counters.ActualFilesAffected, counters.ActualLinesAdded, counters.ActualLinesRemoved, counters.ActualHunks,
			counters.AvgHunkComplexity, LabelPatch)
		if err == nil {
			if tag.RowsAffected() == 1 {
				return nil
			}
			err = fmt.Errorf("patch node %s not found", patchID)
		}

		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) {
			return fmt.Errorf("graphengine: set patch counters: %w", err)
		}
		log.Printf("[GraphEngine] concurrency error on patch %s, retrying (attempt %d/%d): %v", patchID, attempt+1, e.MaxRetries, err)
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return ErrConflict
}

func (e *PGEngine) GetPatchCounters(ctx context.Context, patchID string) (PatchCounters, error) {
	var c PatchCounters
	err := e.Pool.QueryRow(ctx, `
		SELECT
			coalesce((props->>'reversed')::bool, false),
			coalesce((props->>'originalFilesAffected')::int, 0),
			coalesce((props->>'originalLinesAdded')::int, 0),
			coalesce((props->>'originalLinesRemoved')::int, 0),
			coalesce((props->>'originalHunks')::int, 0),
			coalesce((props->>'actualFilesAffected')::int, 0),
			coalesce((props->>'actualLinesAdded')::int, 0),
			coalesce((props->>'actualLinesRemoved')::int, 0),
			coalesce((props->>'actualHunks')::int, 0),
			coalesce((props->>'avgHunkComplexity')::float8, 0)
		FROM vertices
		WHERE id = $1 AND label = $2`, patchID, LabelPatch).Scan(
		&c.Reversed,
		&c.OriginalFilesAffected, &c.OriginalLinesAdded, &c.OriginalLinesRemoved, &c.OriginalHunks,
		&c.ActualFilesAffected, &c.ActualLinesAdded, &c.ActualLinesRemoved, &c.ActualHunks,
		&c.AvgHunkComplexity)
	if err != nil {
		return PatchCounters{}, fmt.Errorf("graphengine: get patch counters: %w", err)
	}
	return c, nil
}

func (e *PGEngine) RemoveVertex(ctx context.Context, id string) error {
	if _, err := e.Pool.Exec(ctx, `DELETE FROM edges WHERE from_id = $1 OR to_id = $1`, id); err != nil {
		return fmt.Errorf("graphengine: remove vertex edges: %w", err)
	}
	if _, err := e.Pool.Exec(ctx, `DELETE FROM vertices WHERE id = $1`, id); err != nil {
		return fmt.Errorf("graphengine: remove vertex: %w", err)
	}
	return nil
}

// ImportParsedSource loads a tabular CPG export produced by the external
// source parser into the vertices/edges tables. tableDir is expected to
// contain:
//
//	nodes.csv: rawID,label,path,startLine,endLine
//	edges.csv: rawFromID,rawToID,label   (optional; omitted files are fine)
//
// This is this repo's own simplified tabular schema — the pack ships no
// off-the-shelf CPG-import tool whose on-disk format could be copied
// instead (see DESIGN.md). Exactly one row must carry label "File" with
// path == relPath; every non-File row is wired to that file vertex via a
// "contains" edge so ConnectPatchWithAffectedCode's range query can find it.
// The File row's vertex is inserted with props.synthetic = true, so it
// never shows up in a later, unrelated QueryFileByPath lookup for the same
// path — each call here loads a one-off parsed snapshot (the side-car or
// reverse-patch derived file), not a durable addition to the file index.
// Non-File rows never carry a 'path' prop at all: QueryFileByPath only ever
// matches File-labeled vertices, but withholding 'path' from code rows keeps
// that invariant true even if that filter is ever loosened.
func (e *PGEngine) ImportParsedSource(ctx context.Context, tableDir, relPath string) (string, error) {
	rows, err := readCSVRows(filepath.Join(tableDir, "nodes.csv"))
	if err != nil {
		return "", fmt.Errorf("graphengine: open nodes.csv: %w", err)
	}
	if len(rows) < 2 {
		return "", fmt.Errorf("graphengine: nodes.csv for %s has no data rows", relPath)
	}

	ids := make(map[string]string, len(rows)-1)
	var fileVertexID string
	var codeVertexIDs []string

	for _, row := range rows[1:] {
		if len(row) < 5 {
			continue
		}
		rawID, label, path, startLine, endLine := row[0], row[1], row[2], row[3], row[4]

		var id string
		if label == fileVertexLabel {
			err = e.Pool.QueryRow(ctx, `
				INSERT INTO vertices (id, label, props)
				VALUES (gen_random_uuid(), $1, jsonb_build_object('path', $2, 'synthetic', true))
				RETURNING id`, label, path).Scan(&id)
		} else {
			err = e.Pool.QueryRow(ctx, `
				INSERT INTO vertices (id, label, props)
				VALUES (gen_random_uuid(), $1, jsonb_build_object('startLine', $2::int, 'endLine', $3::int))
				RETURNING id`, label, startLine, endLine).Scan(&id)
		}
		if err != nil {
			return "", fmt.Errorf("graphengine: insert parsed vertex: %w", err)
		}
		ids[rawID] = id

		if label == fileVertexLabel && path == relPath {
			fileVertexID = id
		} else if label != fileVertexLabel {
			codeVertexIDs = append(codeVertexIDs, id)
		}
	}
	if fileVertexID == "" {
		return "", fmt.Errorf("graphengine: parsed output for %s has no matching File vertex", relPath)
	}

	for _, codeID := range codeVertexIDs {
		if _, err := e.Pool.Exec(ctx, `INSERT INTO edges (from_id, to_id, label) VALUES ($1, $2, $3)`,
			fileVertexID, codeID, "contains"); err != nil {
			return "", fmt.Errorf("graphengine: link contains: %w", err)
		}
	}

	if err := e.importParsedEdges(ctx, tableDir, ids); err != nil {
		return "", err
	}
	return fileVertexID, nil
}

func (e *PGEngine) importParsedEdges(ctx context.Context, tableDir string, ids map[string]string) error {
	rows, err := readCSVRows(filepath.Join(tableDir, "edges.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("graphengine: open edges.csv: %w", err)
	}
	if len(rows) < 2 {
		return nil
	}

	for _, row := range rows[1:] {
		if len(row) < 3 {
			continue
		}
		fromID, ok1 := ids[row[0]]
		toID, ok2 := ids[row[1]]
		if !ok1 || !ok2 {
			continue
		}
		if _, err := e.Pool.Exec(ctx, `INSERT INTO edges (from_id, to_id, label) VALUES ($1, $2, $3)`,
			fromID, toID, row[2]); err != nil {
			return fmt.Errorf("graphengine: insert parsed edge: %w", err)
		}
	}
	return nil
}

func readCSVRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return csv.NewReader(f).ReadAll()
}
