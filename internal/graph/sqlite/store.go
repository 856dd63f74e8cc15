// Package sqlite implements graph.Store on a single SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/imyousuf/CodeContext/internal/graph"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS nodes (
  id         TEXT PRIMARY KEY,
  type       TEXT NOT NULL,
  name       TEXT NOT NULL,
  file       TEXT NOT NULL,
  start_line INTEGER NOT NULL,
  end_line   INTEGER NOT NULL,
  content    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_nodes_file ON nodes(file);
CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(name);
CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(type);

CREATE TABLE IF NOT EXISTS edges (
  source_id    TEXT NOT NULL,
  target_id    TEXT NOT NULL,
  relationship TEXT NOT NULL,
  metadata     TEXT,
  PRIMARY KEY (source_id, target_id, relationship)
);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);

CREATE TABLE IF NOT EXISTS imports (
  file          TEXT NOT NULL,
  alias         TEXT NOT NULL,
  module        TEXT NOT NULL,
  original_name TEXT NOT NULL DEFAULT '',
  kind          TEXT NOT NULL,
  resolved_file TEXT NOT NULL DEFAULT '',
  package_files TEXT NOT NULL DEFAULT '',
  line          INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (file, alias)
);
CREATE INDEX IF NOT EXISTS idx_imports_resolved ON imports(resolved_file);

CREATE TABLE IF NOT EXISTS exports (
  file    TEXT NOT NULL,
  name    TEXT NOT NULL,
  node_id TEXT NOT NULL,
  PRIMARY KEY (file, name)
);
CREATE INDEX IF NOT EXISTS idx_exports_name ON exports(name);

CREATE TABLE IF NOT EXISTS imported_by (
  file     TEXT NOT NULL,
  importer TEXT NOT NULL,
  PRIMARY KEY (file, importer)
);

CREATE TABLE IF NOT EXISTS meta (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
`

// querier is the subset of *sql.DB and *sql.Tx the store needs.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements graph.Store using SQLite. The database is used through a
// single connection; inside Bulk every operation runs on the held transaction.
type Store struct {
	db *sql.DB

	mu sync.Mutex // serializes access and guards tx
	tx *sql.Tx
}

var _ graph.Store = (*Store)(nil)

// NewStore opens (or creates) a SQLite database at dbPath with WAL mode
// enabled and applies the schema.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// with runs fn under the store lock against the bulk transaction when one is
// held, or the database otherwise.
func (s *Store) with(fn func(q querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return fn(s.tx)
	}
	return fn(s.db)
}

// atomically runs fn in a transaction of its own, or in the held bulk
// transaction.
func (s *Store) atomically(ctx context.Context, fn func(q querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return fn(s.tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) PutNode(ctx context.Context, n *graph.Node) (bool, error) {
	var created bool
	err := s.with(func(q querier) error {
		var one int
		err := q.QueryRowContext(ctx, "SELECT 1 FROM nodes WHERE id = ?", n.ID).Scan(&one)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			created = true
		case err != nil:
			return err
		}
		_, err = q.ExecContext(ctx, `INSERT INTO nodes (id, type, name, file, start_line, end_line, content)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET end_line = excluded.end_line, content = excluded.content`,
			n.ID, string(n.Type), n.Name, n.File, n.StartLine, n.EndLine, n.Content)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("put node %s: %w", n.ID, err)
	}
	return created, nil
}

func (s *Store) PutEdge(ctx context.Context, e *graph.Edge) (bool, error) {
	var meta sql.NullString
	if len(e.Metadata) > 0 {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			return false, fmt.Errorf("marshal edge metadata: %w", err)
		}
		meta = sql.NullString{String: string(data), Valid: true}
	}
	var created bool
	err := s.with(func(q querier) error {
		res, err := q.ExecContext(ctx,
			"INSERT OR IGNORE INTO edges (source_id, target_id, relationship, metadata) VALUES (?, ?, ?, ?)",
			e.SourceID, e.TargetID, string(e.Relationship), meta)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = affected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("put edge %s: %w", e.Key(), err)
	}
	return created, nil
}

const nodeColumns = "id, type, name, file, start_line, end_line, content"

func scanNode(row interface{ Scan(...any) error }) (*graph.Node, error) {
	var n graph.Node
	var typ string
	if err := row.Scan(&n.ID, &typ, &n.Name, &n.File, &n.StartLine, &n.EndLine, &n.Content); err != nil {
		return nil, err
	}
	n.Type = graph.NodeType(typ)
	return &n, nil
}

func (s *Store) GetNode(ctx context.Context, id string) (*graph.Node, error) {
	var node *graph.Node
	err := s.with(func(q querier) error {
		var err error
		node, err = scanNode(q.QueryRowContext(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE id = ?", id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, graph.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	return node, nil
}

func (s *Store) queryEdges(ctx context.Context, where string, arg string) ([]*graph.Edge, error) {
	var edges []*graph.Edge
	err := s.with(func(q querier) error {
		rows, err := q.QueryContext(ctx,
			"SELECT source_id, target_id, relationship, metadata FROM edges WHERE "+where+" = ?", arg)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanEdge(rows)
			if err != nil {
				return err
			}
			edges = append(edges, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	return edges, nil
}

func scanEdge(rows *sql.Rows) (*graph.Edge, error) {
	var e graph.Edge
	var rel string
	var meta sql.NullString
	if err := rows.Scan(&e.SourceID, &e.TargetID, &rel, &meta); err != nil {
		return nil, err
	}
	e.Relationship = graph.Relationship(rel)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal edge metadata: %w", err)
		}
	}
	return &e, nil
}

func (s *Store) EdgesFrom(ctx context.Context, id string) ([]*graph.Edge, error) {
	return s.queryEdges(ctx, "source_id", id)
}

func (s *Store) EdgesTo(ctx context.Context, id string) ([]*graph.Edge, error) {
	return s.queryEdges(ctx, "target_id", id)
}

func (s *Store) QueryNodes(ctx context.Context, filter graph.NodeFilter) ([]*graph.Node, error) {
	query := "SELECT " + nodeColumns + " FROM nodes WHERE 1=1"
	var args []any
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.File != "" {
		query += " AND file = ?"
		args = append(args, filter.File)
	}
	if filter.Name != "" {
		query += " AND name = ?"
		args = append(args, filter.Name)
	}
	var results []*graph.Node
	err := s.with(func(q querier) error {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			n, err := scanNode(rows)
			if err != nil {
				return err
			}
			results = append(results, n)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	return results, nil
}

func (s *Store) ScanNodes(ctx context.Context, fn func(*graph.Node) bool) error {
	return s.with(func(q querier) error {
		rows, err := q.QueryContext(ctx, "SELECT "+nodeColumns+" FROM nodes ORDER BY id")
		if err != nil {
			return fmt.Errorf("scan nodes: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			n, err := scanNode(rows)
			if err != nil {
				return err
			}
			if !fn(n) {
				return nil
			}
		}
		return rows.Err()
	})
}

func (s *Store) ScanEdges(ctx context.Context, fn func(*graph.Edge) bool) error {
	return s.with(func(q querier) error {
		rows, err := q.QueryContext(ctx,
			"SELECT source_id, target_id, relationship, metadata FROM edges ORDER BY source_id, relationship, target_id")
		if err != nil {
			return fmt.Errorf("scan edges: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanEdge(rows)
			if err != nil {
				return err
			}
			if !fn(e) {
				return nil
			}
		}
		return rows.Err()
	})
}

func (s *Store) PutImport(ctx context.Context, importer, alias string, rec graph.ImportRecord) error {
	err := s.atomically(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx, `INSERT INTO imports (file, alias, module, original_name, kind, resolved_file, package_files, line)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(file, alias) DO UPDATE SET module = excluded.module, original_name = excluded.original_name,
  kind = excluded.kind, resolved_file = excluded.resolved_file, package_files = excluded.package_files,
  line = excluded.line`,
			importer, alias, rec.Module, rec.OriginalName, string(rec.Kind), rec.ResolvedFile,
			strings.Join(rec.PackageFiles, "\n"), rec.Line)
		if err != nil {
			return err
		}
		for _, f := range rec.Files() {
			if _, err := q.ExecContext(ctx, "INSERT OR IGNORE INTO imported_by (file, importer) VALUES (?, ?)", f, importer); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put import %s in %s: %w", alias, importer, err)
	}
	return nil
}

const importColumns = "file, alias, module, original_name, kind, resolved_file, package_files, line"

func (s *Store) queryImports(ctx context.Context, query string, args ...any) (map[string]map[string]graph.ImportRecord, error) {
	out := make(map[string]map[string]graph.ImportRecord)
	err := s.with(func(q querier) error {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var file, alias, kind, pkgFiles string
			var rec graph.ImportRecord
			if err := rows.Scan(&file, &alias, &rec.Module, &rec.OriginalName, &kind, &rec.ResolvedFile, &pkgFiles, &rec.Line); err != nil {
				return err
			}
			rec.Kind = graph.ImportKind(kind)
			if pkgFiles != "" {
				rec.PackageFiles = strings.Split(pkgFiles, "\n")
			}
			m, ok := out[file]
			if !ok {
				m = make(map[string]graph.ImportRecord)
				out[file] = m
			}
			m[alias] = rec
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query imports: %w", err)
	}
	return out, nil
}

func (s *Store) Imports(ctx context.Context, file string) (map[string]graph.ImportRecord, error) {
	all, err := s.queryImports(ctx, "SELECT "+importColumns+" FROM imports WHERE file = ?", file)
	if err != nil {
		return nil, err
	}
	if m, ok := all[file]; ok {
		return m, nil
	}
	return map[string]graph.ImportRecord{}, nil
}

func (s *Store) AllImports(ctx context.Context) (map[string]map[string]graph.ImportRecord, error) {
	return s.queryImports(ctx, "SELECT "+importColumns+" FROM imports")
}

func (s *Store) PutExport(ctx context.Context, file, name, nodeID string) error {
	err := s.with(func(q querier) error {
		_, err := q.ExecContext(ctx, `INSERT INTO exports (file, name, node_id) VALUES (?, ?, ?)
ON CONFLICT(file, name) DO UPDATE SET node_id = excluded.node_id`, file, name, nodeID)
		return err
	})
	if err != nil {
		return fmt.Errorf("put export %s in %s: %w", name, file, err)
	}
	return nil
}

func (s *Store) Exports(ctx context.Context, file string) (*graph.ExportRecord, error) {
	rec := &graph.ExportRecord{Symbols: make(map[string]string), ImportedBy: []string{}}
	err := s.with(func(q querier) error {
		rows, err := q.QueryContext(ctx, "SELECT name, node_id FROM exports WHERE file = ?", file)
		if err != nil {
			return err
		}
		for rows.Next() {
			var name, id string
			if err := rows.Scan(&name, &id); err != nil {
				rows.Close()
				return err
			}
			rec.Symbols[name] = id
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = q.QueryContext(ctx, "SELECT importer FROM imported_by WHERE file = ? ORDER BY importer", file)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var importer string
			if err := rows.Scan(&importer); err != nil {
				return err
			}
			rec.ImportedBy = append(rec.ImportedBy, importer)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("exports of %s: %w", file, err)
	}
	return rec, nil
}

func (s *Store) ExportingFiles(ctx context.Context, name string) ([]string, error) {
	var files []string
	err := s.with(func(q querier) error {
		rows, err := q.QueryContext(ctx, "SELECT file FROM exports WHERE name = ?", name)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var f string
			if err := rows.Scan(&f); err != nil {
				return err
			}
			files = append(files, f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("exporting files of %s: %w", name, err)
	}
	return files, nil
}

func (s *Store) Stats(ctx context.Context) (*graph.Stats, error) {
	st := &graph.Stats{}
	err := s.with(func(q querier) error {
		rows, err := q.QueryContext(ctx, "SELECT type, COUNT(*) FROM nodes GROUP BY type")
		if err != nil {
			return err
		}
		for rows.Next() {
			var typ string
			var count int64
			if err := rows.Scan(&typ, &count); err != nil {
				rows.Close()
				return err
			}
			st.Nodes += count
			switch graph.NodeType(typ) {
			case graph.NodeFile:
				st.Files += count
			case graph.NodeFunction, graph.NodeMethod:
				st.Functions += count
			case graph.NodeClass:
				st.Classes += count
			case graph.NodeImport, graph.NodeRequire:
				st.Imports += count
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM edges").Scan(&st.Edges); err != nil {
			return err
		}
		return q.QueryRowContext(ctx, "SELECT COUNT(*) FROM exports").Scan(&st.Exports)
	})
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

func (s *Store) PutMeta(ctx context.Context, key, value string) error {
	err := s.with(func(q querier) error {
		_, err := q.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", key, value)
		return err
	})
	if err != nil {
		return fmt.Errorf("put meta %s: %w", key, err)
	}
	return nil
}

func (s *Store) Meta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.with(func(q querier) error {
		return q.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Clear(ctx context.Context) error {
	err := s.atomically(ctx, func(q querier) error {
		for _, table := range []string{"nodes", "edges", "imports", "exports", "imported_by", "meta"} {
			if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// Bulk runs fn inside one transaction, rolled back if fn fails. Nested calls
// join the outer transaction.
func (s *Store) Bulk(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	if s.tx != nil {
		s.mu.Unlock()
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("begin bulk tx: %w", err)
	}
	s.tx = tx
	s.mu.Unlock()

	fnErr := fn(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tx = nil
	if fnErr != nil {
		tx.Rollback()
		return fnErr
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk tx: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
	}
	s.mu.Unlock()
	return s.db.Close()
}
