// Package embedded implements graph.Store on top of BadgerDB.
package embedded

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/imyousuf/CodeContext/internal/graph"
)

// Key prefixes for the BadgerDB key scheme. Segments that may contain file
// paths are separated by sep so paths with colons stay unambiguous.
const (
	prefixNode        = "n:"
	prefixEdge        = "e:"
	prefixReverseEdge = "re:"
	prefixIdxFile     = "idx:file:"
	prefixIdxType     = "idx:type:"
	prefixIdxName     = "idx:name:"
	prefixImport      = "imp:"
	prefixImportedBy  = "ib:"
	prefixExport      = "exp:"
	prefixExportName  = "expn:"
	prefixMeta        = "meta:"

	sep = "\x00"
)

func nodeKey(id string) []byte { return []byte(prefixNode + id) }

func edgeKey(src string, rel graph.Relationship, tgt string) []byte {
	return []byte(prefixEdge + src + sep + string(rel) + sep + tgt)
}

func reverseEdgeKey(tgt string, rel graph.Relationship, src string) []byte {
	return []byte(prefixReverseEdge + tgt + sep + string(rel) + sep + src)
}

func indexKey(prefix, value, id string) []byte { return []byte(prefix + value + sep + id) }

func importKey(file, alias string) []byte { return []byte(prefixImport + file + sep + alias) }

func importedByKey(target, importer string) []byte {
	return []byte(prefixImportedBy + target + sep + importer)
}

func exportKey(file, name string) []byte { return []byte(prefixExport + file + sep + name) }

func exportNameKey(name, file string) []byte { return []byte(prefixExportName + name + sep + file) }

func metaKey(key string) []byte { return []byte(prefixMeta + key) }

// Store implements graph.Store using BadgerDB. Outside Bulk every write is
// its own transaction; inside Bulk writes share one held transaction that is
// committed when the scope ends.
type Store struct {
	db *badger.DB

	mu   sync.Mutex // guards bulk and serializes use of it
	bulk *badger.Txn
}

var _ graph.Store = (*Store)(nil)

// NewStore opens (or creates) a BadgerDB-backed graph store at dbPath.
func NewStore(dbPath string) (*Store, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // suppress badger logs
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{db: db}, nil
}

// update runs fn in a writable transaction. Inside a bulk scope fn runs on the
// held transaction; when that grows too large it is committed and fn retried
// on a fresh one.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bulk == nil {
		return s.db.Update(fn)
	}
	err := fn(s.bulk)
	if !errors.Is(err, badger.ErrTxnTooBig) {
		return err
	}
	if err := s.bulk.Commit(); err != nil {
		s.bulk = s.db.NewTransaction(true)
		return fmt.Errorf("commit oversized bulk txn: %w", err)
	}
	s.bulk = s.db.NewTransaction(true)
	return fn(s.bulk)
}

// view runs fn in a read transaction. Inside a bulk scope it reads through the
// held transaction so pending writes are visible.
func (s *Store) view(fn func(txn *badger.Txn) error) error {
	s.mu.Lock()
	if s.bulk != nil {
		defer s.mu.Unlock()
		return fn(s.bulk)
	}
	s.mu.Unlock()
	return s.db.View(fn)
}

func (s *Store) PutNode(_ context.Context, n *graph.Node) (bool, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return false, fmt.Errorf("marshal node: %w", err)
	}
	var created bool
	err = s.update(func(txn *badger.Txn) error {
		_, err := txn.Get(nodeKey(n.ID))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			created = true
		case err != nil:
			return err
		}
		if err := txn.Set(nodeKey(n.ID), data); err != nil {
			return err
		}
		if !created {
			// Type, file and name are part of the id, so the indexes are already in place.
			return nil
		}
		if err := txn.Set(indexKey(prefixIdxFile, n.File, n.ID), nil); err != nil {
			return err
		}
		if err := txn.Set(indexKey(prefixIdxType, string(n.Type), n.ID), nil); err != nil {
			return err
		}
		return txn.Set(indexKey(prefixIdxName, n.Name, n.ID), nil)
	})
	if err != nil {
		return false, fmt.Errorf("put node %s: %w", n.ID, err)
	}
	return created, nil
}

func (s *Store) PutEdge(_ context.Context, e *graph.Edge) (bool, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("marshal edge: %w", err)
	}
	var created bool
	err = s.update(func(txn *badger.Txn) error {
		key := edgeKey(e.SourceID, e.Relationship, e.TargetID)
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		created = true
		return txn.Set(reverseEdgeKey(e.TargetID, e.Relationship, e.SourceID), nil)
	})
	if err != nil {
		return false, fmt.Errorf("put edge %s: %w", e.Key(), err)
	}
	return created, nil
}

func (s *Store) GetNode(_ context.Context, id string) (*graph.Node, error) {
	var node *graph.Node
	err := s.view(func(txn *badger.Txn) error {
		var err error
		node, err = getNodeInTxn(txn, id)
		return err
	})
	return node, err
}

func getNodeInTxn(txn *badger.Txn, id string) (*graph.Node, error) {
	item, err := txn.Get(nodeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, graph.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	var node graph.Node
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &node)
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal node %s: %w", id, err)
	}
	return &node, nil
}

func (s *Store) EdgesFrom(ctx context.Context, id string) ([]*graph.Edge, error) {
	var edges []*graph.Edge
	err := s.view(func(txn *badger.Txn) error {
		return scanValues(ctx, txn, []byte(prefixEdge+id+sep), func(_ string, val []byte) error {
			var e graph.Edge
			if err := json.Unmarshal(val, &e); err != nil {
				return nil
			}
			edges = append(edges, &e)
			return nil
		})
	})
	return edges, err
}

func (s *Store) EdgesTo(ctx context.Context, id string) ([]*graph.Edge, error) {
	var edges []*graph.Edge
	err := s.view(func(txn *badger.Txn) error {
		rest, err := scanKeys(ctx, txn, []byte(prefixReverseEdge+id+sep))
		if err != nil {
			return err
		}
		for _, r := range rest {
			parts := strings.SplitN(r, sep, 2)
			if len(parts) != 2 {
				continue
			}
			e, err := getEdgeInTxn(txn, parts[1], graph.Relationship(parts[0]), id)
			if err != nil {
				continue
			}
			edges = append(edges, e)
		}
		return nil
	})
	return edges, err
}

func getEdgeInTxn(txn *badger.Txn, src string, rel graph.Relationship, tgt string) (*graph.Edge, error) {
	item, err := txn.Get(edgeKey(src, rel, tgt))
	if err != nil {
		return nil, fmt.Errorf("get edge: %w", err)
	}
	var edge graph.Edge
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &edge)
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal edge: %w", err)
	}
	return &edge, nil
}

func (s *Store) QueryNodes(ctx context.Context, filter graph.NodeFilter) ([]*graph.Node, error) {
	var results []*graph.Node
	err := s.view(func(txn *badger.Txn) error {
		var prefix string
		switch {
		case filter.File != "":
			prefix = prefixIdxFile + filter.File + sep
		case filter.Name != "":
			prefix = prefixIdxName + filter.Name + sep
		case filter.Type != "":
			prefix = prefixIdxType + string(filter.Type) + sep
		default:
			return scanValues(ctx, txn, []byte(prefixNode), func(_ string, val []byte) error {
				var n graph.Node
				if err := json.Unmarshal(val, &n); err != nil {
					return nil
				}
				if filter.Match(&n) {
					results = append(results, &n)
				}
				return nil
			})
		}
		ids, err := scanKeys(ctx, txn, []byte(prefix))
		if err != nil {
			return err
		}
		for _, id := range ids {
			n, err := getNodeInTxn(txn, id)
			if err != nil {
				continue
			}
			if filter.Match(n) {
				results = append(results, n)
			}
		}
		return nil
	})
	return results, err
}

// errStopScan ends a scan early without reporting an error.
var errStopScan = errors.New("stop scan")

func (s *Store) ScanNodes(ctx context.Context, fn func(*graph.Node) bool) error {
	err := s.view(func(txn *badger.Txn) error {
		return scanValues(ctx, txn, []byte(prefixNode), func(_ string, val []byte) error {
			var n graph.Node
			if err := json.Unmarshal(val, &n); err != nil {
				return nil
			}
			if !fn(&n) {
				return errStopScan
			}
			return nil
		})
	})
	if errors.Is(err, errStopScan) {
		return nil
	}
	return err
}

func (s *Store) ScanEdges(ctx context.Context, fn func(*graph.Edge) bool) error {
	err := s.view(func(txn *badger.Txn) error {
		return scanValues(ctx, txn, []byte(prefixEdge), func(_ string, val []byte) error {
			var e graph.Edge
			if err := json.Unmarshal(val, &e); err != nil {
				return nil
			}
			if !fn(&e) {
				return errStopScan
			}
			return nil
		})
	})
	if errors.Is(err, errStopScan) {
		return nil
	}
	return err
}

func (s *Store) PutImport(_ context.Context, importer, alias string, rec graph.ImportRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal import: %w", err)
	}
	err = s.update(func(txn *badger.Txn) error {
		if err := txn.Set(importKey(importer, alias), data); err != nil {
			return err
		}
		for _, f := range rec.Files() {
			if err := txn.Set(importedByKey(f, importer), nil); err != nil {
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

func (s *Store) Imports(ctx context.Context, file string) (map[string]graph.ImportRecord, error) {
	out := make(map[string]graph.ImportRecord)
	err := s.view(func(txn *badger.Txn) error {
		return scanValues(ctx, txn, []byte(prefixImport+file+sep), func(alias string, val []byte) error {
			var rec graph.ImportRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return nil
			}
			out[alias] = rec
			return nil
		})
	})
	return out, err
}

func (s *Store) AllImports(ctx context.Context) (map[string]map[string]graph.ImportRecord, error) {
	out := make(map[string]map[string]graph.ImportRecord)
	err := s.view(func(txn *badger.Txn) error {
		return scanValues(ctx, txn, []byte(prefixImport), func(rest string, val []byte) error {
			file, alias, ok := strings.Cut(rest, sep)
			if !ok {
				return nil
			}
			var rec graph.ImportRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return nil
			}
			m, ok := out[file]
			if !ok {
				m = make(map[string]graph.ImportRecord)
				out[file] = m
			}
			m[alias] = rec
			return nil
		})
	})
	return out, err
}

func (s *Store) PutExport(_ context.Context, file, name, nodeID string) error {
	err := s.update(func(txn *badger.Txn) error {
		if err := txn.Set(exportKey(file, name), []byte(nodeID)); err != nil {
			return err
		}
		return txn.Set(exportNameKey(name, file), nil)
	})
	if err != nil {
		return fmt.Errorf("put export %s in %s: %w", name, file, err)
	}
	return nil
}

func (s *Store) Exports(ctx context.Context, file string) (*graph.ExportRecord, error) {
	rec := &graph.ExportRecord{Symbols: make(map[string]string), ImportedBy: []string{}}
	err := s.view(func(txn *badger.Txn) error {
		err := scanValues(ctx, txn, []byte(prefixExport+file+sep), func(name string, val []byte) error {
			rec.Symbols[name] = string(val)
			return nil
		})
		if err != nil {
			return err
		}
		importers, err := scanKeys(ctx, txn, []byte(prefixImportedBy+file+sep))
		if err != nil {
			return err
		}
		rec.ImportedBy = append(rec.ImportedBy, importers...)
		return nil
	})
	return rec, err
}

func (s *Store) ExportingFiles(ctx context.Context, name string) ([]string, error) {
	var files []string
	err := s.view(func(txn *badger.Txn) error {
		var err error
		files, err = scanKeys(ctx, txn, []byte(prefixExportName+name+sep))
		return err
	})
	return files, err
}

func (s *Store) Stats(ctx context.Context) (*graph.Stats, error) {
	st := &graph.Stats{}
	err := s.view(func(txn *badger.Txn) error {
		err := scanValues(ctx, txn, []byte(prefixNode), func(_ string, val []byte) error {
			var n graph.Node
			if err := json.Unmarshal(val, &n); err != nil {
				return nil
			}
			st.Nodes++
			switch n.Type {
			case graph.NodeFile:
				st.Files++
			case graph.NodeFunction, graph.NodeMethod:
				st.Functions++
			case graph.NodeClass:
				st.Classes++
			case graph.NodeImport, graph.NodeRequire:
				st.Imports++
			}
			return nil
		})
		if err != nil {
			return err
		}
		edges, err := scanKeys(ctx, txn, []byte(prefixEdge))
		if err != nil {
			return err
		}
		st.Edges = int64(len(edges))
		exports, err := scanKeys(ctx, txn, []byte(prefixExport))
		if err != nil {
			return err
		}
		st.Exports = int64(len(exports))
		return nil
	})
	return st, err
}

func (s *Store) PutMeta(_ context.Context, key, value string) error {
	err := s.update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("put meta %s: %w", key, err)
	}
	return nil
}

func (s *Store) Meta(_ context.Context, key string) (string, error) {
	var value string
	err := s.view(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		value = string(val)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, nil
}

// Clear drops every key. A held bulk transaction is discarded first.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inBulk := s.bulk != nil
	if inBulk {
		s.bulk.Discard()
		s.bulk = nil
	}
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("drop all: %w", err)
	}
	if inBulk {
		s.bulk = s.db.NewTransaction(true)
	}
	return nil
}

// Bulk holds one writable transaction for the duration of fn. Nested calls
// join the outer scope. When fn fails the pending transaction is discarded.
func (s *Store) Bulk(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	if s.bulk != nil {
		s.mu.Unlock()
		return fn(ctx)
	}
	s.bulk = s.db.NewTransaction(true)
	s.mu.Unlock()

	fnErr := fn(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	txn := s.bulk
	s.bulk = nil
	if fnErr != nil {
		txn.Discard()
		return fnErr
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit bulk txn: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.bulk != nil {
		s.bulk.Discard()
		s.bulk = nil
	}
	s.mu.Unlock()
	return s.db.Close()
}

// --- helpers ---

// scanKeys returns the key remainders after prefix for every key under it.
// The iterator is closed before returning so callers can issue point reads.
func scanKeys(ctx context.Context, txn *badger.Txn, prefix []byte) ([]string, error) {
	var rest []string
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rest = append(rest, string(it.Item().Key()[len(prefix):]))
	}
	return rest, nil
}

// scanValues calls fn with the key remainder and value of every key under
// prefix. A non-nil error from fn stops the scan and is returned.
func scanValues(ctx context.Context, txn *badger.Txn, prefix []byte, fn func(rest string, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := it.Item()
		rest := string(item.Key()[len(prefix):])
		val, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read value: %w", err)
		}
		if err := fn(rest, val); err != nil {
			return err
		}
	}
	return nil
}
