// Package cache persists reference steady states and trial profiles as
// versioned, checksummed blobs under one directory, indexed by a SQLite
// catalogue. Lookups return an explicit Hit or Miss; a miss always carries
// the reason, so stale or corrupt blobs are never silently trusted.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nvandessel/convbench/internal/logging"
	"github.com/nvandessel/convbench/internal/telemetry"
)

// CatalogFile is the catalogue database name inside the cache directory.
const CatalogFile = "catalog.db"

// Store is a directory of blobs plus its catalogue.
type Store struct {
	dir     string
	catalog *Catalog
	logger  *slog.Logger
	trace   *logging.TraceLogger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTrace sets the JSONL trace logger.
func WithTrace(t *logging.TraceLogger) Option {
	return func(s *Store) { s.trace = t }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock overrides the clock used for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens the cache rooted at dir, creating it if needed.
func Open(ctx context.Context, dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	catalog, err := OpenCatalog(ctx, filepath.Join(dir, CatalogFile))
	if err != nil {
		return nil, err
	}
	s := &Store{
		dir:     dir,
		catalog: catalog,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path of the blob called name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+Extension)
}

// Catalog returns the store's catalogue.
func (s *Store) Catalog() *Catalog { return s.catalog }

// Close closes the catalogue.
func (s *Store) Close() error {
	return s.catalog.Close()
}

// Save writes v under e.Name and records it in the catalogue. Checksum,
// Size and CreatedAt are filled in from the written blob.
func (s *Store) Save(ctx context.Context, e Entry, v any) error {
	if e.Name == "" {
		return errors.New("cache entry has no name")
	}
	path := s.Path(e.Name)
	h, err := WriteBlob(path, Header{
		Kind:        e.Kind,
		Key:         e.Key,
		Fingerprint: e.Fingerprint,
		CreatedAt:   s.now().UTC(),
		Metadata:    map[string]string{"system": e.System, "algorithm": e.Algorithm},
	}, v)
	if err != nil {
		return fmt.Errorf("saving %s: %w", e.Name, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("saving %s: %w", e.Name, err)
	}
	e.Checksum = h.Checksum
	e.CreatedAt = h.CreatedAt
	e.Size = info.Size()
	if err := s.catalog.Put(ctx, e); err != nil {
		return err
	}
	s.logger.Debug("cache: saved", "name", e.Name, "kind", e.Kind, "size", e.Size)
	s.trace.Log(logging.TraceEvent{Event: "cache_save", Name: e.Name, Kind: string(e.Kind), System: e.System})
	return nil
}

// Lookup is the outcome of a cache read: either a Hit carrying Value, or a
// Miss carrying the Reason.
type Lookup[T any] struct {
	Hit    bool
	Value  T
	Reason string
}

// Load reads the blob called name. Any failure, including a missing file, a
// format version, kind or fingerprint mismatch, a checksum failure or an
// undecodable payload, is reported as a Miss; Load never returns an error.
func Load[T any](s *Store, name string, kind Kind, fingerprint string) Lookup[T] {
	lookup := load[T](s.Path(name), kind, fingerprint)
	s.metrics.CacheLookup(string(kind), lookup.Hit)
	if lookup.Hit {
		s.logger.Debug("cache: hit", "name", name)
	} else {
		s.logger.Debug("cache: miss", "name", name, "reason", lookup.Reason)
	}
	s.trace.Log(logging.TraceEvent{Event: "cache_lookup", Name: name, Kind: string(kind), Hit: &lookup.Hit, Reason: lookup.Reason})
	return lookup
}

func load[T any](path string, kind Kind, fingerprint string) Lookup[T] {
	var miss Lookup[T]
	header, err := ReadHeader(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			miss.Reason = "not cached"
		} else {
			miss.Reason = err.Error()
		}
		return miss
	}
	switch {
	case header.Format != FormatVersion:
		miss.Reason = fmt.Sprintf("format version %d, want %d", header.Format, FormatVersion)
		return miss
	case header.Kind != kind:
		miss.Reason = fmt.Sprintf("kind %q, want %q", header.Kind, kind)
		return miss
	case header.Fingerprint != fingerprint:
		miss.Reason = fmt.Sprintf("fingerprint %q, want %q", header.Fingerprint, fingerprint)
		return miss
	}

	var value T
	if _, err := ReadBlob(path, &value); err != nil {
		miss.Reason = err.Error()
		return miss
	}
	return Lookup[T]{Hit: true, Value: value}
}

// Remove deletes the blob called name and its catalogue entry.
func (s *Store) Remove(ctx context.Context, name string) error {
	if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", name, err)
	}
	return s.catalog.Delete(ctx, name)
}

// List returns the catalogued entries matching f.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	return s.catalog.List(ctx, f)
}

// Clear removes every catalogued blob matching f and returns how many were
// removed.
func (s *Store) Clear(ctx context.Context, f Filter) (int, error) {
	entries, err := s.catalog.List(ctx, f)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if err := s.Remove(ctx, e.Name); err != nil {
			return 0, err
		}
	}
	s.logger.Info("cache: cleared", "count", len(entries), "system", f.System, "kind", f.Kind)
	return len(entries), nil
}

// Names returns the blob names present in the directory, sorted.
func (s *Store) Names() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading cache directory: %w", err)
	}
	var names []string
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), Extension) {
			continue
		}
		names = append(names, strings.TrimSuffix(de.Name(), Extension))
	}
	sort.Strings(names)
	return names, nil
}

// VerifyResult is the outcome of verifying one blob.
type VerifyResult struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Kind   Kind   `json:"kind,omitempty"`
	Key    string `json:"key,omitempty"`
	Error  string `json:"error,omitempty"`
	Listed bool   `json:"listed"`
}

// Verify checks every blob in the directory and re-catalogues the readable
// ones, so the catalogue matches the files on disk afterwards. Catalogue
// entries without a file are dropped.
func (s *Store) Verify(ctx context.Context) ([]VerifyResult, error) {
	names, err := s.Names()
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(names))
	results := make([]VerifyResult, 0, len(names))
	for _, name := range names {
		present[name] = true
		existing, err := s.catalog.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		r := VerifyResult{Name: name, Listed: existing != nil}
		h, err := VerifyBlob(s.Path(name))
		if err != nil {
			r.Error = err.Error()
			results = append(results, r)
			continue
		}
		r.OK = true
		r.Kind = h.Kind
		r.Key = h.Key
		results = append(results, r)

		if existing == nil {
			info, err := os.Stat(s.Path(name))
			if err != nil {
				return nil, err
			}
			e := Entry{
				Name:        name,
				Kind:        h.Kind,
				System:      h.Metadata["system"],
				Algorithm:   h.Metadata["algorithm"],
				Key:         h.Key,
				Fingerprint: h.Fingerprint,
				Checksum:    h.Checksum,
				Size:        info.Size(),
				CreatedAt:   h.CreatedAt,
			}
			if err := s.catalog.Put(ctx, e); err != nil {
				return nil, err
			}
		}
	}

	listed, err := s.catalog.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	for _, e := range listed {
		if !present[e.Name] {
			if err := s.catalog.Delete(ctx, e.Name); err != nil {
				return nil, err
			}
		}
	}
	return results, nil
}
