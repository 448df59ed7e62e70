package bundle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// StaticSource provides the authored data for a map.
type StaticSource interface {
	Load(ctx context.Context, mapID string) (*Bundle, error)
}

// Store persists the dynamic state of maps the player has left.
type Store interface {
	StaticSource
	Save(ctx context.Context, mapID string, b *Bundle) error
}

// Resolve returns the dynamic state for mapID when the store has it and falls
// back to the static source otherwise. Both may be nil.
func Resolve(ctx context.Context, store Store, static StaticSource, mapID string) (*Bundle, error) {
	if store != nil {
		b, err := store.Load(ctx, mapID)
		switch {
		case err == nil:
			return b, nil
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}
	if static != nil {
		return static.Load(ctx, mapID)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, mapID)
}

func checkMapID(mapID string) error {
	if strings.TrimSpace(mapID) == "" || strings.ContainsAny(mapID, `/\`) || mapID == "." || mapID == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidMapID, mapID)
	}
	return nil
}

// MapSource serves bundles from memory. Loaded bundles are copies.
type MapSource map[string]*Bundle

func (m MapSource) Load(_ context.Context, mapID string) (*Bundle, error) {
	b, ok := m[mapID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, mapID)
	}
	return b.Clone(), nil
}

// DirSource reads <Dir>/<mapID>.json.
type DirSource struct {
	Dir string
}

func (d DirSource) path(mapID string) string {
	return filepath.Join(d.Dir, mapID+".json")
}

func (d DirSource) Load(ctx context.Context, mapID string) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkMapID(mapID); err != nil {
		return nil, err
	}
	path := d.path(mapID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, mapID)
		}
		return nil, fmt.Errorf("bundle: failed loading %s: %w", path, err)
	}
	b, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("bundle: failed parsing %s: %w", path, err)
	}
	return b, nil
}

// MapIDs lists the bundles present in the directory.
func (d DirSource) MapIDs() ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// MemoryStore keeps saved bundles in process.
type MemoryStore struct {
	mu      sync.RWMutex
	bundles map[string]*Bundle
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bundles: make(map[string]*Bundle)}
}

func (s *MemoryStore) Load(_ context.Context, mapID string) (*Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bundles[mapID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, mapID)
	}
	return b.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, mapID string, b *Bundle) error {
	if err := checkMapID(mapID); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[mapID] = b.Clone()
	return nil
}

// DirStore persists bundles as files, replacing them atomically.
type DirStore struct {
	DirSource
}

func NewDirStore(dir string) *DirStore {
	return &DirStore{DirSource: DirSource{Dir: dir}}
}

func (s *DirStore) Save(ctx context.Context, mapID string, b *Bundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkMapID(mapID); err != nil {
		return err
	}
	data, err := Marshal(b)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("bundle: create store directory: %w", err)
	}
	outPath := s.path(mapID)
	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("bundle: write temp bundle: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("bundle: replace bundle: %w", err)
	}
	return nil
}
