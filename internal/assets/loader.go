// Package assets preloads the textures a scene bundle references before its
// entities are instantiated.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrMissingAsset reports a texture id with no matching file.
var ErrMissingAsset = errors.New("assets: missing asset")

// Progress receives the number of loaded ids out of total.
type Progress func(loaded, total int)

// Loader is the contract the scene manager preloads through.
type Loader interface {
	LoadAssets(ctx context.Context, ids []string, onProgress Progress) error
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, ids []string, onProgress Progress) error

func (f LoaderFunc) LoadAssets(ctx context.Context, ids []string, onProgress Progress) error {
	return f(ctx, ids, onProgress)
}

// Nop reports every id as loaded immediately.
func Nop() Loader {
	return LoaderFunc(func(ctx context.Context, ids []string, onProgress Progress) error {
		if onProgress != nil {
			onProgress(len(ids), len(ids))
		}
		return ctx.Err()
	})
}

// DefaultExtensions are tried in order for each texture id.
var DefaultExtensions = []string{".png", ".webp", ".jpg"}

// DirLoader reads <Dir>/<id><ext> for every id, a few files at a time. Ids
// loaded once are cached and skipped afterwards.
type DirLoader struct {
	Dir         string
	Extensions  []string
	Concurrency int

	mu     sync.Mutex
	loaded map[string]int64
}

func NewDirLoader(dir string, concurrency int) *DirLoader {
	return &DirLoader{Dir: dir, Concurrency: concurrency}
}

// LoadAssets fails on the first missing or unreadable file and cancels the
// remaining reads.
func (l *DirLoader) LoadAssets(ctx context.Context, ids []string, onProgress Progress) error {
	pending := l.pending(ids)
	total := len(ids)
	done := total - len(pending)
	if onProgress != nil {
		onProgress(done, total)
	}
	if len(pending) == 0 {
		return ctx.Err()
	}

	var progressMu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	limit := l.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)
	for _, id := range pending {
		id := id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			size, err := l.read(id)
			if err != nil {
				return err
			}
			l.mu.Lock()
			l.loaded[id] = size
			l.mu.Unlock()

			progressMu.Lock()
			done++
			if onProgress != nil {
				onProgress(done, total)
			}
			progressMu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (l *DirLoader) pending(ids []string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded == nil {
		l.loaded = make(map[string]int64)
	}
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if _, ok := l.loaded[id]; ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (l *DirLoader) read(id string) (int64, error) {
	if id == "" || filepath.Base(id) != id {
		return 0, fmt.Errorf("%w: %q", ErrMissingAsset, id)
	}
	exts := l.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	for _, ext := range exts {
		data, err := os.ReadFile(filepath.Join(l.Dir, id+ext))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("assets: read %s: %w", id, err)
		}
		return int64(len(data)), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrMissingAsset, id)
}

// Loaded reports whether id has been read.
func (l *DirLoader) Loaded(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.loaded[id]
	return ok
}

// Bytes returns the total size of everything loaded so far.
func (l *DirLoader) Bytes() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total int64
	for _, size := range l.loaded {
		total += size
	}
	return total
}
