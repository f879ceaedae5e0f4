package localdir

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/engelke/fashion-hack-2024/internal/source"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".bmp": true, ".heic": true, ".heif": true, ".tiff": true, ".avif": true,
}

// Adapter implements source.Source over the image files below a directory.
// Files are listed once, sorted by relative path, and paged by index.
type Adapter struct {
	root      string
	recursive bool
	items     []source.ImageItem
	loaded    bool
}

// NewAdapter creates an adapter for a local directory.
// Parameters:
//   - root: directory holding the images.
//   - recursive: walk subdirectories too.
// Returns:
//   - *Adapter: initialized adapter.
func NewAdapter(root string, recursive bool) *Adapter {
	return &Adapter{root: root, recursive: recursive}
}

// GetSourceID returns the directory the adapter lists.
func (a *Adapter) GetSourceID() string {
	return "localdir:" + a.root
}

// FetchBatch pages through the sorted listing of image files.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cursor: index of the next item; empty starts at the beginning.
//   - limit: maximum number of items.
// Returns:
//   - []source.ImageItem: items in this page.
//   - string: cursor for the next page, empty when the listing is exhausted.
//   - error: non-nil if the directory cannot be read or the cursor is invalid.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.ImageItem, string, error) {
	if !a.loaded {
		if err := a.loadItems(ctx); err != nil {
			return nil, "", fmt.Errorf("failed to list %s: %w", a.root, err)
		}
		a.loaded = true
	}

	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil || start < 0 {
			return nil, "", fmt.Errorf("invalid cursor: %q", cursor)
		}
	}
	if start >= len(a.items) {
		return []source.ImageItem{}, "", nil
	}

	end := len(a.items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	next := ""
	if end < len(a.items) {
		next = strconv.Itoa(end)
	}
	return a.items[start:end], next, nil
}

func (a *Adapter) loadItems(ctx context.Context) error {
	a.items = nil
	err := filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != a.root && (!a.recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(a.root, path)
		if err != nil {
			return err
		}
		a.items = append(a.items, source.ImageItem{
			SourceID:  filepath.ToSlash(rel),
			Filename:  d.Name(),
			LocalPath: path,
			Size:      info.Size(),
		})
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(a.items, func(i, j int) bool { return a.items[i].SourceID < a.items[j].SourceID })
	return nil
}
