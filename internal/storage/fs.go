package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/dealsync/internal/deal"
)

// FS implements Provider backed by the local file system, one directory
// per tier.
type FS struct {
	dirs map[deal.Tier]string
}

// NewFS creates an FS provider over the three tier directories, creating
// any that do not exist yet.
func NewFS(current, previous, archive string) (*FS, error) {
	dirs := map[deal.Tier]string{
		deal.TierCurrent:  current,
		deal.TierPrevious: previous,
		deal.TierArchive:  archive,
	}
	for t, dir := range dirs {
		if dir == "" {
			return nil, fmt.Errorf("storage: %s tier directory not configured", t)
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("storage: resolve %s dir: %w", t, err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create %s dir: %w", t, err)
		}
		dirs[t] = abs
	}
	return &FS{dirs: dirs}, nil
}

// List returns the sorted .xlsx document names in a tier. Office lock
// files (~$ prefix) and subdirectories are skipped.
func (f *FS) List(t deal.Tier) ([]string, error) {
	entries, err := os.ReadDir(f.dirs[t])
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", t, err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "~$") {
			continue
		}
		if !strings.EqualFold(filepath.Ext(name), ".xlsx") {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Path returns the absolute path of a document in a tier.
func (f *FS) Path(t deal.Tier, name string) string {
	return filepath.Join(f.dirs[t], name)
}

// Move relocates a document between tiers. If the destination already
// exists it is removed first so the move never leaves two copies.
func (f *FS) Move(name string, from, to deal.Tier) error {
	src := f.Path(from, name)
	dst := f.Path(to, name)
	if _, err := os.Stat(dst); err == nil {
		if err := os.Remove(dst); err != nil {
			return fmt.Errorf("storage: replace %s in %s: %w", name, to, err)
		}
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("storage: move %s from %s to %s: %w", name, from, to, err)
	}
	return nil
}

// Delete removes a document from a tier.
func (f *FS) Delete(t deal.Tier, name string) error {
	if err := os.Remove(f.Path(t, name)); err != nil {
		return fmt.Errorf("storage: delete %s from %s: %w", name, t, err)
	}
	return nil
}
