// CLAUDE:SUMMARY Durable stage layout under the data directory, atomic JSON writes and the single-run lock.
// Package datadir owns the on-disk layout shared by the pipeline stages:
//
//	1-raw/<Y>/<M>/<D>/<fetchstamp>--<order>--<cachekey>.json
//	2-formatted/<site>/<Y>/<M>/<D>/<identifier>.json
//	3-translated/<site>/<Y>/<M>/<D>/<identifier>.json
//	4-data/<site>/items.json
//
// Every write is whole-file: a .tmp sibling is written then renamed.
package datadir

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"

	"github.com/hazyhaar/babelfeed/itemid"
)

// Stage directory names.
const (
	RawDir        = "1-raw"
	FormattedDir  = "2-formatted"
	TranslatedDir = "3-translated"
	DataDir       = "4-data"
	StoreFile     = "items.json"
	lockFile      = ".babelfeed.lock"
)

// Layout resolves stage paths under Root.
type Layout struct {
	Root string
}

// New returns a Layout rooted at root.
func New(root string) Layout { return Layout{Root: root} }

// Raw returns the raw stage directory.
func (l Layout) Raw() string { return filepath.Join(l.Root, RawDir) }

// RawPath returns the path of a raw capture.
func (l Layout) RawPath(n itemid.RawName) string {
	t := n.FetchedAt.UTC()
	return filepath.Join(l.Raw(), fmt.Sprintf("%04d", t.Year()), fmt.Sprintf("%02d", int(t.Month())), fmt.Sprintf("%02d", t.Day()), n.Format())
}

// Formatted returns the formatted stage directory of site.
func (l Layout) Formatted(site string) string { return filepath.Join(l.Root, FormattedDir, site) }

// Translated returns the translated stage directory of site.
func (l Layout) Translated(site string) string { return filepath.Join(l.Root, TranslatedDir, site) }

// FormattedPath returns the formatted file of identifier f.
func (l Layout) FormattedPath(f itemid.Fields) string {
	return filepath.Join(l.Formatted(f.Site), datePath(f), itemid.FileName(f.String()))
}

// TranslatedPath returns the translated file of identifier f.
func (l Layout) TranslatedPath(f itemid.Fields) string {
	return filepath.Join(l.Translated(f.Site), datePath(f), itemid.FileName(f.String()))
}

// Store returns the canonical item store of site.
func (l Layout) Store(site string) string { return filepath.Join(l.Root, DataDir, site, StoreFile) }

// LockPath returns the run lock file.
func (l Layout) LockPath() string { return filepath.Join(l.Root, lockFile) }

// ErrOutsideLayout is returned by Check for paths that leave their stage
// directory.
var ErrOutsideLayout = errors.New("datadir: path escapes the data directory")

// Check reports whether p is a stage file strictly inside one of the
// stage directories. Stage writers call it before writing a path built
// from item data.
func (l Layout) Check(p string) error {
	root := filepath.Clean(l.Root)
	rel, err := filepath.Rel(root, filepath.Clean(p))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s", ErrOutsideLayout, p)
	}
	stage, rest, ok := strings.Cut(filepath.ToSlash(rel), "/")
	if !ok || rest == "" {
		return fmt.Errorf("%w: %s", ErrOutsideLayout, p)
	}
	switch stage {
	case RawDir, FormattedDir, TranslatedDir, DataDir:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrOutsideLayout, p)
}

func datePath(f itemid.Fields) string {
	return filepath.Join(fmt.Sprintf("%04d", f.Year), fmt.Sprintf("%02d", f.Month), fmt.Sprintf("%02d", f.Day))
}

// FileIOError reports a failed durable read or write.
type FileIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileIOError) Error() string { return "datadir: " + e.Op + " " + e.Path + ": " + e.Err.Error() }
func (e *FileIOError) Unwrap() error { return e.Err }

// WriteJSON encodes v with two-space indentation and writes it to path
// atomically, creating parent directories.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &FileIOError{Op: "encode", Path: path, Err: err}
	}
	return WriteFile(path, append(data, '\n'))
}

// WriteFile writes data to path through a .tmp sibling and rename.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &FileIOError{Op: "mkdir", Path: path, Err: err}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &FileIOError{Op: "write", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &FileIOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// ReadJSON decodes path into v. A missing file returns an error matching
// fs.ErrNotExist.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &FileIOError{Op: "read", Path: path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &FileIOError{Op: "decode", Path: path, Err: err}
	}
	return nil
}

// Remove deletes path; a missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &FileIOError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// ListJSON returns every .json file under dir, sorted by path. A missing
// directory yields no files.
func ListJSON(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return fs.SkipDir
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".json") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, &FileIOError{Op: "walk", Path: dir, Err: err}
	}
	sort.Strings(out)
	return out, nil
}

// Sites returns the site directories present under a stage directory.
func (l Layout) Sites(stage string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(l.Root, stage))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &FileIOError{Op: "readdir", Path: stage, Err: err}
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// ErrLocked is returned by Lock when another run holds the data directory.
var ErrLocked = errors.New("datadir: another run holds the lock")

// Lock takes the single-run lock of the data directory. The returned
// function releases it.
func (l Layout) Lock() (func() error, error) {
	if err := os.MkdirAll(l.Root, 0o755); err != nil {
		return nil, &FileIOError{Op: "mkdir", Path: l.Root, Err: err}
	}
	fl := flock.New(l.LockPath())
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("datadir: acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return fl.Unlock, nil
}
