package migrations

import (
	"errors"
	"io/fs"
	"sort"
)

// Overlay merges several schema file systems into one. Lookups are served by
// the first layer holding the name; directory listings are the sorted union.
func Overlay(layers ...fs.FS) fs.FS {
	return overlayFS(layers)
}

type overlayFS []fs.FS

func (o overlayFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	for _, layer := range o {
		f, err := layer.Open(name)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

func (o overlayFS) ReadDir(name string) ([]fs.DirEntry, error) {
	seen := make(map[string]struct{})
	var entries []fs.DirEntry
	found := false
	for _, layer := range o {
		list, err := fs.ReadDir(layer, name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		found = true
		for _, e := range list {
			if _, dup := seen[e.Name()]; dup {
				continue
			}
			seen[e.Name()] = struct{}{}
			entries = append(entries, e)
		}
	}
	if !found {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}
