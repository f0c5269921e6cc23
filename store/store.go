// Package store writes received payloads into a directory.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Dir saves files below Path.
type Dir struct {
	Path string
	// Unique, when set, never replaces an existing file: a name that is
	// taken gets a numeric suffix before its extension.
	Unique bool
}

// Save writes |data| to a file named after |name| and returns the path
// written. The directory is created as needed.
func (d Dir) Save(name string, data []byte) (string, error) {
	if err := os.MkdirAll(d.Path, 0755); err != nil {
		return "", err
	}
	if !d.Unique {
		path := filepath.Join(d.Path, name)
		return path, os.WriteFile(path, data, 0644)
	}
	stem, ext := split(name)
	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		path := filepath.Join(d.Path, candidate)
		// O_EXCL makes claiming a name atomic among concurrent writers.
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		_, err = f.Write(data)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
			return "", err
		}
		return path, nil
	}
}

// split separates the final extension from |name|. A leading dot starts
// the stem, not an extension.
func split(name string) (string, string) {
	ext := filepath.Ext(name)
	if ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}
