// Handles the on-disk layout: document naming, listing and atomic writes.

package jsonldb

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const (
	documentSuffix = ".item.json"
	metadataName   = "metadata.json"
	tmpPrefix      = ".tmp-"
)

// DocumentName returns the file name of the document holding id.
func DocumentName(id int64) string {
	return strconv.FormatInt(id, 10) + documentSuffix
}

// NormalizeName maps a collection name to its directory name: path
// separators are replaced and the result is lower-cased.
func NormalizeName(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", string(filepath.Separator), "_")
	return strings.ToLower(r.Replace(name))
}

// docFile is a document found on disk.
type docFile struct {
	name    string
	id      int64
	numeric bool // name is <integer>.item.json
}

// listDocuments returns the documents of dir, sorted by numeric id. Files
// whose name is not an integer sort last, by name.
func listDocuments(dir string) ([]docFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []docFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, documentSuffix) || strings.HasPrefix(name, tmpPrefix) {
			continue
		}
		f := docFile{name: name}
		if id, err := strconv.ParseInt(strings.TrimSuffix(name, documentSuffix), 10, 64); err == nil {
			f.id = id
			f.numeric = true
		}
		files = append(files, f)
	}
	slices.SortFunc(files, func(a, b docFile) int {
		switch {
		case a.numeric && b.numeric:
			return cmp.Compare(a.id, b.id)
		case a.numeric:
			return -1
		case b.numeric:
			return 1
		default:
			return strings.Compare(a.name, b.name)
		}
	})
	return files, nil
}

// writeFileAtomic writes data to a temp file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Join(fmt.Errorf("failed to write temp file: %w", err), os.Remove(tmp))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(tmp))
	}
	if err := os.Chmod(tmp, 0o644); err != nil { //nolint:gosec // G302: documents are meant to be readable
		return errors.Join(fmt.Errorf("failed to chmod temp file: %w", err), os.Remove(tmp))
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Join(fmt.Errorf("failed to rename temp file: %w", err), os.Remove(tmp))
	}
	return nil
}
