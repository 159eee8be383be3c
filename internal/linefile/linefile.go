// Package linefile implements a keyed line-file store for the global system
// tables both pipelines mutate (mount table, export table, redundancy-group
// registry, project-quota mappings). Mutations are idempotent upserts: parse,
// filter out the matching key, append the new entry and atomically rewrite.
// Unrelated entries, comments and blank lines are preserved byte-for-byte.
package linefile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

type osProvider interface {
	ReadFile(name string) ([]byte, error)
	OpenFile(name string, flag int, perm os.FileMode) (*os.File, error)
	Rename(oldpath, newpath string) error
	Remove(name string) error
}

// KeyFunc extracts the replace-by key out of a single line. Lines for which
// no key exists (comments, blank lines, foreign formats) report ok=false and
// are never replaced.
type KeyFunc func(line string) (key string, ok bool)

// FieldKey returns a [KeyFunc] keying on the n-th whitespace-separated field
// of a line, skipping comments and blank lines.
func FieldKey(n int) KeyFunc {
	return func(line string) (string, bool) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			return "", false
		}

		fields := strings.Fields(trimmed)
		if n >= len(fields) {
			return "", false
		}

		return fields[n], true
	}
}

// SeparatorKey returns a [KeyFunc] keying on the part of a line before the
// given separator, skipping comments and blank lines.
func SeparatorKey(sep string) KeyFunc {
	return func(line string) (string, bool) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			return "", false
		}

		key, _, found := strings.Cut(trimmed, sep)
		if !found {
			return "", false
		}

		return key, true
	}
}

// Store is a keyed line-file store over a single system table file.
type Store struct {
	path      string
	keyOf     KeyFunc
	osHandler osProvider
}

// NewStore returns a pointer to a new [Store] for a file and key schema.
func NewStore(path string, keyOf KeyFunc, osHandler osProvider) *Store {
	return &Store{
		path:      path,
		keyOf:     keyOf,
		osHandler: osHandler,
	}
}

// Path returns the backing file path of the store.
func (s *Store) Path() string {
	return s.path
}

// Lines returns all lines of the backing file; a file that does not exist
// yet reads as empty.
func (s *Store) Lines() ([]string, error) {
	data, err := s.osHandler.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("(linefile) failed to read %s: %w", s.path, err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}

	return lines, nil
}

// Get returns all lines matching a key.
func (s *Store) Get(key string) ([]string, error) {
	lines, err := s.Lines()
	if err != nil {
		return nil, err
	}

	var matched []string
	for _, line := range lines {
		if k, ok := s.keyOf(line); ok && k == key {
			matched = append(matched, line)
		}
	}

	return matched, nil
}

// Replace removes all lines matching the key and appends the replacement
// lines, rewriting the file atomically. Running it twice with the same
// arguments leaves exactly one entry set for the key.
func (s *Store) Replace(key string, replacement ...string) error {
	lines, err := s.Lines()
	if err != nil {
		return err
	}

	kept := s.filterKey(lines, key)
	kept = append(kept, replacement...)

	return s.writeAtomic(kept)
}

// Remove removes all lines matching the key, reporting whether any line was
// in fact removed. The file is only rewritten when a removal took place.
func (s *Store) Remove(key string) (bool, error) {
	lines, err := s.Lines()
	if err != nil {
		return false, err
	}

	kept := s.filterKey(lines, key)
	if len(kept) == len(lines) {
		return false, nil
	}

	if err := s.writeAtomic(kept); err != nil {
		return false, err
	}

	return true, nil
}

func (s *Store) filterKey(lines []string, key string) []string {
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		if k, ok := s.keyOf(line); ok && k == key {
			continue
		}
		kept = append(kept, line)
	}

	return kept
}

// writeAtomic writes all lines to a temporary sibling file and renames it
// over the backing file, so a crashed run never leaves a torn table behind.
func (s *Store) writeAtomic(lines []string) (err error) {
	var written bool

	tmpPath := s.path + ".poolsmith"
	defer func() {
		if !written {
			s.osHandler.Remove(tmpPath) //nolint:errcheck
		}
	}()

	file, err := s.osHandler.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("(linefile) failed to open %s: %w", tmpPath, err)
	}

	var content strings.Builder
	for _, line := range lines {
		content.WriteString(line)
		content.WriteString("\n")
	}

	if _, err := file.WriteString(content.String()); err != nil {
		file.Close()

		return fmt.Errorf("(linefile) failed to write %s: %w", tmpPath, err)
	}

	if err := file.Sync(); err != nil {
		file.Close()

		return fmt.Errorf("(linefile) failed to sync %s: %w", tmpPath, err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("(linefile) failed to close %s: %w", tmpPath, err)
	}

	if err := s.osHandler.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("(linefile) failed to rename %s: %w", tmpPath, err)
	}
	written = true

	return nil
}
