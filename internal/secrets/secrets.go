// Package secrets holds the opaque secret handles available to a run.
// Values are resolved only when injected into a step's environment and are
// rewritten to a placeholder anywhere they could reach a log stream.
package secrets

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Mask replaces secret values in redacted output.
const Mask = "***"

// Store is an immutable mapping of secret names to their resolved values.
type Store struct {
	values map[string]string
}

// Empty returns a store with no secrets. Fork-originated pull requests run
// against an empty store regardless of what was loaded.
func Empty() *Store {
	return &Store{values: map[string]string{}}
}

// FromMap builds a store from an existing name/value mapping.
func FromMap(values map[string]string) *Store {
	s := &Store{values: make(map[string]string, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Load reads an env-format secrets file.
func Load(path string) (*Store, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	return FromMap(values), nil
}

// Get resolves a secret by name.
func (s *Store) Get(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Names returns the sorted secret names. Values are never enumerated.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of secrets held.
func (s *Store) Len() int { return len(s.values) }

// Redact replaces every secret value occurring in the given text with Mask.
func (s *Store) Redact(text string) string {
	for _, v := range s.values {
		if v == "" {
			continue
		}
		text = strings.ReplaceAll(text, v, Mask)
	}
	return text
}

// redactingWriter masks secret values on their way to an output stream.
// Writes are line-oriented in practice (process output), so masking per
// Write call is sufficient for values that do not span writes.
type redactingWriter struct {
	w     io.Writer
	store *Store
}

// NewRedactingWriter wraps w so that any secret value written through it is
// replaced with Mask.
func NewRedactingWriter(w io.Writer, store *Store) io.Writer {
	return &redactingWriter{w: w, store: store}
}

// Write implements io.Writer.
func (rw *redactingWriter) Write(p []byte) (int, error) {
	masked := rw.store.Redact(string(p))
	if _, err := rw.w.Write([]byte(masked)); err != nil {
		return 0, err
	}
	// Report the original length so callers do not see a short write.
	return len(p), nil
}
