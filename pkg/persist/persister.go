package persist

import "path/filepath"

// Persister stores one artifact type under a fixed base name, so callers
// pass only the run directory.
type Persister[T any] struct {
	basename string
	codec    Codec
}

// NewPersister binds basename to codec; the codec supplies the extension.
func NewPersister[T any](basename string, codec Codec) *Persister[T] {
	return &Persister[T]{basename: basename, codec: codec}
}

// Path is the artifact's file inside dir.
func (p *Persister[T]) Path(dir string) string {
	return filepath.Join(dir, p.basename+p.codec.Extension())
}

// Save atomically replaces the artifact in dir.
func (p *Persister[T]) Save(dir string, v *T) error {
	return SaveFile(p.Path(dir), p.codec, v)
}

// Load decodes the artifact from dir.
func (p *Persister[T]) Load(dir string) (*T, error) {
	v := new(T)

	err := LoadFile(p.Path(dir), p.codec, v)
	if err != nil {
		return nil, err
	}

	return v, nil
}
