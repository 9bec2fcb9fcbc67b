// Package export writes a scored run to a directory and reads it back:
// the results table, the limits sidecar, the fitted model and its
// loadings table.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Sumatoshi-tech/fillspc/pkg/dataset"
	"github.com/Sumatoshi-tech/fillspc/pkg/pca"
	"github.com/Sumatoshi-tech/fillspc/pkg/persist"
	"github.com/Sumatoshi-tech/fillspc/pkg/pipeline"
	"github.com/Sumatoshi-tech/fillspc/pkg/spc"
)

// File names inside a run directory.
const (
	ResultsFile    = "results.csv"
	LoadingsFile   = "loadings.csv"
	LimitsBasename = "limits"
	ModelBasename  = "model"
)

const dirPerm = 0o755

// Sentinel errors.
var (
	// ErrMissingLimits is returned when a run directory has no limits sidecar.
	ErrMissingLimits = spc.ErrMissingLimits
	// ErrMissingResults is returned when a run directory has no results table.
	ErrMissingResults = errors.New("results table not found")
	// ErrMalformedResults is returned for a results table that cannot be parsed.
	ErrMalformedResults = errors.New("malformed results table")
	// ErrMissingModel is returned when a run directory has no saved model.
	ErrMissingModel = errors.New("saved model not found")
)

// Sidecar is the limits.json document. The limit fields are inlined so the
// file carries T2_limit and Q_limit at the top level.
type Sidecar struct {
	spc.Limits `yaml:",inline"`

	Schema                 dataset.Schema `json:"schema"                   yaml:"schema"`
	ComponentNames         []string       `json:"components"               yaml:"components"`
	ExplainedVarianceRatio []float64      `json:"explained_variance_ratio" yaml:"explained_variance_ratio"`
	Rows                   int            `json:"rows"                     yaml:"rows"`
	CreatedAt              time.Time      `json:"created_at"               yaml:"created_at"`
}

// Options control Write.
type Options struct {
	// CompressModel stores the model as model.json.lz4.
	CompressModel bool
	// Now stamps the sidecar. Nil uses time.Now.
	Now func() time.Time
}

var (
	sidecarPersister    = persist.NewPersister[Sidecar](LimitsBasename, persist.NewJSONCodec())
	modelPersister      = persist.NewPersister[pca.Snapshot](ModelBasename, persist.NewJSONCodec())
	compressedPersister = persist.NewPersister[pca.Snapshot](ModelBasename, persist.NewLZ4Codec(persist.NewJSONCodec()))
)

// Write stores result in dir, creating it if needed.
func Write(dir string, result *pipeline.Result, opts Options) error {
	if result == nil || result.Model == nil {
		return pca.ErrNoModel
	}

	if result.Limits == nil {
		return ErrMissingLimits
	}

	err := os.MkdirAll(dir, dirPerm)
	if err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	err = writeFile(filepath.Join(dir, ResultsFile), func(f *os.File) error {
		return WriteResults(f, result)
	})
	if err != nil {
		return err
	}

	err = writeFile(filepath.Join(dir, LoadingsFile), func(f *os.File) error {
		return WriteLoadings(f, result.Model)
	})
	if err != nil {
		return err
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	sidecar := NewSidecar(result, now())

	err = sidecarPersister.Save(dir, &sidecar)
	if err != nil {
		return fmt.Errorf("write limits sidecar: %w", err)
	}

	return SaveModel(dir, result.Model, opts.CompressModel)
}

// NewSidecar builds the sidecar document of result.
func NewSidecar(result *pipeline.Result, created time.Time) Sidecar {
	return Sidecar{
		Limits:                 *result.Limits,
		Schema:                 result.Schema,
		ComponentNames:         result.Model.ComponentNames(),
		ExplainedVarianceRatio: result.Model.ExplainedVarianceRatio(),
		Rows:                   len(result.Observations),
		CreatedAt:              created.UTC(),
	}
}

// SaveModel writes model to dir as model.json or model.json.lz4.
func SaveModel(dir string, model *pca.Model, compress bool) error {
	snap := model.Snapshot()

	p := modelPersister
	if compress {
		p = compressedPersister
	}

	err := p.Save(dir, &snap)
	if err != nil {
		return fmt.Errorf("write model: %w", err)
	}

	return nil
}

// LoadModel reads a saved model. path may be a run directory, in which case
// model.json.lz4 is preferred over model.json, or a model file.
func LoadModel(path string) (*pca.Model, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingModel, err)
	}

	var snap *pca.Snapshot

	switch {
	case !info.IsDir():
		snap, err = loadSnapshotFile(path)
	case fileExists(compressedPersister.Path(path)):
		snap, err = compressedPersister.Load(path)
	case fileExists(modelPersister.Path(path)):
		snap, err = modelPersister.Load(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrMissingModel, path)
	}

	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}

	return pca.FromSnapshot(*snap)
}

func loadSnapshotFile(path string) (*pca.Snapshot, error) {
	codec, err := persist.CodecFor(path)
	if err != nil {
		return nil, err
	}

	var snap pca.Snapshot

	err = persist.LoadFile(path, codec, &snap)
	if err != nil {
		return nil, err
	}

	return &snap, nil
}

// LoadSidecar reads the limits sidecar of a run directory.
func LoadSidecar(dir string) (*Sidecar, error) {
	path := sidecarPersister.Path(dir)
	if !fileExists(path) {
		return nil, fmt.Errorf("%w: %s", ErrMissingLimits, path)
	}

	sidecar, err := sidecarPersister.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("read limits sidecar: %w", err)
	}

	return sidecar, nil
}

// Load reads a run directory back into a Result. The sidecar and results
// table are required; the model is attached when present.
func Load(dir string) (*pipeline.Result, error) {
	sidecar, err := LoadSidecar(dir)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, ResultsFile)

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingResults, path)
		}

		return nil, fmt.Errorf("open results: %w", err)
	}
	defer file.Close()

	observations, err := ReadResults(file, sidecar.Schema)
	if err != nil {
		return nil, err
	}

	limits := sidecar.Limits
	result := &pipeline.Result{Limits: &limits, Schema: sidecar.Schema, Observations: observations}

	model, err := LoadModel(dir)

	switch {
	case err == nil:
		result.Model = model
	case !errors.Is(err, ErrMissingModel):
		return nil, err
	}

	return result, nil
}

func writeFile(path string, write func(f *os.File) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}

	err = write(file)
	if err != nil {
		file.Close()

		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}

	err = file.Close()
	if err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)

	return err == nil && !info.IsDir()
}
