package tcn

import (
	"fmt"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// WeightsVersion identifies the checkpoint layout this package reads.
const WeightsVersion = 1

// ConvParams holds the parameters of one convolution stage. Weight is
// laid out [out][in][kernel] flattened, Bias has one entry per output
// channel.
type ConvParams struct {
	Weight []float32 `msgpack:"weight"`
	Bias   []float32 `msgpack:"bias"`
}

// Weights is the opaque model artifact: every learned parameter of the
// classifier. It is produced by an external training process, loaded
// once, and never mutated by inference.
type Weights struct {
	Version int          `msgpack:"version"`
	Convs   []ConvParams `msgpack:"convs"`
	Linear  []float32    `msgpack:"linear"` // [NumClasses][lastOut] flattened, no bias
}

// NewWeights allocates zero-initialized weights shaped for the given
// stage list. Used by tests and by tooling that converts checkpoints
// from other formats.
func NewWeights(stages []Stage) *Weights {
	w := &Weights{
		Version: WeightsVersion,
		Convs:   make([]ConvParams, len(stages)),
	}
	for i, st := range stages {
		w.Convs[i] = ConvParams{
			Weight: make([]float32, st.Out*st.In*st.Kernel),
			Bias:   make([]float32, st.Out),
		}
	}
	w.Linear = make([]float32, NumClasses*stages[len(stages)-1].Out)
	return w
}

// Validate checks that the weights match the shapes the stage list
// requires.
func (w *Weights) Validate(stages []Stage) error {
	if w.Version != WeightsVersion {
		return fmt.Errorf("tcn: unsupported weights version %d, want %d", w.Version, WeightsVersion)
	}
	if len(w.Convs) != len(stages) {
		return fmt.Errorf("tcn: checkpoint has %d conv stages, architecture has %d", len(w.Convs), len(stages))
	}
	for i, st := range stages {
		want := st.Out * st.In * st.Kernel
		if got := len(w.Convs[i].Weight); got != want {
			return fmt.Errorf("tcn: stage %d: weight has %d values, want %d (%dx%dx%d)", i, got, want, st.Out, st.In, st.Kernel)
		}
		if got := len(w.Convs[i].Bias); got != st.Out {
			return fmt.Errorf("tcn: stage %d: bias has %d values, want %d", i, got, st.Out)
		}
	}
	lastOut := stages[len(stages)-1].Out
	if got, want := len(w.Linear), NumClasses*lastOut; got != want {
		return fmt.Errorf("tcn: linear head has %d values, want %d (%dx%d)", got, want, NumClasses, lastOut)
	}
	return nil
}

// LoadWeights reads and validates a checkpoint against the canonical
// architecture.
func LoadWeights(path string) (*Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tcn: read checkpoint: %w", err)
	}
	var w Weights
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("tcn: decode checkpoint %s: %w", path, err)
	}
	if err := w.Validate(Architecture()); err != nil {
		return nil, fmt.Errorf("tcn: checkpoint %s: %w", path, err)
	}
	return &w, nil
}

// Save writes the checkpoint to path.
func (w *Weights) Save(path string) error {
	data, err := msgpack.Marshal(w)
	if err != nil {
		return fmt.Errorf("tcn: encode checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("tcn: write checkpoint: %w", err)
	}
	return nil
}
