package engine

import (
	"fmt"

	"github.com/cognivox/voicescreen/internal/tcn"
)

// TCNEngine runs the classifier natively in Go. This is the default
// backend: no shared libraries, no accelerator, fully deterministic.
type TCNEngine struct {
	net *tcn.Network
}

// NewTCNEngine builds the native backend from a loaded checkpoint.
func NewTCNEngine(w *tcn.Weights) (*TCNEngine, error) {
	if w == nil {
		return nil, ErrNotReady
	}
	net, err := tcn.New(w)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return &TCNEngine{net: net}, nil
}

// NewTCNEngineFromFile loads a checkpoint from disk and builds the
// native backend.
func NewTCNEngineFromFile(path string) (*TCNEngine, error) {
	w, err := tcn.LoadWeights(path)
	if err != nil {
		return nil, err
	}
	return NewTCNEngine(w)
}

// Classify implements Engine. Gradients do not exist in this backend;
// the forward pass reads the weights and writes nothing back.
func (e *TCNEngine) Classify(batch []tcn.Tensor) ([]Logits, error) {
	raw, err := e.net.Forward(batch)
	if err != nil {
		return nil, err
	}
	out := make([]Logits, len(raw))
	for i, l := range raw {
		out[i] = Logits(l)
	}
	return out, nil
}

// FeatureMaps exposes the pre-pooling feature maps for inspection.
func (e *TCNEngine) FeatureMaps(batch []tcn.Tensor) ([]tcn.Tensor, error) {
	return e.net.FeatureMaps(batch)
}

// SafeLength returns the time-axis length Classify requires.
func (e *TCNEngine) SafeLength() int { return e.net.SafeLength() }

// Name implements Engine.
func (e *TCNEngine) Name() string { return "tcn" }

// Close is a no-op for the native backend.
func (e *TCNEngine) Close() error { return nil }
