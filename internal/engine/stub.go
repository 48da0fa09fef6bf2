package engine

import (
	"fmt"

	"github.com/cognivox/voicescreen/internal/tcn"
)

// StubLogits is the fixed logit pair the stub engine returns for every
// sample. It softmaxes to roughly 8% dementia / 92% normal, so the
// interpreted result is always "normal".
var StubLogits = Logits{-1.2, 1.2}

// StubEngine returns deterministic logits without looking at the input
// tensors. It validates shapes the same way the real backend does, so
// serving-layer tests exercise the full request path without weights.
type StubEngine struct {
	logits Logits
}

// NewStubEngine creates a StubEngine returning StubLogits.
func NewStubEngine() *StubEngine {
	return &StubEngine{logits: StubLogits}
}

// NewStubEngineWithLogits creates a StubEngine returning a fixed custom
// logit pair.
func NewStubEngineWithLogits(l Logits) *StubEngine {
	return &StubEngine{logits: l}
}

// Classify returns the fixed logit pair once per input.
func (e *StubEngine) Classify(batch []tcn.Tensor) ([]Logits, error) {
	safe := tcn.SafeLength(tcn.Architecture())
	out := make([]Logits, len(batch))
	for i, x := range batch {
		if x.Channels != tcn.NumChannels || x.Length != safe {
			return nil, fmt.Errorf("engine: input %d has shape %dx%d, want %dx%d",
				i, x.Channels, x.Length, tcn.NumChannels, safe)
		}
		out[i] = e.logits
	}
	return out, nil
}

// Name implements Engine.
func (e *StubEngine) Name() string { return "stub" }

// Close is a no-op for the stub engine.
func (e *StubEngine) Close() error { return nil }
