// Package screen interprets classifier scores and orchestrates the
// audio-in, decision-out inference pipeline.
package screen

import (
	"math"

	"github.com/cognivox/voicescreen/internal/engine"
)

// Class-index convention of the published checkpoint. The indices are
// inverted relative to the training manifest (which labels dementia as
// 1): the checkpoint scores dementia at index 0 and normal speech at
// index 1. This mapping is a property of the trained artifact, not of
// the architecture. Revalidate it whenever a new checkpoint is
// published, and correct it here rather than in the numeric pipeline.
const (
	ClassDementia = 0
	ClassNormal   = 1
)

// Result labels.
const (
	LabelNormal   = "normal"
	LabelDementia = "dementia_detected"
)

// DecisionThreshold is the dementia-probability cutoff. The comparison
// is strictly greater-than, so a score of exactly 0.5 resolves to
// normal.
const DecisionThreshold = 0.5

// Interpretation is the calibrated reading of one logit pair.
type Interpretation struct {
	Label        string
	NormalProb   float64
	DementiaProb float64
	Confidence   float64
}

// Softmax converts a logit pair into two probabilities summing to 1.
func Softmax(l engine.Logits) [2]float64 {
	a, b := float64(l[0]), float64(l[1])
	m := math.Max(a, b)
	ea := math.Exp(a - m)
	eb := math.Exp(b - m)
	sum := ea + eb
	return [2]float64{ea / sum, eb / sum}
}

// Interpret applies softmax and the fixed class-to-label convention to
// one logit pair. It is deterministic: the same logits always produce
// the same interpretation.
func Interpret(l engine.Logits) Interpretation {
	probs := Softmax(l)
	dementia := probs[ClassDementia]
	normal := probs[ClassNormal]

	out := Interpretation{
		NormalProb:   normal,
		DementiaProb: dementia,
	}
	if dementia > DecisionThreshold {
		out.Label = LabelDementia
		out.Confidence = dementia
	} else {
		out.Label = LabelNormal
		out.Confidence = normal
	}
	return out
}
