package screen

import (
	"math"
	"testing"

	"github.com/cognivox/voicescreen/internal/engine"
)

func TestSoftmaxSumsToOne(t *testing.T) {
	cases := []engine.Logits{
		{0, 0},
		{3.2, -1.7},
		{-50, 40},
		{1000, 999}, // large logits must not overflow
	}
	for _, l := range cases {
		p := Softmax(l)
		if sum := p[0] + p[1]; math.Abs(sum-1) > 1e-9 {
			t.Errorf("Softmax(%v) sums to %v", l, sum)
		}
		if p[0] < 0 || p[1] < 0 {
			t.Errorf("Softmax(%v) = %v, negative probability", l, p)
		}
	}
}

func TestSoftmaxEqualLogits(t *testing.T) {
	p := Softmax(engine.Logits{2, 2})
	if math.Abs(p[0]-0.5) > 1e-9 || math.Abs(p[1]-0.5) > 1e-9 {
		t.Errorf("Softmax(equal) = %v, want 0.5/0.5", p)
	}
}

func TestInterpretLabelConvention(t *testing.T) {
	// Index 0 is the dementia score.
	in := Interpret(engine.Logits{5, -5})
	if in.Label != LabelDementia {
		t.Errorf("label = %q, want %q", in.Label, LabelDementia)
	}
	if in.DementiaProb < 0.99 {
		t.Errorf("DementiaProb = %v, want near 1", in.DementiaProb)
	}
	if in.Confidence != in.DementiaProb {
		t.Errorf("Confidence = %v, want winning probability %v", in.Confidence, in.DementiaProb)
	}

	in = Interpret(engine.Logits{-5, 5})
	if in.Label != LabelNormal {
		t.Errorf("label = %q, want %q", in.Label, LabelNormal)
	}
	if in.Confidence != in.NormalProb {
		t.Errorf("Confidence = %v, want winning probability %v", in.Confidence, in.NormalProb)
	}
}

func TestInterpretTieResolvesToNormal(t *testing.T) {
	// Exactly 0.5 does not exceed the strict threshold.
	in := Interpret(engine.Logits{1.5, 1.5})
	if in.Label != LabelNormal {
		t.Errorf("label at tie = %q, want %q", in.Label, LabelNormal)
	}
	if math.Abs(in.Confidence-0.5) > 1e-9 {
		t.Errorf("Confidence at tie = %v, want 0.5", in.Confidence)
	}
}

func TestInterpretDeterministic(t *testing.T) {
	l := engine.Logits{0.3, 0.7}
	a := Interpret(l)
	b := Interpret(l)
	if a != b {
		t.Errorf("Interpret not deterministic: %+v vs %+v", a, b)
	}
}
