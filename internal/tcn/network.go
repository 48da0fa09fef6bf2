// Package tcn implements the temporal convolutional classifier that
// scores a normalized cepstral sequence as dementia vs normal speech.
package tcn

import (
	"fmt"
	"math"
)

// Network is the convolutional classifier. Weights are read-only after
// construction, so a single Network may serve concurrent Forward calls.
type Network struct {
	stages     []Stage
	w          *Weights
	safeLength int
}

// New builds a Network with the canonical architecture.
func New(w *Weights) (*Network, error) {
	return NewWithStages(Architecture(), w)
}

// NewWithStages builds a Network from an explicit stage list. The
// stage list must be internally consistent (each stage's In equals the
// previous stage's Out) and the weights must match its shapes.
func NewWithStages(stages []Stage, w *Weights) (*Network, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("tcn: empty stage list")
	}
	for i := 1; i < len(stages); i++ {
		if stages[i].In != stages[i-1].Out {
			return nil, fmt.Errorf("tcn: stage %d input channels %d do not match stage %d output channels %d",
				i, stages[i].In, i-1, stages[i-1].Out)
		}
	}
	if err := w.Validate(stages); err != nil {
		return nil, err
	}
	return &Network{
		stages:     stages,
		w:          w,
		safeLength: SafeLength(stages),
	}, nil
}

// SafeLength returns the exact time-axis length Forward requires,
// computed from the stage list.
func (n *Network) SafeLength() int { return n.safeLength }

// InputChannels returns the channel count Forward requires.
func (n *Network) InputChannels() int { return n.stages[0].In }

// OutputChannels returns the channel count of the final feature maps.
func (n *Network) OutputChannels() int { return n.stages[len(n.stages)-1].Out }

// Forward runs the classifier over a batch of single-sample tensors and
// returns one logit pair per input, in order.
//
// Every input's time axis must equal SafeLength exactly. Anything else
// fails immediately with the offending index, before a pooling stage
// can be asked to downsample below length 1.
func (n *Network) Forward(batch []Tensor) ([][NumClasses]float32, error) {
	out := make([][NumClasses]float32, len(batch))
	for idx, x := range batch {
		if err := n.validateInput(idx, x); err != nil {
			return nil, err
		}
		fm, err := n.runStages(idx, x)
		if err != nil {
			return nil, err
		}

		// Global average pooling across the time axis.
		pooled := make([]float32, fm.Channels)
		for c := 0; c < fm.Channels; c++ {
			var sum float64
			for _, v := range fm.Row(c) {
				sum += float64(v)
			}
			pooled[c] = float32(sum / float64(fm.Length))
		}

		// Bias-free linear projection to class logits.
		var logits [NumClasses]float32
		for cls := 0; cls < NumClasses; cls++ {
			row := n.w.Linear[cls*fm.Channels : (cls+1)*fm.Channels]
			var sum float64
			for c, v := range pooled {
				sum += float64(row[c]) * float64(v)
			}
			logits[cls] = float32(sum)
		}
		out[idx] = logits
	}
	return out, nil
}

// FeatureMaps runs the convolutional stack without the global pooling
// and linear head, returning the pre-pooling feature map per sample.
// Intended for inspection, not the prediction path.
func (n *Network) FeatureMaps(batch []Tensor) ([]Tensor, error) {
	out := make([]Tensor, len(batch))
	for idx, x := range batch {
		if err := n.validateInput(idx, x); err != nil {
			return nil, err
		}
		fm, err := n.runStages(idx, x)
		if err != nil {
			return nil, err
		}
		out[idx] = fm
	}
	return out, nil
}

func (n *Network) validateInput(idx int, x Tensor) error {
	if x.Channels != n.stages[0].In {
		return fmt.Errorf("tcn: input %d has %d channels, want %d", idx, x.Channels, n.stages[0].In)
	}
	if x.Length != n.safeLength {
		return fmt.Errorf("tcn: input %d has time axis %d, want exactly %d (shape %dx%d); normalize sequences before classification",
			idx, x.Length, n.safeLength, x.Channels, x.Length)
	}
	return nil
}

func (n *Network) runStages(idx int, x Tensor) (Tensor, error) {
	for si, st := range n.stages {
		x = conv1d(x, n.w.Convs[si], st)
		if st.Activate {
			elu(x.Data)
		}
		if st.Pool > 1 {
			// Validation above makes this unreachable; kept so a stage
			// list/normalizer mismatch surfaces with context instead of
			// an index panic deeper down.
			if x.Length < st.Pool {
				return Tensor{}, fmt.Errorf("tcn: input %d: stage %d cannot pool time axis %d by %d (shape %dx%d)",
					idx, si, x.Length, st.Pool, x.Channels, x.Length)
			}
			x = maxPool(x, st.Pool)
		}
	}
	return x, nil
}

// conv1d applies a same-padded 1-D convolution. The output keeps the
// input's time length.
func conv1d(x Tensor, p ConvParams, st Stage) Tensor {
	pad := (st.Kernel - 1) / 2
	y := NewTensor(st.Out, x.Length)
	for o := 0; o < st.Out; o++ {
		yRow := y.Row(o)
		bias := p.Bias[o]
		for t := range yRow {
			yRow[t] = bias
		}
		wBase := o * st.In * st.Kernel
		for i := 0; i < st.In; i++ {
			xRow := x.Row(i)
			for k := 0; k < st.Kernel; k++ {
				wv := p.Weight[wBase+i*st.Kernel+k]
				off := k - pad
				start := 0
				if off < 0 {
					start = -off
				}
				end := x.Length
				if off > 0 {
					end = x.Length - off
				}
				for t := start; t < end; t++ {
					yRow[t] += wv * xRow[t+off]
				}
			}
		}
	}
	return y
}

// elu applies the exponential linear unit in place.
func elu(data []float32) {
	for i, v := range data {
		if v < 0 {
			data[i] = float32(math.Exp(float64(v)) - 1)
		}
	}
}

// maxPool downsamples the time axis by the given factor, discarding the
// remainder of a partial trailing window.
func maxPool(x Tensor, factor int) Tensor {
	outLen := x.Length / factor
	y := NewTensor(x.Channels, outLen)
	for c := 0; c < x.Channels; c++ {
		xRow := x.Row(c)
		yRow := y.Row(c)
		for t := 0; t < outLen; t++ {
			best := xRow[t*factor]
			for k := 1; k < factor; k++ {
				if v := xRow[t*factor+k]; v > best {
					best = v
				}
			}
			yRow[t] = best
		}
	}
	return y
}
