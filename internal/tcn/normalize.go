package tcn

import "fmt"

// Normalize converts a collection of feature matrices into fixed-length
// channel-major tensors ready for the classifier.
//
// Each matrix must be two-dimensional with one axis of length
// NumChannels. Matrices oriented (time, channels) are transposed to
// (channels, time). The time axis is then padded with trailing zeros or
// truncated (keeping the first steps) to exactly SafeLength of the
// canonical architecture.
func Normalize(mats [][][]float32) ([]Tensor, error) {
	return NormalizeTo(mats, SafeLength(Architecture()))
}

// NormalizeTo is Normalize with an explicit target length. The target
// must be at least the classifier's SafeLength or pooling will be asked
// to downsample below length 1.
func NormalizeTo(mats [][][]float32, target int) ([]Tensor, error) {
	out := make([]Tensor, len(mats))
	for idx, mat := range mats {
		tensor, err := normalizeOne(mat, target)
		if err != nil {
			return nil, fmt.Errorf("normalize: matrix %d: %w", idx, err)
		}
		// The classifier depends on this holding for every sample.
		// A violation here is a defect in this function, not bad input.
		if tensor.Length != target {
			return nil, fmt.Errorf("normalize: internal: matrix %d came out with time axis %d, want %d", idx, tensor.Length, target)
		}
		out[idx] = tensor
	}
	return out, nil
}

func normalizeOne(mat [][]float32, target int) (Tensor, error) {
	if len(mat) == 0 {
		return Tensor{}, fmt.Errorf("empty matrix")
	}
	cols := len(mat[0])
	for r, row := range mat {
		if len(row) != cols {
			return Tensor{}, fmt.Errorf("ragged matrix: row %d has %d columns, row 0 has %d", r, len(row), cols)
		}
	}

	rows := len(mat)
	channelMajor := rows == NumChannels
	if !channelMajor {
		if cols != NumChannels {
			return Tensor{}, fmt.Errorf("shape (%d, %d): neither axis has length %d", rows, cols, NumChannels)
		}
		// (time, channels) orientation: transpose while copying below.
	}

	timeLen := cols
	if !channelMajor {
		timeLen = rows
	}
	if timeLen > target {
		timeLen = target
	}

	tensor := NewTensor(NumChannels, target)
	for c := 0; c < NumChannels; c++ {
		dst := tensor.Row(c)
		if channelMajor {
			copy(dst, mat[c][:timeLen])
		} else {
			for t := 0; t < timeLen; t++ {
				dst[t] = mat[t][c]
			}
		}
		// Steps beyond timeLen stay zero: trailing zero padding.
	}
	return tensor, nil
}
