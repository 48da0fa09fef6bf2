//go:build !onnx

package engine

import "errors"

// ErrONNXUnavailable indicates the ONNX backend is not compiled in.
var ErrONNXUnavailable = errors.New("engine: onnx backend not available (build with -tags onnx)")

// ONNXAvailable reports that no ONNX backend is compiled in.
func ONNXAvailable() bool { return false }

// NewONNXBackend returns an error when built without the onnx tag.
func NewONNXBackend(_ string) (Engine, error) {
	return nil, ErrONNXUnavailable
}
