//go:build onnx

package engine

// ONNXAvailable reports that the ONNX Runtime backend is compiled in.
func ONNXAvailable() bool { return true }

// NewONNXBackend creates an ONNXEngine for the exported model at path.
func NewONNXBackend(path string) (Engine, error) {
	return NewONNXEngine(path)
}
