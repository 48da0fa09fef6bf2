//go:build onnx

package engine

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/cognivox/voicescreen/internal/tcn"
)

// ortInitOnce ensures ONNX Runtime environment is initialized exactly once.
// ortInitErr is stored at package scope so subsequent NewONNXEngine calls
// surface the failure instead of proceeding with an uninitialized environment.
var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// ONNXEngine runs an exported copy of the classifier via ONNX Runtime.
// The exported graph must take one input named "input" of shape
// [1, 13, SafeLength] and produce one output named "logits" of shape
// [1, 2].
//
// Session tensors are reused between calls, so Classify is serialized
// with a mutex; concurrent callers queue rather than corrupt tensors.
type ONNXEngine struct {
	mu      sync.Mutex
	session *ort.AdvancedSession

	inputTensor  *ort.Tensor[float32] // [1, 13, safeLength]
	outputTensor *ort.Tensor[float32] // [1, 2]

	safeLength int
}

// NewONNXEngine creates an ONNXEngine by initializing ONNX Runtime and
// loading the exported model from modelPath.
func NewONNXEngine(modelPath string) (*ONNXEngine, error) {
	ortInitOnce.Do(func() {
		libPath, err := resolveORTLibPath()
		if err != nil {
			ortInitErr = fmt.Errorf("resolve ORT lib: %w", err)
			return
		}
		ort.SetSharedLibraryPath(libPath)
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("onnx: %w", ortInitErr)
	}

	safeLength := tcn.SafeLength(tcn.Architecture())

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, tcn.NumChannels, int64(safeLength)))
	if err != nil {
		return nil, fmt.Errorf("onnx: create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, tcn.NumClasses))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("onnx: create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input"},
		[]string{"logits"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil, // default session options
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("onnx: create session from %s: %w", modelPath, err)
	}

	return &ONNXEngine{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		safeLength:   safeLength,
	}, nil
}

// Classify implements Engine by running one inference per sample.
func (e *ONNXEngine) Classify(batch []tcn.Tensor) ([]Logits, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Logits, len(batch))
	for i, x := range batch {
		if x.Channels != tcn.NumChannels || x.Length != e.safeLength {
			return nil, fmt.Errorf("onnx: input %d has shape %dx%d, want %dx%d",
				i, x.Channels, x.Length, tcn.NumChannels, e.safeLength)
		}
		copy(e.inputTensor.GetData(), x.Data)
		if err := e.session.Run(); err != nil {
			return nil, fmt.Errorf("onnx: inference for input %d: %w", i, err)
		}
		logits := e.outputTensor.GetData()
		out[i] = Logits{logits[0], logits[1]}
	}
	return out, nil
}

// Name implements Engine.
func (e *ONNXEngine) Name() string { return "onnx" }

// Close releases ONNX Runtime resources. Safe to call multiple times.
func (e *ONNXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	return nil
}
