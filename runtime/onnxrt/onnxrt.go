// Package onnxrt runs spectrogram models with ONNX Runtime.
//
// The runtime library is loaded dynamically. When it cannot be found the
// runtime reports backends.ErrRuntimeUnavailable and the model loader moves
// on to the next tier.
package onnxrt

import (
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/RyanBlaney/sonido-gunshot/detection/backends"
	"github.com/RyanBlaney/sonido-gunshot/detection/extractors"
	"github.com/RyanBlaney/sonido-gunshot/logging"
)

// LibraryPathEnv names the environment variable consulted when no library
// path is configured.
const LibraryPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// the ONNX Runtime environment is process-global
var envMu sync.Mutex

// Runtime implements backends.Runtime.
type Runtime struct {
	libraryPath string
	logger      logging.Logger
}

// New creates a runtime using the shared library at libraryPath. An empty
// path falls back to LibraryPathEnv, then to the platform default.
func New(libraryPath string) *Runtime {
	if libraryPath == "" {
		libraryPath = os.Getenv(LibraryPathEnv)
	}
	return &Runtime{
		libraryPath: libraryPath,
		logger: logging.WithFields(logging.Fields{
			"component": "onnx_runtime",
		}),
	}
}

func (r *Runtime) Name() string { return "onnxruntime" }

// Available initialises the ONNX Runtime environment once per process.
func (r *Runtime) Available() error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	if r.libraryPath != "" {
		ort.SetSharedLibraryPath(r.libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		r.logger.Debug("ONNX Runtime not available", logging.Fields{
			"library_path": r.libraryPath,
			"error":        err.Error(),
		})
		return fmt.Errorf("%w: %v", backends.ErrRuntimeUnavailable, err)
	}

	r.logger.Debug("ONNX Runtime initialised", logging.Fields{
		"library_path": r.libraryPath,
	})
	return nil
}

// Load opens weightsPath as a dynamic session. Tensor names come from the
// architecture descriptor, or from the graph when the descriptor omits them.
func (r *Runtime) Load(arch backends.Architecture, weightsPath string) (backends.TensorModel, error) {
	if _, err := os.Stat(weightsPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(weightsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model graph: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, errors.New("model has no inputs or outputs")
	}

	input, err := selectInfo(inputs, arch.InputName)
	if err != nil {
		return nil, err
	}
	output, err := selectInfo(outputs, arch.OutputName)
	if err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(weightsPath,
		[]string{input.Name}, []string{output.Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	model := &Model{
		session:     session,
		inputShape:  InputShape(input.Dimensions),
		outputShape: OutputShape(output.Dimensions, arch.NumOutputs),
	}

	r.logger.Info("ONNX model loaded", logging.Fields{
		"weights_path": weightsPath,
		"input":        input.Name,
		"output":       output.Name,
		"input_shape":  model.inputShape,
	})

	return model, nil
}

func selectInfo(infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, error) {
	if name == "" {
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return ort.InputOutputInfo{}, fmt.Errorf("model has no tensor named %q", name)
}

// InputShape maps an NHWC graph input to (height, width, channels); dynamic
// dimensions are reported as 0.
func InputShape(dims ort.Shape) [3]int {
	var shape [3]int
	if len(dims) != 4 {
		return shape
	}
	for i := range 3 {
		if d := dims[i+1]; d > 0 {
			shape[i] = int(d)
		}
	}
	return shape
}

// OutputShape resolves dynamic output dimensions for a batch of one.
func OutputShape(dims ort.Shape, numOutputs int) ort.Shape {
	if len(dims) == 0 {
		return ort.NewShape(1, int64(max(numOutputs, 1)))
	}
	shape := make(ort.Shape, len(dims))
	for i, d := range dims {
		shape[i] = d
		if d <= 0 {
			shape[i] = 1
			if i == len(dims)-1 && numOutputs > 0 {
				shape[i] = int64(numOutputs)
			}
		}
	}
	return shape
}

// Model is a loaded ONNX graph. Each Run allocates its own tensors, so a
// Model may be shared by concurrent requests.
type Model struct {
	session     *ort.DynamicAdvancedSession
	inputShape  [3]int
	outputShape ort.Shape
}

func (m *Model) InputShape() [3]int { return m.inputShape }

// Run feeds one HWC tensor as a batch of one and returns the flat output.
func (m *Model) Run(in *extractors.SpectrogramTensor) ([]float32, error) {
	input, err := ort.NewTensor(ort.NewShape(1, int64(in.Height), int64(in.Width), int64(in.Channels)), in.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](m.outputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := m.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, err
	}

	data := output.GetData()
	result := make([]float32, len(data))
	copy(result, data)
	return result, nil
}

func (m *Model) Close() error {
	return m.session.Destroy()
}
