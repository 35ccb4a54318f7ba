// Package ortenv owns the process-wide ONNX Runtime environment. The face
// locator and the upscaler both run ONNX models; the runtime can only be
// initialised once per process, so they share it through this package.
package ortenv

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// LibraryPathEnv overrides the shared library location
const LibraryPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

var mu sync.Mutex

// DefaultLibraryPath returns the platform's onnxruntime shared library name,
// or the value of ONNXRUNTIME_SHARED_LIBRARY_PATH when set
func DefaultLibraryPath() string {
	if p := os.Getenv(LibraryPathEnv); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// Init loads the shared library and initialises the environment. Calls after
// the first successful one are no-ops.
func Init(libraryPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath == "" {
		libraryPath = DefaultLibraryPath()
	}
	ort.SetSharedLibraryPath(libraryPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize onnxruntime from %s: %w", libraryPath, err)
	}
	return nil
}

// Shutdown destroys the environment if it was initialised
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// NewSessionOptions returns session options limited to threads intra-op
// threads; 0 leaves the runtime default. The caller destroys the options.
func NewSessionOptions(threads int) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	if threads > 0 {
		if err := opts.SetIntraOpNumThreads(threads); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}
	return opts, nil
}

// IONames returns the first input and first output name of a model
func IONames(modelPath string) (ort.InputOutputInfo, ort.InputOutputInfo, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return ort.InputOutputInfo{}, ort.InputOutputInfo{}, fmt.Errorf("failed to read model io info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return ort.InputOutputInfo{}, ort.InputOutputInfo{}, fmt.Errorf("model %s declares no inputs or outputs", modelPath)
	}
	return inputs[0], outputs[0], nil
}
