package silero

import (
	"os"
	"path/filepath"
)

const (
	// ModelFileName is the expected ONNX model file name.
	ModelFileName = "silero_vad.onnx"
	// DefaultThreshold is the speech probability cutoff.
	DefaultThreshold = 0.5
)

func defaultModelPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".voicedeck", "models", ModelFileName)
}
