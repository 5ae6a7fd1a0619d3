//go:build !silero

// Package silero registers a stub factory when built without the silero
// tag, so provider lookup fails with an actionable message instead of a
// missing-plugin error.
package silero

import (
	"fmt"

	"github.com/voicedeck/voicedeck/pkg/plugin"
)

func init() {
	plugin.Register(plugin.KindVAD, "silero", func(cfg plugin.Config) (any, error) {
		return nil, fmt.Errorf("silero VAD not available: rebuild with -tags=silero")
	})
}
