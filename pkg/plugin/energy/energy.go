// Package energy registers the dependency-free RMS threshold VAD. It is
// the default detector and the fallback when the Silero model is not
// compiled in.
package energy

import (
	"github.com/voicedeck/voicedeck/pkg/ai/vad"
	"github.com/voicedeck/voicedeck/pkg/plugin"
)

func init() {
	plugin.Register(plugin.KindVAD, "energy", func(cfg plugin.Config) (any, error) {
		return vad.NewEnergyVAD(), nil
	})
}
