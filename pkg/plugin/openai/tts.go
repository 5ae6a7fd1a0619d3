package openai

import (
	"context"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voicedeck/voicedeck/pkg/ai/tts"
	"github.com/voicedeck/voicedeck/pkg/plugin"
	"github.com/voicedeck/voicedeck/pkg/rtc"
)

// OpenAI speech returns 24 kHz mono PCM when asked for raw output.
const ttsSampleRate = 24000

// TTS synthesizes speech with the OpenAI audio API, streaming the PCM
// response body into 10 ms frames.
type TTS struct {
	client *openai.Client
	model  string
	voice  string
}

func newTTS(cfg plugin.Config) (any, error) {
	key, err := apiKey(cfg)
	if err != nil {
		return nil, err
	}
	return &TTS{
		client: openai.NewClient(key),
		model:  cfg.String("model", string(openai.TTSModel1)),
		voice:  cfg.String("voice", string(openai.VoiceAlloy)),
	}, nil
}

func (t *TTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (<-chan *rtc.AudioFrame, error) {
	voice := t.voice
	if req.Voice != "" {
		voice = req.Voice
	}

	resp, err := t.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(t.model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, classify(err, "speech synthesis")
	}

	out := make(chan *rtc.AudioFrame, 16)
	go func() {
		defer close(out)
		defer resp.Close()

		fb := rtc.NewFrameBuffer(ttsSampleRate, 1)
		buf := make([]byte, 4096)
		for {
			n, err := resp.Read(buf)
			if n > 0 {
				for _, frame := range fb.Write(buf[:n]) {
					select {
					case out <- frame:
					case <-ctx.Done():
						return
					}
				}
			}
			if err != nil {
				if err == io.EOF {
					if tail := fb.Flush(); tail != nil {
						select {
						case out <- tail:
						case <-ctx.Done():
						}
					}
				}
				return
			}
		}
	}()
	return out, nil
}
