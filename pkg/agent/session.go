// Package agent runs a voice conversation as a finite state machine:
// Idle, Listening, Thinking, Speaking. It wires VAD, STT, LLM and TTS
// around a microphone stream and a speaker sink.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voicedeck/voicedeck/pkg/ai"
	"github.com/voicedeck/voicedeck/pkg/ai/llm"
	"github.com/voicedeck/voicedeck/pkg/ai/stt"
	"github.com/voicedeck/voicedeck/pkg/ai/tts"
	"github.com/voicedeck/voicedeck/pkg/ai/vad"
	"github.com/voicedeck/voicedeck/pkg/job"
	"github.com/voicedeck/voicedeck/pkg/rtc"
)

// Options tunes one session's conversational behavior.
type Options struct {
	Instructions string

	Temperature float32
	MaxTokens   int

	SampleRate  int
	NumChannels int
	Language    string
	Voice       string

	AllowInterruptions       bool
	ResumeFalseInterruption  bool
	FalseInterruptionTimeout time.Duration

	// TargetLatency is the response-latency goal. Turns slower than
	// this are logged, not failed.
	TargetLatency time.Duration
}

// OptionsFromSnapshot maps a provisioned agent config onto session
// options.
func OptionsFromSnapshot(snap *job.AgentConfigSnapshot) Options {
	opts := Options{
		Instructions:             snap.Instructions,
		Temperature:              float32(snap.LLMTemperature),
		MaxTokens:                snap.LLMMaxTokens,
		SampleRate:               16000,
		NumChannels:              1,
		Language:                 snap.STTLanguage,
		Voice:                    snap.TTSVoice,
		AllowInterruptions:       snap.AllowInterruptions,
		ResumeFalseInterruption:  snap.ResumeFalseInterruption,
		FalseInterruptionTimeout: time.Duration(snap.FalseInterruptionTimeout) * time.Millisecond,
		TargetLatency:            time.Duration(snap.TargetLatency) * time.Millisecond,
	}
	return opts
}

// Config assembles a Session.
type Config struct {
	STT stt.STT
	TTS tts.TTS
	LLM llm.LLM
	VAD vad.VAD

	MicIn      <-chan *rtc.AudioFrame
	SpeakerOut chan<- *rtc.AudioFrame

	Options Options
	Usage   *UsageCollector
	Logger  *slog.Logger
}

// Session coordinates one conversation. All state transitions happen on
// the run loop; the current state is readable concurrently.
type Session struct {
	stt stt.STT
	tts tts.TTS
	llm llm.LLM
	vad vad.VAD

	micIn      <-chan *rtc.AudioFrame
	speakerOut chan<- *rtc.AudioFrame

	opts  Options
	usage *UsageCollector
	gate  *AudioGate
	log   *slog.Logger

	state atomic.Int32

	histMu  sync.Mutex
	history []llm.Message

	interrupts   chan struct{}
	speechDone   chan struct{}
	shutdown     chan struct{}
	shutdownOnce sync.Once

	sttStream stt.Stream
	sttEvents <-chan stt.SpeechEvent

	speakMu     sync.Mutex
	speakCancel context.CancelFunc

	// false-interruption bookkeeping, touched only on the run loop
	interruptedText string
	resumeC         <-chan time.Time
	turnStart       time.Time
}

// New validates the wiring and builds a Session in the Idle state.
func New(cfg Config) (*Session, error) {
	switch {
	case cfg.STT == nil:
		return nil, fmt.Errorf("STT is required")
	case cfg.TTS == nil:
		return nil, fmt.Errorf("TTS is required")
	case cfg.LLM == nil:
		return nil, fmt.Errorf("LLM is required")
	case cfg.VAD == nil:
		return nil, fmt.Errorf("VAD is required")
	case cfg.MicIn == nil:
		return nil, fmt.Errorf("MicIn channel is required")
	case cfg.SpeakerOut == nil:
		return nil, fmt.Errorf("SpeakerOut channel is required")
	case cfg.Options.Instructions == "":
		return nil, fmt.Errorf("instructions are required")
	}

	usage := cfg.Usage
	if usage == nil {
		usage = NewUsageCollector()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	opts := cfg.Options
	if opts.SampleRate == 0 {
		opts.SampleRate = 16000
	}
	if opts.NumChannels == 0 {
		opts.NumChannels = 1
	}

	s := &Session{
		stt:        cfg.STT,
		tts:        cfg.TTS,
		llm:        cfg.LLM,
		vad:        cfg.VAD,
		micIn:      cfg.MicIn,
		speakerOut: cfg.SpeakerOut,
		opts:       opts,
		usage:      usage,
		gate:       NewAudioGate(opts.AllowInterruptions),
		log:        log,
		interrupts: make(chan struct{}, 1),
		speechDone: make(chan struct{}, 1),
		shutdown:   make(chan struct{}),
		history: []llm.Message{
			{Role: llm.RoleSystem, Content: opts.Instructions},
		},
	}
	s.setState(StateIdle)
	return s, nil
}

// State returns the current conversation phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev != next {
		s.log.Debug("state transition",
			slog.String("from", prev.String()),
			slog.String("to", next.String()))
	}
}

// Usage returns the session's usage collector.
func (s *Session) Usage() *UsageCollector {
	return s.usage
}

// Interrupt requests that current playback or thinking stop and the
// session return to listening.
func (s *Session) Interrupt() {
	select {
	case s.interrupts <- struct{}{}:
	default:
	}
}

// Close stops the session. Safe to call more than once.
func (s *Session) Close() error {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
	s.cancelSpeech()
	return nil
}

// Greet produces and speaks an opening line before any user speech.
// Call it after the remote participant has joined and before Start
// begins consuming mic audio.
func (s *Session) Greet(ctx context.Context) error {
	s.histMu.Lock()
	msgs := append(append([]llm.Message(nil), s.history...), llm.Message{
		Role:    llm.RoleUser,
		Content: "Greet the user with a short, natural opening line.",
	})
	s.histMu.Unlock()

	resp, err := s.llm.Chat(ctx, llm.ChatRequest{
		Messages:    msgs,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		return fmt.Errorf("greeting: %w", err)
	}
	s.usage.RecordTokens(resp.Usage)

	s.histMu.Lock()
	s.history = append(s.history, resp.Message)
	s.histMu.Unlock()

	s.setState(StateSpeaking)
	return s.speak(context.Background(), resp.Message.Content, time.Time{})
}

// Start runs the session loop until the context, the job, or the mic
// stream ends.
func (s *Session) Start(ctx context.Context, j *job.Job) error {
	if j == nil {
		return fmt.Errorf("job is required")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-j.Context.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	vadIn := make(chan *rtc.AudioFrame, 64)
	defer close(vadIn)
	vadEvents, err := s.vad.Detect(runCtx, vadIn)
	if err != nil {
		return fmt.Errorf("start VAD: %w", err)
	}

	for {
		select {
		case <-runCtx.Done():
			return runCtx.Err()
		case <-s.shutdown:
			return nil

		case frame, ok := <-s.micIn:
			if !ok {
				return nil
			}
			if s.gate.ShouldDiscard() {
				continue
			}
			select {
			case vadIn <- frame:
			default:
				// VAD is behind; dropping a frame beats stalling the mic.
			}
			if s.State() == StateListening && s.sttStream != nil {
				if err := s.sttStream.Push(frame); err != nil {
					s.log.Warn("stt push failed", slog.String("error", err.Error()))
				}
			}

		case ev, ok := <-vadEvents:
			if !ok {
				return nil
			}
			if err := s.handleVADEvent(runCtx, ev); err != nil {
				return err
			}

		case ev, ok := <-s.sttEvents:
			if !ok {
				s.sttEvents = nil
				continue
			}
			if err := s.handleSTTEvent(runCtx, ev); err != nil {
				return err
			}

		case <-s.interrupts:
			s.handleInterrupt()

		case <-s.speechDone:
			// Playback finished uninterrupted, so there is nothing
			// left to resume.
			s.interruptedText = ""
			s.resumeC = nil

		case <-s.resumeC:
			s.resumeC = nil
			if s.interruptedText != "" && s.State() == StateListening {
				// Barge-in never produced a transcript; pick the answer
				// back up.
				text := s.interruptedText
				s.interruptedText = ""
				s.setState(StateSpeaking)
				if err := s.speak(runCtx, text, time.Time{}); err != nil {
					return err
				}
			}
		}
	}
}

func (s *Session) handleVADEvent(ctx context.Context, ev vad.Event) error {
	switch ev.Type {
	case vad.EventSpeechStart:
		switch s.State() {
		case StateIdle:
			s.setState(StateListening)
			return s.startListening(ctx)
		case StateSpeaking:
			if s.opts.AllowInterruptions {
				s.handleInterrupt()
				return s.startListening(ctx)
			}
		}
	case vad.EventSpeechEnd:
		if s.State() == StateListening {
			s.turnStart = time.Now()
			s.setState(StateThinking)
			return s.finishListening(ctx)
		}
	case vad.EventError:
		if ai.IsFatal(ev.Err) {
			return fmt.Errorf("vad: %w", ev.Err)
		}
		s.log.Warn("vad error", slog.String("error", ev.Err.Error()))
	}
	return nil
}

func (s *Session) handleSTTEvent(ctx context.Context, ev stt.SpeechEvent) error {
	switch ev.Type {
	case stt.SpeechEventFinal:
		// A real transcript arrived, so a pending false-interruption
		// resume is off.
		s.resumeC = nil
		s.interruptedText = ""
		if s.State() == StateThinking || s.State() == StateListening {
			return s.respond(ctx, ev.Text)
		}
	case stt.SpeechEventError:
		if ai.IsFatal(ev.Err) {
			return fmt.Errorf("stt: %w", ev.Err)
		}
		s.log.Warn("stt error, restarting stream", slog.String("error", ev.Err.Error()))
		if s.State() == StateListening {
			return s.startListening(ctx)
		}
	}
	return nil
}

func (s *Session) handleInterrupt() {
	switch s.State() {
	case StateSpeaking:
		s.cancelSpeech()
		if s.opts.ResumeFalseInterruption && s.interruptedText != "" &&
			s.opts.FalseInterruptionTimeout > 0 {
			s.resumeC = time.After(s.opts.FalseInterruptionTimeout)
		}
		s.setState(StateListening)
	case StateThinking:
		s.setState(StateListening)
	}
}

// startListening opens a fresh STT stream for the next utterance.
func (s *Session) startListening(ctx context.Context) error {
	if s.sttStream != nil {
		_ = s.sttStream.CloseSend()
	}
	stream, err := s.stt.NewStream(ctx, stt.StreamConfig{
		SampleRate:  s.opts.SampleRate,
		NumChannels: s.opts.NumChannels,
		Language:    s.opts.Language,
	})
	if err != nil {
		return fmt.Errorf("open STT stream: %w", err)
	}
	s.sttStream = stream
	s.sttEvents = stream.Events()
	return nil
}

// finishListening flushes the STT stream so the final transcript is
// delivered.
func (s *Session) finishListening(context.Context) error {
	if s.sttStream == nil {
		return nil
	}
	if err := s.sttStream.CloseSend(); err != nil {
		return fmt.Errorf("close STT stream: %w", err)
	}
	return nil
}

// respond runs one LLM turn for the transcript and speaks the answer.
func (s *Session) respond(ctx context.Context, transcript string) error {
	s.histMu.Lock()
	s.history = append(s.history, llm.Message{Role: llm.RoleUser, Content: transcript})
	msgs := append([]llm.Message(nil), s.history...)
	s.histMu.Unlock()

	resp, err := s.llm.Chat(ctx, llm.ChatRequest{
		Messages:    msgs,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		if ai.IsRecoverable(err) {
			s.log.Warn("llm error, returning to idle", slog.String("error", err.Error()))
			s.setState(StateIdle)
			return nil
		}
		return fmt.Errorf("llm chat: %w", err)
	}
	s.usage.RecordTokens(resp.Usage)

	s.histMu.Lock()
	s.history = append(s.history, resp.Message)
	s.histMu.Unlock()

	turnStart := s.turnStart
	s.turnStart = time.Time{}
	s.setState(StateSpeaking)
	return s.speak(ctx, resp.Message.Content, turnStart)
}

// speak streams synthesized audio to the speaker until it finishes or
// is interrupted. turnStart, when set, anchors the latency measurement.
func (s *Session) speak(ctx context.Context, text string, turnStart time.Time) error {
	speakCtx, cancel := context.WithCancel(ctx)

	s.speakMu.Lock()
	if s.speakCancel != nil {
		s.speakCancel()
	}
	s.speakCancel = cancel
	s.speakMu.Unlock()

	frames, err := s.tts.Synthesize(speakCtx, tts.SynthesizeRequest{
		Text:  text,
		Voice: s.opts.Voice,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("tts synthesize: %w", err)
	}

	s.interruptedText = text
	s.gate.SetSpeaking(true)

	go func() {
		defer func() {
			s.gate.SetSpeaking(false)
			if speakCtx.Err() == nil {
				// Natural completion; an interrupt handles its own
				// transition.
				s.setState(StateIdle)
				select {
				case s.speechDone <- struct{}{}:
				default:
				}
			}
			cancel()
		}()

		first := true
		for frame := range frames {
			if first {
				first = false
				if !turnStart.IsZero() {
					latency := time.Since(turnStart)
					s.usage.RecordTurnLatency(latency)
					if s.opts.TargetLatency > 0 && latency > s.opts.TargetLatency {
						s.log.Warn("turn exceeded latency target",
							slog.Duration("latency", latency),
							slog.Duration("target", s.opts.TargetLatency))
					}
				}
			}
			select {
			case s.speakerOut <- frame:
			case <-speakCtx.Done():
				return
			case <-s.shutdown:
				return
			}
		}
	}()

	return nil
}

func (s *Session) cancelSpeech() {
	s.speakMu.Lock()
	defer s.speakMu.Unlock()
	if s.speakCancel != nil {
		s.speakCancel()
		s.speakCancel = nil
	}
}
