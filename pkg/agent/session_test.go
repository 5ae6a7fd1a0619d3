package agent

import (
	"context"
	"testing"
	"time"

	"github.com/voicedeck/voicedeck/pkg/ai/llm"
	fakellm "github.com/voicedeck/voicedeck/pkg/ai/llm/fake"
	fakestt "github.com/voicedeck/voicedeck/pkg/ai/stt/fake"
	fakettts "github.com/voicedeck/voicedeck/pkg/ai/tts/fake"
	"github.com/voicedeck/voicedeck/pkg/ai/vad"
	fakevad "github.com/voicedeck/voicedeck/pkg/ai/vad/fake"
	"github.com/voicedeck/voicedeck/pkg/job"
	"github.com/voicedeck/voicedeck/pkg/rtc"
)

func micFrame(t *testing.T) *rtc.AudioFrame {
	t.Helper()
	frame, err := rtc.NewAudioFrame(make([]byte, 320), 16000, 1, 0)
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	return frame
}

func testJob(t *testing.T) *job.Job {
	t.Helper()
	j, err := job.New(context.Background(), job.Config{
		RoomName: "agent-a-b",
		Metadata: `{"instructions":"Be helpful."}`,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return j
}

func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, stuck in %s", want, s.State())
}

func pump(t *testing.T, mic chan<- *rtc.AudioFrame, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case mic <- micFrame(t):
		case <-time.After(2 * time.Second):
			t.Fatal("mic send stalled")
		}
	}
}

func TestNewValidation(t *testing.T) {
	mic := make(chan *rtc.AudioFrame)
	speaker := make(chan *rtc.AudioFrame)

	base := Config{
		STT:        fakestt.New("hi"),
		TTS:        fakettts.New(),
		LLM:        fakellm.New(),
		VAD:        fakevad.New(),
		MicIn:      mic,
		SpeakerOut: speaker,
		Options:    Options{Instructions: "Be helpful."},
	}

	if _, err := New(base); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	broken := base
	broken.LLM = nil
	if _, err := New(broken); err == nil {
		t.Error("expected error without LLM")
	}
	broken = base
	broken.Options.Instructions = ""
	if _, err := New(broken); err == nil {
		t.Error("expected error without instructions")
	}
}

func TestConversationTurn(t *testing.T) {
	mic := make(chan *rtc.AudioFrame)
	speaker := make(chan *rtc.AudioFrame, 256)
	fllm := fakellm.New("Hi there!")

	s, err := New(Config{
		STT:        fakestt.New("what is the weather"),
		TTS:        fakettts.New(),
		LLM:        fllm,
		VAD:        fakevad.New(vad.EventSpeechStart, vad.EventSpeechEnd),
		MicIn:      mic,
		SpeakerOut: speaker,
		Options: Options{
			Instructions: "You are a weather bot.",
			MaxTokens:    100,
			Temperature:  0.7,
		},
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, testJob(t)) }()

	pump(t, mic, 10)
	waitForState(t, s, StateListening)
	pump(t, mic, 10)

	var got int
	timeout := time.After(2 * time.Second)
	for got < len("Hi there!") {
		select {
		case <-speaker:
			got++
		case <-timeout:
			t.Fatalf("only %d frames spoken", got)
		}
	}
	waitForState(t, s, StateIdle)

	reqs := fllm.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 LLM request, got %d", len(reqs))
	}
	msgs := reqs[0].Messages
	if msgs[0].Role != llm.RoleSystem || msgs[0].Content != "You are a weather bot." {
		t.Errorf("system prompt missing: %+v", msgs[0])
	}
	if last := msgs[len(msgs)-1]; last.Role != llm.RoleUser || last.Content != "what is the weather" {
		t.Errorf("transcript not forwarded: %+v", last)
	}
	if reqs[0].MaxTokens != 100 {
		t.Errorf("MaxTokens not forwarded: %d", reqs[0].MaxTokens)
	}

	summary := s.Usage().Summary()
	if summary.Turns != 1 || summary.TotalTokens == 0 {
		t.Errorf("usage not recorded: %+v", summary)
	}
	if summary.AvgLatency <= 0 {
		t.Errorf("turn latency not recorded: %+v", summary)
	}

	s.Close()
	if err := <-done; err != nil && err != context.Canceled {
		t.Errorf("run loop error: %v", err)
	}
}

func TestGreetSpeaksWithoutUserAudio(t *testing.T) {
	mic := make(chan *rtc.AudioFrame)
	speaker := make(chan *rtc.AudioFrame, 64)
	fllm := fakellm.New("Hello! How can I help?")

	s, err := New(Config{
		STT:        fakestt.New("unused"),
		TTS:        fakettts.New(),
		LLM:        fllm,
		VAD:        fakevad.New(),
		MicIn:      mic,
		SpeakerOut: speaker,
		Options:    Options{Instructions: "Greet people."},
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	if err := s.Greet(context.Background()); err != nil {
		t.Fatalf("greet: %v", err)
	}

	select {
	case <-speaker:
	case <-time.After(2 * time.Second):
		t.Fatal("no greeting audio produced")
	}

	reqs := fllm.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 LLM request, got %d", len(reqs))
	}
	if reqs[0].Messages[0].Role != llm.RoleSystem {
		t.Error("greeting must include the persona system prompt")
	}
}

func TestInterruptStopsPlayback(t *testing.T) {
	mic := make(chan *rtc.AudioFrame)
	speaker := make(chan *rtc.AudioFrame) // unbuffered so playback blocks

	ftts := fakettts.New()
	ftts.FramesPerChar = 50

	s, err := New(Config{
		STT:        fakestt.New("unused"),
		TTS:        ftts,
		LLM:        fakellm.New("A very long answer."),
		VAD:        fakevad.New(),
		MicIn:      mic,
		SpeakerOut: speaker,
		Options: Options{
			Instructions:       "Talk a lot.",
			AllowInterruptions: true,
		},
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	if err := s.Greet(context.Background()); err != nil {
		t.Fatalf("greet: %v", err)
	}
	if s.State() != StateSpeaking {
		t.Fatalf("expected Speaking, got %s", s.State())
	}

	// Drain a few frames, then barge in.
	for i := 0; i < 3; i++ {
		select {
		case <-speaker:
		case <-time.After(2 * time.Second):
			t.Fatal("playback never started")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = s.Start(ctx, testJob(t)) }()

	s.Interrupt()
	waitForState(t, s, StateListening)

	// Playback must stop: no more frames after the interrupt settles.
	time.Sleep(50 * time.Millisecond)
	select {
	case <-speaker:
		t.Error("frame delivered after interruption")
	default:
	}
}

func TestCompletedPlaybackClearsResumeState(t *testing.T) {
	mic := make(chan *rtc.AudioFrame)
	speaker := make(chan *rtc.AudioFrame, 256)

	s, err := New(Config{
		STT:        fakestt.New("unused"),
		TTS:        fakettts.New(),
		LLM:        fakellm.New("Short answer."),
		VAD:        fakevad.New(),
		MicIn:      mic,
		SpeakerOut: speaker,
		Options: Options{
			Instructions:             "Be brief.",
			AllowInterruptions:       true,
			ResumeFalseInterruption:  true,
			FalseInterruptionTimeout: 50 * time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, testJob(t)) }()

	if err := s.Greet(ctx); err != nil {
		t.Fatalf("greet: %v", err)
	}
	for i := 0; i < len("Short answer."); i++ {
		select {
		case <-speaker:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d frames spoken", i)
		}
	}
	waitForState(t, s, StateIdle)

	// Let the run loop observe the completed playback before stopping.
	time.Sleep(100 * time.Millisecond)
	s.Close()
	if err := <-done; err != nil && err != context.Canceled {
		t.Fatalf("run loop error: %v", err)
	}

	if s.interruptedText != "" {
		t.Errorf("finished utterance must not be resumable, still holds %q", s.interruptedText)
	}
	if s.resumeC != nil {
		t.Error("no resume timer must be pending after natural completion")
	}
}

func TestOptionsFromSnapshot(t *testing.T) {
	snap := &job.AgentConfigSnapshot{
		Instructions:             "Persona.",
		LLMTemperature:           0.3,
		LLMMaxTokens:             256,
		STTLanguage:              "en",
		TTSVoice:                 "rachel",
		AllowInterruptions:       true,
		ResumeFalseInterruption:  true,
		FalseInterruptionTimeout: 2000,
		TargetLatency:            1000,
	}
	opts := OptionsFromSnapshot(snap)

	if opts.Instructions != "Persona." || opts.MaxTokens != 256 {
		t.Errorf("basic fields not mapped: %+v", opts)
	}
	if opts.FalseInterruptionTimeout != 2*time.Second {
		t.Errorf("timeout not converted: %v", opts.FalseInterruptionTimeout)
	}
	if opts.TargetLatency != time.Second {
		t.Errorf("target latency not converted: %v", opts.TargetLatency)
	}
}
