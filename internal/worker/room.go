package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/voicedeck/voicedeck/internal/observability"
	"github.com/voicedeck/voicedeck/pkg/agent"
	"github.com/voicedeck/voicedeck/pkg/audio/pcm"
	"github.com/voicedeck/voicedeck/pkg/job"
	"github.com/voicedeck/voicedeck/pkg/rtc"
)

const (
	// wireRate is the WebRTC opus rate; pipelineRate is what STT and
	// TTS work in. The 3:1 ratio keeps resampling integer.
	wireRate     = 48000
	pipelineRate = 16000
	rateFactor   = wireRate / pipelineRate

	// opus frames are 20ms on the wire
	opusFrameSamples = wireRate / 50

	participantTimeout = 30 * time.Second
)

// RunnerConfig wires the room bridge to a LiveKit deployment.
type RunnerConfig struct {
	URL       string
	APIKey    string
	APISecret string

	Credentials Credentials

	// Metrics is optional; nil disables instrumentation.
	Metrics *observability.Metrics
}

// Runner joins the job's room, bridges room audio to a voice session,
// and runs the conversation until the participant leaves.
type Runner struct {
	cfg RunnerConfig
	log *slog.Logger
}

func NewRunner(cfg RunnerConfig, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{cfg: cfg, log: log}
}

// Handle is the worker's JobHandler.
func (r *Runner) Handle(ctx context.Context, j *job.Job) error {
	log := r.log.With(slog.String("job_id", j.ID), slog.String("room", j.RoomName))

	token, err := r.agentToken(j)
	if err != nil {
		return fmt.Errorf("mint agent token: %w", err)
	}

	micIn := make(chan *rtc.AudioFrame, 256)
	speakerOut := make(chan *rtc.AudioFrame, 256)
	participantJoined := make(chan struct{}, 1)
	participantLeft := make(chan struct{}, 1)

	callback := &lksdk.RoomCallback{
		OnParticipantConnected: func(*lksdk.RemoteParticipant) {
			select {
			case participantJoined <- struct{}{}:
			default:
			}
		},
		OnParticipantDisconnected: func(*lksdk.RemoteParticipant) {
			select {
			case participantLeft <- struct{}{}:
			default:
			}
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if track.Kind() != webrtc.RTPCodecTypeAudio {
					return
				}
				go r.pumpMic(ctx, track, micIn, log)
			},
		},
	}

	room, err := lksdk.ConnectToRoomWithToken(r.cfg.URL, token, callback)
	if err != nil {
		return fmt.Errorf("connect to room: %w", err)
	}
	defer room.Disconnect()
	log.Info("joined room")

	if len(room.GetRemoteParticipants()) == 0 {
		select {
		case <-participantJoined:
		case <-time.After(participantTimeout):
			return fmt.Errorf("no participant joined within %s", participantTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	log.Info("participant present")

	stopPublish, err := r.publishSpeaker(room, speakerOut, log)
	if err != nil {
		return fmt.Errorf("publish audio track: %w", err)
	}
	defer stopPublish()

	snap := sessionSnapshot(j)

	pipeline, err := BuildPipeline(snap, r.cfg.Credentials, r.cfg.Metrics)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	opts := agent.OptionsFromSnapshot(snap)
	opts.SampleRate = pipelineRate
	sess, err := agent.New(agent.Config{
		STT:        pipeline.STT,
		TTS:        pipeline.TTS,
		LLM:        pipeline.LLM,
		VAD:        pipeline.VAD,
		MicIn:      micIn,
		SpeakerOut: speakerOut,
		Options:    opts,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}
	defer sess.Close()

	j.Context.OnShutdown(func(string) { _ = sess.Close() })

	// The participant hears the agent first.
	if err := sess.Greet(ctx); err != nil {
		return fmt.Errorf("greet: %w", err)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if snap.SessionTimeout > 0 {
		sessCtx, cancel = context.WithTimeout(ctx, time.Duration(snap.SessionTimeout)*time.Second)
		defer cancel()
	}
	go func() {
		select {
		case <-participantLeft:
			log.Info("participant left")
			cancel()
		case <-sessCtx.Done():
		}
	}()

	err = sess.Start(sessCtx, j)

	summary := sess.Usage().Summary()
	log.Info("session finished",
		slog.Int("turns", summary.Turns),
		slog.Int("total_tokens", summary.TotalTokens),
		slog.Duration("avg_latency", summary.AvgLatency),
		slog.Duration("duration", summary.Duration))
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.LLMTokens.WithLabelValues("prompt").Add(float64(summary.PromptTokens))
		r.cfg.Metrics.LLMTokens.WithLabelValues("completion").Add(float64(summary.CompletionTokens))
		if summary.Turns > 0 {
			r.cfg.Metrics.ObserveTurnLatency(summary.AvgLatency)
		}
	}

	if err == context.Canceled || err == context.DeadlineExceeded {
		return nil
	}
	return err
}

func (r *Runner) agentToken(j *job.Job) (string, error) {
	at := auth.NewAccessToken(r.cfg.APIKey, r.cfg.APISecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     j.RoomName,
		Agent:    true,
	}
	at.AddGrant(grant).
		SetIdentity("agent-" + j.ID).
		SetValidFor(time.Hour)
	return at.ToJWT()
}

// pumpMic decodes the participant's opus track into pipeline-rate
// frames.
func (r *Runner) pumpMic(ctx context.Context, track *webrtc.TrackRemote, micIn chan<- *rtc.AudioFrame, log *slog.Logger) {
	dec, err := opus.NewDecoder(wireRate, 1)
	if err != nil {
		log.Error("create opus decoder", slog.String("error", err.Error()))
		return
	}

	buf := rtc.NewFrameBuffer(pipelineRate, 1)
	pcmBuf := make([]int16, 5760) // up to 120ms at 48kHz

	for {
		if ctx.Err() != nil {
			return
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if err != io.EOF {
				log.Warn("read rtp", slog.String("error", err.Error()))
			}
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		n, err := dec.Decode(pkt.Payload, pcmBuf)
		if err != nil {
			log.Warn("opus decode", slog.String("error", err.Error()))
			continue
		}

		down := pcm.Downsample(pcmBuf[:n], rateFactor)
		for _, frame := range buf.Write(pcm.ToLE(down)) {
			select {
			case micIn <- frame:
			case <-ctx.Done():
				return
			default:
				// Pipeline is behind; drop rather than stall RTP reads.
			}
		}
	}
}

// publishSpeaker encodes pipeline frames to opus and publishes them as
// the agent's voice track. The returned stop function unpublishes and
// ends the encode loop.
func (r *Runner) publishSpeaker(room *lksdk.Room, speakerOut <-chan *rtc.AudioFrame, log *slog.Logger) (func(), error) {
	enc, err := opus.NewEncoder(wireRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}

	track, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: wireRate,
		Channels:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("create local track: %w", err)
	}

	pub, err := room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   "agent-voice",
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		return nil, fmt.Errorf("publish track: %w", err)
	}

	done := make(chan struct{})
	go func() {
		// Two 10ms pipeline frames make one 20ms opus frame.
		pending := make([]int16, 0, opusFrameSamples)
		opusData := make([]byte, 1500)

		for {
			select {
			case <-done:
				return
			case frame, ok := <-speakerOut:
				if !ok {
					return
				}
				pending = append(pending, pcm.Upsample(pcm.FromLE(frame.Data), rateFactor)...)
				for len(pending) >= opusFrameSamples {
					n, err := enc.Encode(pending[:opusFrameSamples], opusData)
					pending = pending[opusFrameSamples:]
					if err != nil {
						log.Warn("opus encode", slog.String("error", err.Error()))
						continue
					}
					if err := track.WriteSample(media.Sample{
						Data:     append([]byte(nil), opusData[:n]...),
						Duration: 20 * time.Millisecond,
					}, nil); err != nil {
						log.Warn("write sample", slog.String("error", err.Error()))
					}
				}
			}
		}
	}()

	return func() {
		close(done)
		_ = room.LocalParticipant.UnpublishTrack(pub.SID())
	}, nil
}

// sessionSnapshot picks the config driving the session. A room snapshot
// may omit instructions when they came from the job metadata instead,
// so the job's resolved value fills the gap.
func sessionSnapshot(j *job.Job) *job.AgentConfigSnapshot {
	snap := j.Snapshot
	if snap == nil {
		return defaultSnapshot(j.Instructions)
	}
	if snap.Instructions == "" {
		snap.Instructions = j.Instructions
	}
	return snap
}

// defaultSnapshot covers jobs dispatched with instructions only.
func defaultSnapshot(instructions string) *job.AgentConfigSnapshot {
	return &job.AgentConfigSnapshot{
		Instructions:        instructions,
		LLMProvider:         "openai",
		LLMModel:            "gpt-4o-mini",
		LLMTemperature:      0.7,
		LLMMaxTokens:        1000,
		STTProvider:         "deepgram",
		STTModel:            "nova-3",
		STTLanguage:         "en",
		TTSProvider:         "elevenlabs",
		TTSModel:            "eleven_turbo_v2_5",
		TTSVoice:            "rachel",
		TurnDetection:       "server_vad",
		MinEndpointingDelay: 500,
		MaxEndpointingDelay: 6000,
		TargetLatency:       1000,
		SessionTimeout:      600,
	}
}
