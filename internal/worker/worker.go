// Package worker maintains a dispatch connection to the LiveKit server:
// it registers the agent pool, answers pings, and turns startJob signals
// into running voice sessions.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/voicedeck/voicedeck/pkg/job"
)

const (
	SignalTypePing     = "ping"
	SignalTypePong     = "pong"
	SignalTypeStartJob = "startJob"
	SignalTypeShutdown = "shutdown"

	CommandTypeRegister    = "register"
	CommandTypeJobAccepted = "jobAccepted"
	CommandTypeJobFailed   = "jobFailed"
)

// JobHandler runs one accepted job to completion.
type JobHandler func(ctx context.Context, j *job.Job) error

type Config struct {
	URL       string
	Token     string
	AgentName string
}

type Worker struct {
	url       string
	token     string
	agentName string
	handler   JobHandler
	wsClient  *WebSocketClient
	logger    *slog.Logger

	in  chan *Signal
	out chan *Command

	mu             sync.RWMutex
	connected      bool
	backoffAttempt int

	jobs sync.WaitGroup
}

func New(cfg Config, handler JobHandler, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		url:       cfg.URL,
		token:     cfg.Token,
		agentName: cfg.AgentName,
		handler:   handler,
		logger:    logger,
		in:        make(chan *Signal, 100),
		out:       make(chan *Command, 100),
		wsClient:  NewWebSocketClient(cfg.URL, cfg.Token, logger),
	}
}

// Run connects and serves until ctx ends, reconnecting with exponential
// backoff on failure.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("starting worker",
		slog.String("url", w.url),
		slog.String("agent_name", w.agentName))

	for {
		select {
		case <-ctx.Done():
			return w.shutdown()
		default:
			if err := w.connectAndRun(ctx); err != nil {
				w.logger.Error("worker connection failed", slog.String("error", err.Error()))
				if err := w.backoffDelay(ctx); err != nil {
					return err
				}
				continue
			}
		}
	}
}

func (w *Worker) connectAndRun(ctx context.Context) error {
	if err := w.wsClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if err := w.wsClient.Close(); err != nil {
			w.logger.Error("close websocket", slog.String("error", err.Error()))
		}
	}()

	w.setConnected(true)
	defer w.setConnected(false)

	// Announce which agent pool this worker serves.
	if err := w.wsClient.WriteCommand(ctx, &Command{
		Type: CommandTypeRegister,
		Data: map[string]any{"agentName": w.agentName},
	}); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	readCtx, readCancel := context.WithCancel(ctx)
	defer readCancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := w.readSignals(readCtx); err != nil {
			errCh <- fmt.Errorf("read signals: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := w.writeCommands(readCtx); err != nil {
			errCh <- fmt.Errorf("write commands: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.processSignals(readCtx)
	}()

	select {
	case err := <-errCh:
		readCancel()
		wg.Wait()
		return err
	case <-ctx.Done():
		readCancel()
		wg.Wait()
		return nil
	}
}

func (w *Worker) readSignals(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			signal, err := w.wsClient.ReadSignal(ctx)
			if err != nil {
				return err
			}
			select {
			case w.in <- signal:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (w *Worker) writeCommands(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-w.out:
			if err := w.wsClient.WriteCommand(ctx, cmd); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) processSignals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case signal := <-w.in:
			w.handleSignal(ctx, signal)
		}
	}
}

func (w *Worker) handleSignal(ctx context.Context, signal *Signal) {
	switch signal.Type {
	case SignalTypePing:
		w.send(ctx, &Command{Type: SignalTypePong, Data: signal.Data})

	case SignalTypeStartJob:
		w.handleStartJob(ctx, signal)

	case SignalTypeShutdown:
		w.logger.Info("received shutdown signal")

	default:
		w.logger.Warn("unknown signal type", slog.String("type", signal.Type))
	}
}

func (w *Worker) handleStartJob(ctx context.Context, signal *Signal) {
	str := func(key string) string {
		s, _ := signal.Data[key].(string)
		return s
	}
	jobID := str("jobId")

	j, err := job.New(ctx, job.Config{
		ID:           jobID,
		RoomName:     str("room"),
		RoomMetadata: str("roomMetadata"),
		Metadata:     str("metadata"),
	})
	if err != nil {
		w.logger.Error("rejecting job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
		w.send(ctx, &Command{
			Type: CommandTypeJobFailed,
			Data: map[string]any{"jobId": jobID, "error": err.Error()},
		})
		return
	}

	w.send(ctx, &Command{
		Type: CommandTypeJobAccepted,
		Data: map[string]any{"jobId": j.ID},
	})

	w.jobs.Add(1)
	go func() {
		defer w.jobs.Done()
		defer j.Shutdown("handler finished")
		if err := w.handler(ctx, j); err != nil {
			w.logger.Error("job failed",
				slog.String("job_id", j.ID),
				slog.String("error", err.Error()))
			w.send(ctx, &Command{
				Type: CommandTypeJobFailed,
				Data: map[string]any{"jobId": j.ID, "error": err.Error()},
			})
		}
	}()
}

func (w *Worker) send(ctx context.Context, cmd *Command) {
	select {
	case w.out <- cmd:
	case <-ctx.Done():
	default:
		w.logger.Warn("command channel full, dropping",
			slog.String("type", cmd.Type))
	}
}

func (w *Worker) backoffDelay(ctx context.Context) error {
	w.mu.Lock()
	w.backoffAttempt++
	attempt := w.backoffAttempt
	w.mu.Unlock()

	// 1s, 2s, 4s, 8s, capped at 10s
	delay := time.Duration(math.Min(math.Pow(2, float64(attempt-1)), 10)) * time.Second
	w.logger.Info("reconnecting with backoff",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) setConnected(connected bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if connected && !w.connected {
		w.backoffAttempt = 0
	}
	w.connected = connected
}

func (w *Worker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

func (w *Worker) shutdown() error {
	w.logger.Info("shutting down worker")

	// Let in-flight sessions wind down before tearing the socket.
	done := make(chan struct{})
	go func() {
		w.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		w.logger.Warn("timed out waiting for jobs")
	}

	if err := w.wsClient.Close(); err != nil {
		return err
	}
	return nil
}
