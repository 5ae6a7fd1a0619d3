// Package job models a single agent assignment: the room to join, the
// metadata channels that carry the agent configuration, and a context
// with coordinated shutdown hooks.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// AssignmentTimeout bounds how long a worker waits for the server to
// confirm a job assignment.
const AssignmentTimeout = 7500 * time.Millisecond

// DefaultTimeout bounds overall job execution when the caller sets none.
const DefaultTimeout = 0 // no limit; sessions end on disconnect or idle

// Config contains options for creating a Job.
type Config struct {
	// ID for the job. Generated when empty.
	ID string

	// RoomName is the LiveKit room to join. Required.
	RoomName string

	// RoomMetadata is the metadata attached to the room at creation.
	RoomMetadata string

	// Metadata is the dispatch-level job metadata.
	Metadata string

	// Timeout for the overall job execution. Zero means no limit.
	Timeout time.Duration
}

// Job is a single agent assignment.
type Job struct {
	ID       string
	RoomName string

	// Instructions is the resolved persona text. Never empty on a
	// successfully constructed Job.
	Instructions string

	// Snapshot holds the agent configuration from room metadata, or
	// nil when the job was dispatched with instructions only.
	Snapshot *AgentConfigSnapshot

	// Context provides lifecycle management and shutdown coordination.
	Context *JobContext

	cancel context.CancelFunc
}

// New creates a Job, resolving the persona from the metadata channels.
// It fails with ErrNoInstructions when neither channel yields one.
func New(parent context.Context, cfg Config) (*Job, error) {
	if cfg.RoomName == "" {
		return nil, fmt.Errorf("room name is required")
	}

	instructions, err := ResolveInstructions(cfg.RoomMetadata, cfg.Metadata)
	if err != nil {
		return nil, err
	}
	snap, _ := ParseSnapshot(cfg.RoomMetadata)

	jobID := cfg.ID
	if jobID == "" {
		jobID = "job_" + ulid.Make().String()
	}

	ctx := parent
	var cancel context.CancelFunc
	if cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, cfg.Timeout)
	}

	j := &Job{
		ID:           jobID,
		RoomName:     cfg.RoomName,
		Instructions: instructions,
		Snapshot:     snap,
		Context:      NewJobContext(ctx),
		cancel:       cancel,
	}

	slog.Info("created job",
		slog.String("job_id", jobID),
		slog.String("room", cfg.RoomName),
		slog.Bool("has_snapshot", snap != nil))

	return j, nil
}

// Shutdown gracefully shuts down the job with the given reason.
func (j *Job) Shutdown(reason string) {
	slog.Info("shutting down job",
		slog.String("job_id", j.ID),
		slog.String("reason", reason))
	j.Context.Shutdown(reason)
	if j.cancel != nil {
		j.cancel()
	}
}

// Wait blocks until the job context is cancelled and returns the
// context error.
func (j *Job) Wait() error {
	<-j.Context.Done()
	return j.Context.Err()
}

// IsActive reports whether the job is still running.
func (j *Job) IsActive() bool {
	return !j.Context.IsShutdown()
}

func (j *Job) String() string {
	status := "active"
	if j.Context.IsShutdown() {
		status = "shutdown"
	}
	return fmt.Sprintf("Job{ID: %s, Room: %s, Status: %s}", j.ID, j.RoomName, status)
}
