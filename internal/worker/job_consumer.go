package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"redditfit/features/job"
	"redditfit/internal/middleware"
)

type JobSubmitter interface {
	Submit(ctx context.Context, p job.Payload) (string, error)
}

// JobConsumer feeds jobs published by other services into the processor.
type JobConsumer struct {
	submitter JobSubmitter
}

func NewJobConsumer(s JobSubmitter) *JobConsumer {
	return &JobConsumer{submitter: s}
}

func (h *JobConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var msg JobSubmission
	err := json.Unmarshal(m.Body, &msg)

	correlationID := msg.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if err != nil {
		slog.ErrorContext(ctx, "invalid message format", "error", err)
		return nil // Don't retry invalid messages
	}

	payload, err := job.DecodePayload(msg.Type, msg.Data)
	if err != nil {
		slog.ErrorContext(ctx, "invalid job submission, dropping", "type", msg.Type, "error", err)
		return nil
	}

	id, err := h.submitter.Submit(ctx, payload)
	if err != nil {
		if errors.Is(err, job.ErrProcessorClosed) {
			// Requeue so another instance picks it up.
			slog.WarnContext(ctx, "processor shut down, requeueing job", "type", msg.Type)
			return err
		}
		slog.ErrorContext(ctx, "failed to submit job", "type", msg.Type, "error", err)
		return nil
	}

	slog.InfoContext(ctx, "job received from queue", "job_id", id, "type", msg.Type)
	return nil
}
