package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/pkg/logger"
)

func TestCalculateBackoffCapsAtMax(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Second, Max: 5 * time.Second, Multiplier: 2}

	assert.Equal(t, time.Second, cfg.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, cfg.CalculateBackoff(1))
	assert.Equal(t, 4*time.Second, cfg.CalculateBackoff(2))
	assert.Equal(t, 5*time.Second, cfg.CalculateBackoff(3))
	assert.Equal(t, 5*time.Second, cfg.CalculateBackoff(10))
}

func TestJobMessageCarriesRequestContext(t *testing.T) {
	job := entity.NewExtractionJob("book-1", "ch-1", entity.JobTypeChapterExtract)
	job.ID = "job-1"

	ctx := logger.WithContext(context.Background(), logger.RequestIDKey, "req-9")
	msg, err := NewJobMessage(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeChapterExtract, msg.Type)
	assert.Equal(t, map[string]string{"request_id": "req-9"}, msg.Metadata)

	payload, err := msg.JobPayload()
	require.NoError(t, err)
	assert.Equal(t, "job-1", payload.JobID)
	assert.Equal(t, "ch-1", payload.ChapterID)

	restored := msg.Context(context.Background())
	assert.Equal(t, "req-9", restored.Value(logger.RequestIDKey))
	assert.Equal(t, "job-1", restored.Value(logger.JobIDKey))
	assert.Nil(t, restored.Value(logger.TraceIDKey))
}

func TestJobPayloadRequiresJobID(t *testing.T) {
	msg := &Message{ID: "m-1", Payload: []byte(`{"book_id":"b"}`)}
	_, err := msg.JobPayload()
	assert.Error(t, err)

	msg.Payload = []byte(`not json`)
	_, err = msg.JobPayload()
	assert.Error(t, err)
}

func TestDLQStreamName(t *testing.T) {
	assert.Equal(t, "dlq:stream:memory:extraction", StreamExtraction.DLQStream())
}
