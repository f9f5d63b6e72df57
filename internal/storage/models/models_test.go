package models

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResumeUUIDForPath_Deterministic(t *testing.T) {
	a := ResumeUUIDForPath("/data/resumes/a.pdf")
	assert.Equal(t, a, ResumeUUIDForPath("/data/resumes/a.pdf"))
	assert.NotEqual(t, a, ResumeUUIDForPath("/data/resumes/b.pdf"))
	assert.Len(t, a, 36)

	r := NewResume("/data/resumes/a.pdf")
	assert.Equal(t, a, r.ResumeUUID)
	assert.False(t, r.Processed)
	assert.Nil(t, r.Embedding)
}

func TestEmbeddingEncoding(t *testing.T) {
	raw, err := EncodeEmbedding([]float64{0.5, -1, 2})
	require.NoError(t, err)
	assert.JSONEq(t, `[0.5,-1,2]`, string(raw))

	back, err := DecodeEmbedding(raw)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -1, 2}, back)

	v, err := DecodeEmbedding(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = DecodeEmbedding([]byte(`{"not":"an array"}`))
	assert.Error(t, err)

	_, err = EncodeEmbedding(nil)
	assert.Error(t, err)
	_, err = EncodeEmbedding([]float64{math.NaN()})
	assert.Error(t, err)
}

func TestOutboxMessage_StateTransitions(t *testing.T) {
	msg := &OutboxMessage{Status: OutboxStatusPending}

	assert.False(t, msg.MarkAttemptFailed(errors.New("broker down"), 2))
	assert.Equal(t, OutboxStatusPending, msg.Status)
	assert.Equal(t, 1, msg.RetryCount)

	assert.True(t, msg.MarkAttemptFailed(errors.New("still down"), 2))
	assert.Equal(t, OutboxStatusFailed, msg.Status)
	assert.Equal(t, "still down", msg.ErrorMessage)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	msg.MarkSent(at)
	assert.Equal(t, OutboxStatusSent, msg.Status)
	assert.Empty(t, msg.ErrorMessage)
	require.NotNil(t, msg.ProcessedAt)
	assert.Equal(t, at, *msg.ProcessedAt)
}
