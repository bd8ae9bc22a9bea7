package ui

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_StageLifecycle(t *testing.T) {
	// Given: a tracker embedding 200 chunks
	p := NewProgressTracker()
	assert.Equal(t, StageLoading, p.Stats().Stage)
	p.SetStage(StageEmbedding, 200)

	// When: half are done
	p.Update(100, "doc-1")

	// Then: progress and document are reported
	s := p.Stats()
	assert.Equal(t, StageEmbedding, s.Stage)
	assert.InDelta(t, 0.5, s.Progress, 1e-9)
	assert.Equal(t, "doc-1", s.Document)

	// And: a new stage resets counters
	p.SetStage(StageIndexing, 10)
	s = p.Stats()
	assert.Zero(t, s.Current)
	assert.Empty(t, s.Document)
	assert.Zero(t, s.ETA)
}

func TestProgressTracker_ProgressIsClamped(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageEmbedding, 10)
	p.Update(15, "")
	assert.Equal(t, 1.0, p.Stats().Progress)

	p.SetStage(StageLoading, 0)
	p.Update(5, "")
	assert.Zero(t, p.Stats().Progress)
}

func TestProgressTracker_Errors(t *testing.T) {
	p := NewProgressTracker()
	p.AddError(ErrorEvent{Document: "a", Err: errors.New("x")})
	p.AddError(ErrorEvent{Document: "b", Err: errors.New("y"), IsWarn: true})

	s := p.Stats()
	assert.Equal(t, 1, s.ErrorCount)
	assert.Equal(t, 1, s.WarnCount)
	assert.Equal(t, "a", p.Errors()[0].Document)
	assert.Equal(t, "b", p.Warnings()[0].Document)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42e9))
	assert.Equal(t, "3m", formatDuration(180e9))
	assert.Equal(t, "3m 5s", formatDuration(185e9))
	assert.Equal(t, "1h 2m", formatDuration(3720e9))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "...tail", truncate("a very long tail", 7))
	assert.Equal(t, "...", truncate("abcdef", 2))
}
