package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampDraftLength(t *testing.T) {
	assert.Equal(t, MinDraftLength, ClampDraftLength(-3))
	assert.Equal(t, MinDraftLength, ClampDraftLength(0))
	assert.Equal(t, DraftLength(5), ClampDraftLength(5))
	assert.Equal(t, MaxDraftLength, ClampDraftLength(12))
	assert.True(t, DraftLength(8).Valid())
	assert.False(t, DraftLength(9).Valid())
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase("load")
	require.NoError(t, err)
	assert.Equal(t, PhaseLoad, p)

	p, err = ParsePhase("")
	require.NoError(t, err)
	assert.Equal(t, PhaseSteady, p)

	_, err = ParsePhase("burst")
	assert.Error(t, err)
}

func TestResultBuilderKeepsLatenciesAlignedWithTokens(t *testing.T) {
	b := NewResultBuilder("adaptive")
	b.Add(StepRecord{Step: 1, DraftLength: 4, Success: true, Latency: 100 * time.Millisecond, Tokens: 10, Phase: PhaseSteady})
	b.Add(StepRecord{Step: 2, DraftLength: 5, Success: false})
	b.Add(StepRecord{Step: 3, DraftLength: 1, Success: true, Latency: 300 * time.Millisecond, Tokens: 30, Phase: PhaseLoad})

	res := b.Build()
	assert.Equal(t, "adaptive", res.Mode)
	assert.Equal(t, 3, res.Steps)
	assert.Equal(t, 2, res.Successes)
	assert.Equal(t, 1, res.Failures)
	assert.Len(t, res.Latencies, len(res.Tokens))
	assert.LessOrEqual(t, len(res.Latencies), res.Steps)
	assert.Equal(t, []int{10, 30}, res.Tokens)
	assert.Equal(t, []DraftLength{4, 5, 1}, res.DraftLengths)
	assert.InDelta(t, 2.0/3.0, res.SuccessRate(), 1e-9)
	assert.Equal(t, []time.Duration{300 * time.Millisecond}, res.LatenciesFor(PhaseLoad))
}
