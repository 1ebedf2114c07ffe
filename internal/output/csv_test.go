package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/halospec-bench/internal/model"
)

func sampleRecords() []model.StepRecord {
	return []model.StepRecord{
		{GlobalStep: 1, Step: 1, Mode: "fixed_2", Phase: model.PhaseSteady, DraftLength: 2, Success: true, Latency: 1200 * time.Millisecond, Tokens: 40},
		{GlobalStep: 2, Step: 2, Mode: "fixed_2", Phase: model.PhaseSteady, DraftLength: 2, Success: false},
		{GlobalStep: 3, Step: 1, Mode: "adaptive", Phase: model.PhaseLoad, DraftLength: 1, Success: true, Latency: 900 * time.Millisecond, Tokens: 64},
	}
}

func TestCSVWriterHeaderOnlyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steps.csv")
	recs := sampleRecords()

	w, err := NewCSVWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(recs[0]))
	require.NoError(t, w.Close())

	w, err = NewCSVWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(recs[1]))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"global_step,step,mode,phase,draft_length,success,latency_ms,tokens\n"+
			"1,1,fixed_2,steady,2,1,1200,40\n"+
			"2,2,fixed_2,steady,2,0,0,0\n",
		string(data))
}

func TestCSVWriterOpenFailure(t *testing.T) {
	_, err := NewCSVWriter(filepath.Join(t.TempDir(), "missing", "steps.csv"))
	assert.Error(t, err)
}

func TestReadStepsSkipsRepeatedHeaders(t *testing.T) {
	in := strings.Join([]string{
		"global_step,step,mode,phase,draft_length,success,latency_ms,tokens",
		"1,1,fixed_2,steady,2,1,1200,40",
		"global_step,step,mode,phase,draft_length,success,latency_ms,tokens",
		"2,1,adaptive,load,1,1,900,64",
	}, "\n")

	recs, err := ReadSteps(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "adaptive", recs[1].Mode)
	assert.Equal(t, model.PhaseLoad, recs[1].Phase)
	assert.Equal(t, 900*time.Millisecond, recs[1].Latency)
}

func TestReadStepsRejectsBadRows(t *testing.T) {
	_, err := ReadSteps(strings.NewReader("1,1,fixed_2,steady,nine,1,1200,40\n"))
	assert.ErrorContains(t, err, "draft_length")

	_, err = ReadSteps(strings.NewReader("1,1,fixed_2,steady,12,1,1200,40\n"))
	assert.Error(t, err)

	_, err = ReadSteps(strings.NewReader("1,1,fixed_2,burst,2,1,1200,40\n"))
	assert.ErrorContains(t, err, "phase")

	_, err = ReadSteps(strings.NewReader("1,1,fixed_2\n"))
	assert.Error(t, err)
}

func TestGroupByMode(t *testing.T) {
	results := GroupByMode(sampleRecords())
	require.Len(t, results, 2)
	assert.Equal(t, "fixed_2", results[0].Mode)
	assert.Equal(t, 2, results[0].Steps)
	assert.Equal(t, 1, results[0].Failures)
	assert.Equal(t, "adaptive", results[1].Mode)
	assert.Equal(t, []int{64}, results[1].Tokens)
}

func TestAppendedRunsStaySeparate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steps.csv")
	for run := 0; run < 2; run++ {
		w, err := NewCSVWriter(path)
		require.NoError(t, err)
		for i, d := range []model.DraftLength{4, 5, 6} {
			require.NoError(t, w.Write(model.StepRecord{
				GlobalStep: i + 1, Step: i + 1, Mode: model.AdaptiveModeName, Phase: model.PhaseSteady,
				DraftLength: d, Success: true, Latency: 800 * time.Millisecond, Tokens: 40,
			}))
		}
		require.NoError(t, w.Close())
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := ReadSteps(f)
	require.NoError(t, err)
	require.Len(t, recs, 6)

	runs := SplitRuns(recs)
	require.Len(t, runs, 2)
	for _, run := range runs {
		results := GroupByMode(run)
		require.Len(t, results, 1)
		assert.Equal(t, 3, results[0].Steps)
		s := Summarize(results, 5)
		require.NotNil(t, s.Modes[0].Oscillations)
		assert.Equal(t, 2, *s.Modes[0].Oscillations)
	}

	// Grouping the whole log still keeps each run's steps apart.
	results := GroupByMode(recs)
	require.Len(t, results, 2)
	assert.Equal(t, []model.DraftLength{4, 5, 6}, results[1].DraftLengths)
}

func TestSplitRuns(t *testing.T) {
	assert.Nil(t, SplitRuns(nil))

	recs := []model.StepRecord{{GlobalStep: 1}, {GlobalStep: 2}, {GlobalStep: 1}, {GlobalStep: 1}, {GlobalStep: 2}}
	runs := SplitRuns(recs)
	require.Len(t, runs, 3)
	assert.Len(t, runs[0], 2)
	assert.Len(t, runs[1], 1)
	assert.Len(t, runs[2], 2)
}
