package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	logLevel, logFormat = "info", "text"
	analyzeRun = 0
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAnalyzeCommand(t *testing.T) {
	color.NoColor = true
	path := filepath.Join(t.TempDir(), "steps.csv")
	log := "global_step,step,mode,phase,draft_length,success,latency_ms,tokens\n" +
		"1,1,fixed_2,steady,2,1,1200,40\n" +
		"2,2,fixed_2,steady,2,1,1000,40\n" +
		"3,1,adaptive,steady,4,1,800,40\n" +
		"4,2,adaptive,load,5,1,900,40\n"
	require.NoError(t, os.WriteFile(path, []byte(log), 0644))

	out, err := execute(t, "analyze", path, "--window", "2", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "fixed_2")
	assert.Contains(t, out, "adaptive: oscillations=1 convergence(k=2)=never")
	assert.Contains(t, out, "Winner: adaptive")
	assert.Contains(t, out, "Run 1 of 1")
}

func TestAnalyzePicksOneRun(t *testing.T) {
	color.NoColor = true
	path := filepath.Join(t.TempDir(), "steps.csv")
	log := "global_step,step,mode,phase,draft_length,success,latency_ms,tokens\n" +
		"1,1,adaptive,steady,4,1,800,40\n" +
		"2,2,adaptive,steady,5,1,700,40\n" +
		"3,3,adaptive,steady,6,1,650,40\n" +
		"1,1,adaptive,steady,4,1,800,40\n" +
		"2,2,adaptive,steady,4,1,810,40\n" +
		"3,3,adaptive,steady,4,1,790,40\n"
	require.NoError(t, os.WriteFile(path, []byte(log), 0644))

	out, err := execute(t, "analyze", path, "--window", "2", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Run 2 of 2")
	assert.Contains(t, out, "adaptive: oscillations=0 convergence(k=2)=step 2")

	out, err = execute(t, "analyze", path, "--window", "2", "--run", "1", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Run 1 of 2")
	assert.Contains(t, out, "adaptive: oscillations=2 convergence(k=2)=never")

	_, err = execute(t, "analyze", path, "--run", "3", "--log-level", "error")
	assert.ErrorContains(t, err, "run 3 not found")
}

func TestAnalyzeMissingLog(t *testing.T) {
	_, err := execute(t, "analyze", filepath.Join(t.TempDir(), "nope.csv"), "--log-level", "error")
	assert.Error(t, err)
}

func TestProbeCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Pong."}}],"usage":{"completion_tokens":2}}`))
	}))
	defer srv.Close()

	out, err := execute(t, "probe", "--url", srv.URL, "--draft-length", "3", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "draft_length: 3")
	assert.Contains(t, out, "success:      true")
	assert.Contains(t, out, "reply:        Pong.")

	_, err = execute(t, "probe", "--url", srv.URL, "--draft-length", "9", "--log-level", "error")
	assert.Error(t, err)
}

func TestUnknownLogFormat(t *testing.T) {
	_, err := execute(t, "probe", "--log-format", "xml")
	assert.Error(t, err)
}
