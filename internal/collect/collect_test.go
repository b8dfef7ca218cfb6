package collect

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berth-dev/triage/internal/config"
	"github.com/berth-dev/triage/internal/testutil"
)

func TestExtractFailures(t *testing.T) {
	root := "/work/proj"
	code, err := CompileQuery(config.DefaultFailureQuery)
	require.NoError(t, err)

	failures, err := ExtractFailures(code, []byte(testutil.VitestReport(root)), root)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "adds one", failures[0].Title)
	assert.Equal(t, "src/a.test.ts", failures[0].File)
	assert.Equal(t, []string{"AssertionError: expected 2 to be 3"}, failures[0].FailureMessages)
}

func TestExtractFailuresPrefersFullName(t *testing.T) {
	report := `{"testResults":[{"name":"/other/x.test.ts","assertionResults":[
		{"title":"t","fullName":"suite t","status":"failed","failureMessages":["boom"]},
		{"title":"u","status":"failed"}
	]}]}`
	code, err := CompileQuery(config.DefaultFailureQuery)
	require.NoError(t, err)

	failures, err := ExtractFailures(code, []byte(report), "/work/proj")
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, "suite t", failures[0].Title)
	assert.Equal(t, "/other/x.test.ts", failures[0].File, "paths outside root stay absolute")
	assert.Empty(t, failures[1].FailureMessages)
}

func TestExtractFailuresEmptyReport(t *testing.T) {
	code, err := CompileQuery(config.DefaultFailureQuery)
	require.NoError(t, err)

	failures, err := ExtractFailures(code, []byte(`{}`), "/work")
	require.NoError(t, err)
	assert.Empty(t, failures)

	_, err = ExtractFailures(code, []byte(`not json`), "/work")
	assert.Error(t, err)
}

func TestCompileQueryRejectsBadFilter(t *testing.T) {
	_, err := CompileQuery(".testResults[")
	assert.Error(t, err)
	_, err = New(t.TempDir(), Options{Query: "| |"})
	assert.Error(t, err)
}

func TestRunnerIgnoresExitStatus(t *testing.T) {
	dir := testutil.TempProject(t, testutil.VitestProject())
	fixture := filepath.Join(dir, "fixture.json")
	require.NoError(t, os.WriteFile(fixture, []byte(testutil.VitestReport(dir)), 0644))

	r, err := New(dir, Options{
		Command:    "cp fixture.json .triage/report.json; exit 1",
		ReportPath: ".triage/report.json",
		Query:      config.DefaultFailureQuery,
	})
	require.NoError(t, err)

	failures := r.CollectFailures(context.Background())
	require.Len(t, failures, 1)
	assert.Equal(t, "src/a.test.ts", failures[0].File)
}

func TestRunnerMissingReport(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir, Options{
		Command:    "exit 2",
		ReportPath: "report.json",
		Query:      config.DefaultFailureQuery,
	})
	require.NoError(t, err)

	failures, err := r.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestRunnerRemovesStaleReport(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(stale, []byte(testutil.VitestReport(dir)), 0644))

	r, err := New(dir, Options{Command: "true", ReportPath: "report.json", Query: config.DefaultFailureQuery})
	require.NoError(t, err)

	failures, err := r.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestRunnerTimeout(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir, Options{
		Command:    "sleep 5",
		ReportPath: "report.json",
		Query:      config.DefaultFailureQuery,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.Empty(t, r.CollectFailures(ctx))
}
