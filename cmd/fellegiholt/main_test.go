package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleRules = `rules:
  - name: addition_profit
    tags: [hard]
    expr:
      eq: [profit, {turnover: 1, cost: -1}]
  - name: cost_gt_turnover
    tags: [soft]
    expr:
      ge: [cost, {turnover: 0.6}]
  - name: positive_costs
    tags: [hard]
    expr:
      ge: [cost, 0]
  - name: eligible_for_marriage
    tags: [hard]
    expr:
      implies: [married, {ge: [age, 16]}]
`

const exampleCSV = `profit,cost,turnover,married,age
750,125,200,,
,,,true,15
,,,false,15
,,,true,16
`

// writeJob lays out a job with its rules and data in a temp dir and returns
// the job path and the directory.
func writeJob(t *testing.T, mutate func(map[string]any)) (string, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte(exampleRules), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "survey.csv"), []byte(exampleCSV), 0o644))

	job := map[string]any{
		"job":      "survey",
		"source":   map[string]any{"kind": "file", "file": map[string]any{"path": filepath.Join(dir, "survey.csv")}},
		"parser":   map[string]any{"kind": "csv"},
		"rules":    map[string]any{"path": filepath.Join(dir, "rules.yaml")},
		"detector": map[string]any{"tiebreak": "hash", "time_limit": "10s"},
		"policy":   "replace",
		"runtime":  map[string]any{"workers": 2, "batch_size": 2},
		"storage": map[string]any{"kind": "sqlite", "db": map[string]any{
			"dsn": filepath.Join(dir, "out.db"), "table": "survey_fixed", "auto_create_table": true,
		}},
		"output": map[string]any{
			"corrections_csv": filepath.Join(dir, "corrections.csv"),
			"dataset_csv":     filepath.Join(dir, "fixed.csv"),
		},
	}
	if mutate != nil {
		mutate(job)
	}
	b, err := json.Marshal(job)
	require.NoError(t, err)
	path := filepath.Join(dir, "job.json")
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_EndToEnd(t *testing.T) {
	t.Setenv("METRICS_BACKEND", "none")
	path, dir := writeJob(t, nil)

	out, err := execute(t, "run", "--config", path)
	require.NoError(t, err, out)
	assert.Contains(t, out, "policy replace")
	assert.Contains(t, out, "rows=4 ")
	assert.Contains(t, out, "flagged=2 ")
	assert.Contains(t, out, "failed=0")

	corrections, err := os.ReadFile(filepath.Join(dir, "corrections.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(corrections)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "row,field,original,suggested,degraded", lines[0])
	assert.Equal(t, "2,profit,750,75,false", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "3,"), lines[2])

	fixed, err := os.ReadFile(filepath.Join(dir, "fixed.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(fixed), "2,75,125,200,,")

	_, err = os.Stat(filepath.Join(dir, "out.db"))
	require.NoError(t, err)
}

func TestRun_HTTPSource(t *testing.T) {
	t.Setenv("METRICS_BACKEND", "none")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, exampleCSV)
	}))
	defer srv.Close()

	path, dir := writeJob(t, func(j map[string]any) {
		j["source"] = map[string]any{"kind": "http", "http": map[string]any{"url": srv.URL + "/survey.csv", "timeout": "5s"}}
		delete(j, "storage")
	})

	out, err := execute(t, "run", "--config", path)
	require.NoError(t, err, out)
	assert.Contains(t, out, "flagged=2 ")

	corrections, err := os.ReadFile(filepath.Join(dir, "corrections.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(corrections), "2,profit,750,75,false")
}

func TestRun_InvalidConfig(t *testing.T) {
	path, _ := writeJob(t, func(j map[string]any) { j["policy"] = "drop" })

	_, err := execute(t, "run", "--config", path)
	require.ErrorIs(t, err, errInvalidConfig)
}

func TestValidate(t *testing.T) {
	path, _ := writeJob(t, func(j map[string]any) { j["rules"].(map[string]any)["tags"] = []string{"hard"} })

	out, err := execute(t, "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid: 3 rules")

	path, _ = writeJob(t, func(j map[string]any) { j["source"] = map[string]any{"kind": "file"} })
	_, err = execute(t, "validate", "--config", path)
	require.ErrorIs(t, err, errInvalidConfig)
}

func TestCompile(t *testing.T) {
	_, dir := writeJob(t, nil)

	out, err := execute(t, "compile", "--rules", filepath.Join(dir, "rules.yaml"), "--big-m", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "# addition_profit\naddition_profit_0: profit - turnover + cost == 0\n")
	assert.Contains(t, out, "# eligible_for_marriage\n")
	assert.Contains(t, out, "# fields: [profit turnover cost married age]")

	out, err = execute(t, "compile", "--rules", filepath.Join(dir, "rules.yaml"), "--tags", "soft")
	require.NoError(t, err)
	assert.NotContains(t, out, "addition_profit")
	assert.Contains(t, out, "# cost_gt_turnover")

	_, err = execute(t, "compile", "--rules", filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "  ", "b", "c"))
	assert.Equal(t, "", firstNonEmpty())
}
