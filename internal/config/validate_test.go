package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func validJob() Job {
	return Job{
		Job:    "survey",
		Source: Source{Kind: "file", File: SourceFile{Path: "in.csv"}},
		Parser: Parser{Kind: "csv", Options: Options{}},
		Rules:  Rules{Path: "rules.yaml"},
		Policy: "none",
	}
}

func TestValidateJob_ValidMinimal(t *testing.T) {
	t.Parallel()

	issues := ValidateJob(validJob())
	assert.Empty(t, issues)
	assert.False(t, HasErrors(issues))
}

/*
TestValidateJob_Findings mutates a valid job one field at a time and checks
that each mistake is reported at the right path and severity.
*/
func TestValidateJob_Findings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Job)
		sev    IssueSeverity
		path   string
		msg    string
	}{
		{"missing job", func(j *Job) { j.Job = " " }, SeverityError, "job", "must not be empty"},
		{"missing source kind", func(j *Job) { j.Source.Kind = "" }, SeverityError, "source.kind", "must not be empty"},
		{"unknown source", func(j *Job) { j.Source.Kind = "s3" }, SeverityError, "source.kind", "unknown source kind"},
		{"missing path", func(j *Job) { j.Source.File.Path = "" }, SeverityError, "source.file.path", "non-empty path"},
		{"http without url", func(j *Job) { j.Source.Kind = "http" }, SeverityError, "source.http.url", "absolute http(s) url"},
		{"http relative url", func(j *Job) { j.Source = Source{Kind: "http", HTTP: SourceHTTP{URL: "/data.csv"}} }, SeverityError, "source.http.url", "absolute http(s) url"},
		{"http insecure", func(j *Job) {
			j.Source = Source{Kind: "http", HTTP: SourceHTTP{URL: "https://example.org/d.csv", InsecureSkipVerify: true}}
		}, SeverityWarning, "source.http.insecure_skip_verify", "disabled"},
		{"xml parser", func(j *Job) { j.Parser.Kind = "xml" }, SeverityError, "parser.kind", "unknown parser kind"},
		{"long comma", func(j *Job) { j.Parser.Options["comma"] = ";;" }, SeverityError, "parser.options.comma", "single separator"},
		{"header map type", func(j *Job) { j.Parser.Options["header_map"] = "x" }, SeverityError, "parser.options.header_map", "must be an object"},
		{"missing rules", func(j *Job) { j.Rules.Path = "" }, SeverityError, "rules.path", "rule file"},
		{"negative big_m", func(j *Job) { j.Detector.BigM = -1 }, SeverityError, "detector.big_m", "positive"},
		{"huge big_m", func(j *Job) { j.Detector.BigM = 1e12 }, SeverityWarning, "detector.big_m", "very large"},
		{"epsilon above big_m", func(j *Job) { j.Detector.BigM, j.Detector.Epsilon = 1, 2 }, SeverityError, "detector.epsilon", "smaller than big_m"},
		{"tiebreak", func(j *Job) { j.Detector.TieBreak = "coin" }, SeverityError, "detector.tiebreak", "coin"},
		{"weight", func(j *Job) { j.Detector.Weights = map[string]float64{"age": 0} }, SeverityError, "detector.weights.age", "positive"},
		{"node limit", func(j *Job) { j.Detector.NodeLimit = -1 }, SeverityError, "detector.node_limit", "negative"},
		{"policy", func(j *Job) { j.Policy = "drop" }, SeverityError, "policy", "unknown policy"},
		{"policy without sink", func(j *Job) { j.Policy = "replace" }, SeverityWarning, "policy", "neither storage"},
		{"apply degraded noop", func(j *Job) { j.ApplyDegraded = true }, SeverityWarning, "apply_degraded", "no effect"},
		{"workers", func(j *Job) { j.Runtime.Workers = -2 }, SeverityError, "runtime.workers", "negative"},
		{"storage kind", func(j *Job) { j.Storage = Storage{Kind: "oracle", DB: DBConfig{DSN: "x", Table: "t"}} }, SeverityError, "storage.kind", "unknown storage kind"},
		{"storage dsn", func(j *Job) { j.Storage = Storage{Kind: "postgres", DB: DBConfig{Table: "t"}} }, SeverityError, "storage.db.dsn", "dsn"},
		{"storage table", func(j *Job) { j.Storage = Storage{Kind: "sqlite", DB: DBConfig{DSN: "x"}} }, SeverityError, "storage.db.table", "table"},
		{"metrics backend", func(j *Job) { j.Metrics.Backend = "statsd" }, SeverityError, "metrics.backend", "unknown metrics backend"},
		{"pushgateway url", func(j *Job) { j.Metrics.Backend = "prometheus" }, SeverityWarning, "metrics.pushgateway_url", "PUSHGATEWAY_URL"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			j := validJob()
			j.Parser.Options = Options{}
			tc.mutate(&j)
			issues := ValidateJob(j)
			assert.True(t, hasIssue(t, issues, tc.sev, tc.path, tc.msg), "issues: %+v", issues)
		})
	}
}

func TestIssue_Error(t *testing.T) {
	t.Parallel()

	iss := Issue{Severity: SeverityError, Path: "policy", Message: "bad"}
	assert.Equal(t, "error at policy: bad", iss.Error())
	assert.True(t, HasErrors([]Issue{{Severity: SeverityWarning}, iss}))
}
