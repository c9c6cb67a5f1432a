package config

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/lverweijen/fellegiholt/internal/batch"
	"github.com/lverweijen/fellegiholt/internal/detector"
)

// IssueSeverity is the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the job
// (e.g. "detector.big_m").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// bigMWarn is the BigM above which double precision starts to blur the
// indicator variables.
const bigMWarn = 1e9

// StorageKinds lists the storage kinds the tool ships with.
var StorageKinds = []string{"mssql", "mysql", "postgres", "sqlite"}

// ValidateJob lints j without mutating it.
func ValidateJob(j Job) []Issue {
	var issues []Issue
	if strings.TrimSpace(j.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it labels logs and metrics",
		})
	}
	issues = append(issues, validateSource(j.Source)...)
	issues = append(issues, validateParser(j.Parser)...)
	if strings.TrimSpace(j.Rules.Path) == "" {
		issues = append(issues, Issue{SeverityError, "rules.path", "rules.path must name a YAML or JSON rule file"})
	}
	issues = append(issues, validateDetector(j.Detector)...)
	issues = append(issues, validatePolicy(j)...)
	issues = append(issues, validateRuntime(j.Runtime)...)
	issues = append(issues, validateStorage(j.Storage)...)
	issues = append(issues, validateMetrics(j.Metrics)...)
	return issues
}

func validateSource(s Source) []Issue {
	switch strings.TrimSpace(s.Kind) {
	case "":
		return []Issue{{SeverityError, "source.kind", "source.kind must not be empty"}}
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			return []Issue{{SeverityError, "source.file.path", "file source requires a non-empty path"}}
		}
		return nil
	case "http":
		u, err := url.Parse(strings.TrimSpace(s.HTTP.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return []Issue{{SeverityError, "source.http.url", fmt.Sprintf("http source requires an absolute http(s) url, got %q", s.HTTP.URL)}}
		}
		if s.HTTP.Timeout.D() < 0 {
			return []Issue{{SeverityError, "source.http.timeout", "timeout must not be negative"}}
		}
		if s.HTTP.InsecureSkipVerify {
			return []Issue{{SeverityWarning, "source.http.insecure_skip_verify", "TLS verification is disabled"}}
		}
		return nil
	}
	return []Issue{{SeverityError, "source.kind", fmt.Sprintf("unknown source kind %q (want file or http)", s.Kind)}}
}

func validateParser(p Parser) []Issue {
	switch strings.TrimSpace(p.Kind) {
	case "":
		return []Issue{{SeverityError, "parser.kind", "parser.kind must not be empty"}}
	case "csv":
	default:
		return []Issue{{SeverityError, "parser.kind", fmt.Sprintf("unknown parser kind %q (want csv)", p.Kind)}}
	}

	var issues []Issue
	if c := p.Options.String("comma", ","); utf8.RuneCountInString(c) != 1 || c == "\"" || c == "\n" || c == "\r" {
		issues = append(issues, Issue{SeverityError, "parser.options.comma", fmt.Sprintf("comma must be a single separator character, got %q", c)})
	}
	if v, ok := p.Options["header_map"]; ok {
		if _, isObj := v.(map[string]any); !isObj {
			issues = append(issues, Issue{SeverityError, "parser.options.header_map", "header_map must be an object of header to field name"})
		}
	}
	return issues
}

func validateDetector(d Detector) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, msg string) {
		issues = append(issues, Issue{sev, "detector." + path, msg})
	}

	switch {
	case d.BigM < 0 || math.IsNaN(d.BigM) || math.IsInf(d.BigM, 0):
		add(SeverityError, "big_m", "big_m must be positive and finite (0 selects the default)")
	case d.BigM > bigMWarn:
		add(SeverityWarning, "big_m", fmt.Sprintf("big_m %g is very large; solves slow down and far-off suggestions lose float64 precision", d.BigM))
	}
	if d.Epsilon < 0 || math.IsNaN(d.Epsilon) {
		add(SeverityError, "epsilon", "epsilon must be positive (0 selects the default)")
	}
	if d.BigM > 0 && d.Epsilon > 0 && d.Epsilon >= d.BigM {
		add(SeverityError, "epsilon", "epsilon must be smaller than big_m")
	}
	if _, err := detector.ParseTieBreak(d.TieBreak); err != nil {
		add(SeverityError, "tiebreak", err.Error())
	}

	fields := make([]string, 0, len(d.Weights))
	for f := range d.Weights {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		if w := d.Weights[f]; !(w > 0) || math.IsInf(w, 0) {
			add(SeverityError, "weights."+f, fmt.Sprintf("weight must be positive and finite, got %v", w))
		}
	}

	if d.TimeLimit < 0 {
		add(SeverityError, "time_limit", "time_limit must not be negative")
	}
	if d.NodeLimit < 0 {
		add(SeverityError, "node_limit", "node_limit must not be negative")
	}
	return issues
}

func validatePolicy(j Job) []Issue {
	p, err := batch.ParsePolicy(j.Policy)
	if err != nil {
		return []Issue{{SeverityError, "policy", err.Error()}}
	}
	if p != batch.PolicyNone && !j.Storage.Enabled() && j.Output.DatasetCSV == "" {
		return []Issue{{SeverityWarning, "policy", fmt.Sprintf("policy %q changes the dataset but neither storage nor output.dataset_csv is set", p)}}
	}
	if p == batch.PolicyNone && j.ApplyDegraded {
		return []Issue{{SeverityWarning, "apply_degraded", "apply_degraded has no effect with policy none"}}
	}
	return nil
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.Workers < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.workers", "workers must not be negative"})
	}
	if r.BatchSize < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.batch_size", "batch_size must not be negative"})
	}
	if r.ProgressEvery < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.progress_every", "progress_every must not be negative"})
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	if !s.Enabled() {
		return nil
	}
	known := false
	for _, k := range StorageKinds {
		if s.Kind == k {
			known = true
		}
	}
	var issues []Issue
	if !known {
		issues = append(issues, Issue{SeverityError, "storage.kind", fmt.Sprintf("unknown storage kind %q (want one of %s)", s.Kind, strings.Join(StorageKinds, ", "))})
	}
	if strings.TrimSpace(s.DB.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "storage.db.dsn", "storage requires a dsn"})
	}
	if strings.TrimSpace(s.DB.Table) == "" {
		issues = append(issues, Issue{SeverityError, "storage.db.table", "storage requires a table"})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	switch strings.ToLower(strings.TrimSpace(m.Backend)) {
	case "", "none":
	case "prometheus", "prom", "pushgateway":
		if m.PushgatewayURL == "" {
			return []Issue{{SeverityWarning, "metrics.pushgateway_url", "no pushgateway_url; falling back to PUSHGATEWAY_URL or the local default"}}
		}
	case "datadog", "dd":
	default:
		return []Issue{{SeverityError, "metrics.backend", fmt.Sprintf("unknown metrics backend %q (want none, prometheus or datadog)", m.Backend)}}
	}
	return nil
}
