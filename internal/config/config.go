// Package config defines the JSON job file that drives a localization run:
// where records come from, which rules apply, how the detector is tuned, what
// happens to flagged cells and where results go.
//
// Example (trimmed):
//
//	{
//	  "job":      "survey_2024",
//	  "source":   { "kind": "file", "file": { "path": "testdata/survey.csv" } },
//	  "parser":   { "kind": "csv", "options": { "comma": ";" } },
//	  "rules":    { "path": "rules/example.yaml", "tags": ["hard"] },
//	  "detector": { "big_m": 1e6, "tiebreak": "hash", "time_limit": "5s" },
//	  "policy":   "replace",
//	  "storage":  { "kind": "postgres", "db": { "dsn": "...", "table": "public.survey_fixed" } }
//	}
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cast"
)

// Job is the top-level object of a job file.
type Job struct {
	// Job names the run in logs and metrics.
	Job    string `json:"job"`
	Source Source `json:"source"`
	Parser Parser `json:"parser"`
	Rules  Rules  `json:"rules"`

	Detector Detector `json:"detector"`

	// Policy is one of none, remove or replace.
	Policy string `json:"policy"`
	// ApplyDegraded also applies the policy to rows solved within budget only.
	ApplyDegraded bool `json:"apply_degraded"`

	Runtime RuntimeConfig `json:"runtime"`
	Storage Storage       `json:"storage"`
	Output  Output        `json:"output"`
	Metrics Metrics       `json:"metrics"`
}

// Source identifies the data source. Kinds: "file", "http".
type Source struct {
	Kind string     `json:"kind"`
	File SourceFile `json:"file"`
	HTTP SourceHTTP `json:"http"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	Path string `json:"path"`
}

// SourceHTTP holds configuration for the "http" source kind.
type SourceHTTP struct {
	URL                string            `json:"url"`
	Timeout            Duration          `json:"timeout"`
	MaxRetries         int               `json:"max_retries"`
	InsecureSkipVerify bool              `json:"insecure_skip_verify"`
	Headers            map[string]string `json:"headers"`
}

// Parser selects how raw bytes become records. Current kind: "csv".
type Parser struct {
	Kind string `json:"kind"`

	// Options is interpreted by the parser. For CSV:
	//   comma (string), header_map (object), columns (array), strict (bool)
	Options Options `json:"options"`
}

// Rules points at a rule file and optionally restricts it by tag.
type Rules struct {
	Path string   `json:"path"`
	Tags []string `json:"tags"`
}

// Detector tunes the localization model and solver.
type Detector struct {
	BigM     float64            `json:"big_m"`
	Epsilon  float64            `json:"epsilon"`
	TieBreak string             `json:"tiebreak"`
	Seed     int64              `json:"seed"`
	Weights  map[string]float64 `json:"weights"`

	TimeLimit   Duration `json:"time_limit"`
	NodeLimit   int      `json:"node_limit"`
	AlwaysSolve bool     `json:"always_solve"`
}

// RuntimeConfig controls concurrency and batching.
type RuntimeConfig struct {
	Workers       int `json:"workers"`
	BatchSize     int `json:"batch_size"`
	ProgressEvery int `json:"progress_every"`
}

// Storage selects the optional database sink for the corrected dataset.
type Storage struct {
	Kind string   `json:"kind"`
	DB   DBConfig `json:"db"`
}

// Enabled reports whether a storage sink is configured.
func (s Storage) Enabled() bool { return s.Kind != "" }

// DBConfig configures the database sink.
type DBConfig struct {
	DSN string `json:"dsn"`
	// Table may be schema-qualified, e.g. "public.survey_fixed".
	Table string `json:"table"`
	// AutoCreateTable creates the table from the dataset columns when missing.
	AutoCreateTable bool `json:"auto_create_table"`
}

// Output holds file sinks.
type Output struct {
	// CorrectionsCSV receives one line per flagged cell.
	CorrectionsCSV string `json:"corrections_csv"`
	// DatasetCSV receives the dataset after the policy is applied.
	DatasetCSV string `json:"dataset_csv"`
}

// Metrics selects the metrics backend: none, prometheus or datadog.
type Metrics struct {
	Backend        string   `json:"backend"`
	PushgatewayURL string   `json:"pushgateway_url"`
	DatadogAddr    string   `json:"datadog_addr"`
	Namespace      string   `json:"namespace"`
	Tags           []string `json:"tags"`
}

// Load reads and decodes a job file. Unknown keys are rejected so typos
// surface early.
func Load(path string) (Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Decode(b)
}

// Decode decodes a job from JSON.
func Decode(b []byte) (Job, error) {
	var j Job
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&j); err != nil {
		return Job{}, fmt.Errorf("config: decode: %w", err)
	}
	if j.Parser.Options == nil {
		j.Parser.Options = Options{}
	}
	return j, nil
}

// Duration is a time.Duration that decodes from "5s"-style strings or from
// a number of seconds.
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = 0
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("config: duration must be a string or a number of seconds: %s", b)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Options fetches typed values from a free-form JSON object, returning the
// default when a key is absent or of the wrong type.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers arrive as float64.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Float returns the numeric value for key or def. Numeric strings are
// accepted.
func (o Options) Float(key string, def float64) float64 {
	if v, ok := o[key]; ok && v != nil {
		if f, err := cast.ToFloat64E(v); err == nil {
			return f
		}
	}
	return def
}

// Rune returns the first rune of the string value for key, or def.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns the string-valued entries of the object at key. It
// returns an empty map when the key is missing.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

// StringSlice returns the string elements of the array at key, or nil.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// UnmarshalJSON decodes a missing or null object to an empty, non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	var tmp map[string]any
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
