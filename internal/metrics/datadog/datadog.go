// Package datadog sends localization metrics to a DogStatsD agent.
package datadog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/lverweijen/fellegiholt/internal/metrics"
)

// DefaultNamespace prefixes every metric when Config.Namespace is empty.
const DefaultNamespace = "fellegiholt."

// Config configures the backend.
type Config struct {
	// Addr is "host:port" or "unix:///path/to/socket".
	Addr string
	// Namespace prefixes metric names. A missing trailing dot is added.
	Namespace string
	// GlobalTags are sent with every metric, e.g. "job:survey".
	GlobalTags []string
}

// Backend implements metrics.Backend. Counters become DogStatsD counts and
// duration series become distributions, so per-row solve times aggregate
// server-side across workers and hosts.
type Backend struct {
	client statsd.ClientInterface
}

// NewBackend dials DogStatsD.
//
// Behavior:
//   - cfg.Addr is required. UDP addresses are not checked for a listening
//     agent, so a wrong port only shows as missing metrics.
//   - The namespace defaults to DefaultNamespace and always ends in a dot.
//   - cfg.GlobalTags are attached to every metric by the client.
func NewBackend(cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("datadog: addr is required")
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	if !strings.HasSuffix(ns, ".") {
		ns += "."
	}
	opts := []statsd.Option{statsd.WithNamespace(ns)}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}
	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: new client for %s: %w", cfg.Addr, err)
	}
	return &Backend{client: c}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	_ = b.client.Count(name, int64(delta), tags(labels), 1)
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	if strings.HasSuffix(name, "_seconds") {
		_ = b.client.Distribution(name, value, tags(labels), 1)
		return
	}
	_ = b.client.Histogram(name, value, tags(labels), 1)
}

// Flush closes the client, which sends whatever is still buffered.
//
// After Flush the backend drops further values, so call it once at the end
// of a run.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// tags renders labels as sorted "key:value" tags.
func tags(lbls metrics.Labels) []string {
	if len(lbls) == 0 {
		return nil
	}
	out := make([]string, 0, len(lbls))
	for k, v := range lbls {
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}
