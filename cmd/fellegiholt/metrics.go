package main

import (
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/lverweijen/fellegiholt/internal/config"
	"github.com/lverweijen/fellegiholt/internal/metrics"
	"github.com/lverweijen/fellegiholt/internal/metrics/datadog"
	"github.com/lverweijen/fellegiholt/internal/metrics/prompush"
)

const defaultPushgatewayURL = "http://localhost:9091"

// metricsFlags are the command line overrides for the job's metrics block.
type metricsFlags struct {
	backend        string
	pushgatewayURL string
	datadogAddr    string
}

// firstNonEmpty returns the first non-blank value.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// setupMetrics installs the metrics backend chosen by flag, then env, then
// job file, and returns a function that flushes it. Backend failures leave
// the nop backend in place.
func setupMetrics(f metricsFlags, job string, m config.Metrics, log *zap.Logger) func() {
	name := strings.ToLower(firstNonEmpty(f.backend, os.Getenv("METRICS_BACKEND"), m.Backend))
	flush := func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics: flush error", zap.Error(err))
		}
	}

	switch name {
	case "prometheus", "prom", "pushgateway":
		url := firstNonEmpty(f.pushgatewayURL, os.Getenv("PUSHGATEWAY_URL"), m.PushgatewayURL, defaultPushgatewayURL)
		b, err := prompush.NewBackend(job, url)
		if err != nil {
			log.Warn("metrics: failed to init prom push backend; using nop", zap.Error(err))
			return func() {}
		}
		log.Info("metrics: enabled", zap.String("backend", "prometheus"), zap.String("url", url), zap.String("job", job))
		metrics.SetBackend(b)
		return flush

	case "datadog", "dd":
		addr := firstNonEmpty(f.datadogAddr, os.Getenv("DD_DOGSTATSD_URL"), m.DatadogAddr)
		tags := append([]string{"job:" + job}, m.Tags...)
		b, err := datadog.NewBackend(datadog.Config{Addr: addr, Namespace: m.Namespace, GlobalTags: tags})
		if err != nil {
			log.Warn("metrics: failed to init datadog backend; using nop", zap.Error(err))
			return func() {}
		}
		log.Info("metrics: enabled", zap.String("backend", "datadog"), zap.String("addr", addr))
		metrics.SetBackend(b)
		return flush

	case "", "none":
		log.Debug("metrics: disabled")
	default:
		log.Warn("metrics: unknown backend; metrics disabled", zap.String("backend", name))
	}
	return func() {}
}
