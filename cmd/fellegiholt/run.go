package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lverweijen/fellegiholt/internal/batch"
	"github.com/lverweijen/fellegiholt/internal/config"
	"github.com/lverweijen/fellegiholt/internal/datasource"
	"github.com/lverweijen/fellegiholt/internal/datasource/file"
	"github.com/lverweijen/fellegiholt/internal/datasource/httpds"
	"github.com/lverweijen/fellegiholt/internal/detector"
	"github.com/lverweijen/fellegiholt/internal/metrics"
	"github.com/lverweijen/fellegiholt/internal/output"
	csvparser "github.com/lverweijen/fellegiholt/internal/parser/csv"
	"github.com/lverweijen/fellegiholt/internal/record"
	"github.com/lverweijen/fellegiholt/internal/rules"
	"github.com/lverweijen/fellegiholt/internal/storage"
	_ "github.com/lverweijen/fellegiholt/internal/storage/all"
)

// errInvalidConfig is returned when validation finds blocking issues.
var errInvalidConfig = errors.New("configuration is invalid")

func newRunCmd(a *app) *cobra.Command {
	var (
		cfgPath string
		mf      metricsFlags
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Locate errors in a dataset and apply the job's correction policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, cmd.OutOrStdout(), cfgPath, mf)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "configs/jobs/example.json", "job config JSON path")
	cmd.Flags().StringVar(&mf.backend, "metrics-backend", "", "metrics backend: none, prometheus or datadog (overrides env METRICS_BACKEND)")
	cmd.Flags().StringVar(&mf.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	cmd.Flags().StringVar(&mf.datadogAddr, "datadog-addr", "", "DogStatsD address (overrides env DD_DOGSTATSD_URL)")
	return cmd
}

// loadJob reads and lints a job file, logging every issue.
func (a *app) loadJob(path string) (config.Job, error) {
	j, err := config.Load(path)
	if err != nil {
		return config.Job{}, err
	}
	issues := config.ValidateJob(j)
	for _, iss := range issues {
		if iss.Severity == config.SeverityError {
			a.logger.Error("config: "+iss.Message, zap.String("path", iss.Path))
		} else {
			a.logger.Warn("config: "+iss.Message, zap.String("path", iss.Path))
		}
	}
	if config.HasErrors(issues) {
		return j, fmt.Errorf("%s: %w", path, errInvalidConfig)
	}
	return j, nil
}

// newDetector loads the job's rules and compiles them.
func (a *app) newDetector(j config.Job) (*detector.Detector, error) {
	rs, err := rules.DecodeFile(j.Rules.Path)
	if err != nil {
		return nil, err
	}
	d, err := detector.New(rs, detectorOptions(j, a.logger))
	if err != nil {
		return nil, err
	}
	for _, dg := range d.Diagnostics() {
		a.logger.Warn("rules: skipped", zap.String("rule", dg.Rule), zap.Error(dg.Err))
	}
	if len(d.Rules()) == 0 {
		return nil, fmt.Errorf("%s: no usable rules", j.Rules.Path)
	}
	return d, nil
}

func detectorOptions(j config.Job, log *zap.Logger) detector.Options {
	dc := j.Detector
	return detector.Options{
		BigM:        dc.BigM,
		Epsilon:     dc.Epsilon,
		TieBreak:    detector.TieBreak(dc.TieBreak),
		Seed:        dc.Seed,
		Weights:     dc.Weights,
		Tags:        j.Rules.Tags,
		TimeLimit:   dc.TimeLimit.D(),
		NodeLimit:   dc.NodeLimit,
		AlwaysSolve: dc.AlwaysSolve,
		Logger:      log,
	}
}

// openSource builds the job's data source and a name for messages.
func openSource(s config.Source) (datasource.Source, string) {
	if s.Kind == "http" {
		h := make(http.Header, len(s.HTTP.Headers))
		for k, v := range s.HTTP.Headers {
			h.Set(k, v)
		}
		return httpds.New(s.HTTP.URL, httpds.Config{
			Timeout:            s.HTTP.Timeout.D(),
			MaxRetries:         s.HTTP.MaxRetries,
			InsecureSkipVerify: s.HTTP.InsecureSkipVerify,
			Headers:            h,
		}), s.HTTP.URL
	}
	return file.NewLocal(s.File.Path), s.File.Path
}

// readDataset opens the job's source and parses it.
func (a *app) readDataset(ctx context.Context, j config.Job) (*record.Dataset, error) {
	start := time.Now()
	src, name := openSource(j.Source)
	rc, err := src.Open(ctx)
	if err != nil {
		metrics.RecordStep(j.Job, "read", err, time.Since(start))
		return nil, err
	}
	defer rc.Close()

	ds, _, err := csvparser.NewReader(csvparser.OptionsFrom(j.Parser.Options), a.logger).ReadDataset(ctx, rc)
	metrics.RecordStep(j.Job, "read", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	metrics.RecordRow(j.Job, "read", int64(ds.Len()))
	return ds, nil
}

func (a *app) run(ctx context.Context, out io.Writer, cfgPath string, mf metricsFlags) error {
	j, err := a.loadJob(cfgPath)
	if err != nil {
		return err
	}
	flush := setupMetrics(mf, j.Job, j.Metrics, a.logger)
	defer flush()

	d, err := a.newDetector(j)
	if err != nil {
		return err
	}
	ds, err := a.readDataset(ctx, j)
	if err != nil {
		return err
	}
	original := ds.Clone()

	res, err := batch.Run(ctx, d, ds, batch.Options{
		Policy:        batch.Policy(j.Policy),
		Workers:       j.Runtime.Workers,
		ApplyDegraded: j.ApplyDegraded,
		Job:           j.Job,
		ProgressEvery: j.Runtime.ProgressEvery,
		Logger:        a.logger,
	})
	if err != nil {
		return err
	}
	if err := a.writeOutputs(ctx, j, res, original); err != nil {
		return err
	}
	printSummary(out, res)
	return nil
}

func (a *app) writeOutputs(ctx context.Context, j config.Job, res *batch.Result, original *record.Dataset) error {
	if p := j.Output.CorrectionsCSV; p != "" {
		cs := res.Corrections(original)
		if err := output.ToFile(p, func(w io.Writer) error { return output.WriteCorrections(w, cs) }); err != nil {
			return err
		}
		a.logger.Info("output: corrections written", zap.String("path", p), zap.Int("cells", len(cs)))
	}
	if p := j.Output.DatasetCSV; p != "" {
		if err := output.ToFile(p, func(w io.Writer) error { return output.WriteDatasetCSV(w, res.Dataset) }); err != nil {
			return err
		}
		a.logger.Info("output: dataset written", zap.String("path", p))
	}
	if !j.Storage.Enabled() {
		return nil
	}

	repo, err := storage.New(ctx, storage.Config{
		Kind:    j.Storage.Kind,
		DSN:     j.Storage.DB.DSN,
		Table:   j.Storage.DB.Table,
		Columns: res.Dataset.Columns,
	})
	if err != nil {
		return err
	}
	defer repo.Close()
	_, err = output.Store(ctx, repo, res.Dataset, output.StoreOptions{
		Kind:       j.Storage.Kind,
		Table:      j.Storage.DB.Table,
		AutoCreate: j.Storage.DB.AutoCreateTable,
		BatchSize:  j.Runtime.BatchSize,
		Job:        j.Job,
		Logger:     a.logger,
	})
	return err
}

func printSummary(w io.Writer, res *batch.Result) {
	s := res.Stats
	fmt.Fprintf(w, "run %s (policy %s)\n", res.RunID, res.Policy)
	fmt.Fprintf(w, "rows=%d consistent=%d flagged=%d flagged_cells=%d degraded=%d failed=%d elapsed=%s\n",
		s.Rows, s.Consistent, s.Flagged, s.FlaggedCells, s.Degraded, s.Failed, s.Elapsed.Truncate(time.Millisecond))
	for _, f := range res.Failures() {
		fmt.Fprintf(w, "failed: %v\n", f.Err)
	}
}
