package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// ExportOptions selects where a finished run publishes its metrics. A
// one-shot process cannot be scraped, so the snapshot is either written for
// the node_exporter textfile collector or pushed to a Pushgateway.
type ExportOptions struct {
	TextFile       string
	PushgatewayURL string
	Job            string
}

func (o ExportOptions) Enabled() bool {
	return strings.TrimSpace(o.TextFile) != "" || strings.TrimSpace(o.PushgatewayURL) != ""
}

// ExportMetrics writes and/or pushes the current contents of Registry.
func ExportMetrics(ctx context.Context, opts ExportOptions) error {
	return exportFrom(ctx, Registry, opts)
}

func exportFrom(ctx context.Context, g prometheus.Gatherer, opts ExportOptions) error {
	var errs []error

	if file := strings.TrimSpace(opts.TextFile); file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			errs = append(errs, fmt.Errorf("create metrics directory: %w", err))
		} else if err := prometheus.WriteToTextfile(file, g); err != nil {
			errs = append(errs, fmt.Errorf("write metrics textfile %q: %w", file, err))
		} else {
			slog.Debug("metrics written", "path", file)
		}
	}

	if url := strings.TrimSpace(opts.PushgatewayURL); url != "" {
		job := strings.TrimSpace(opts.Job)
		if job == "" {
			job = instrumentationName
		}
		if err := push.New(url, job).Gatherer(g).PushContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("push metrics to %s: %w", url, err))
		} else {
			slog.Debug("metrics pushed", "url", url, "job", job)
		}
	}

	return errors.Join(errs...)
}
