package main

import (
	"fmt"
	"os"

	"github.com/skdp/skdp/pkg/metrics"
)

// newLogger sets up the process-wide logger and metrics collector used by
// both serve and dial, grounded on cmd/quantum-vpn/demo.go's
// setupObservability.
func newLogger(level, format string) (*metrics.Logger, error) {
	lvl, err := parseLogLevel(level)
	if err != nil {
		return nil, err
	}
	fmtv, err := parseLogFormat(format)
	if err != nil {
		return nil, err
	}
	logger := metrics.NewLogger(
		metrics.WithOutput(os.Stderr),
		metrics.WithLevel(lvl),
		metrics.WithFormat(fmtv),
		metrics.WithFields(metrics.Fields{"app": "skdpd"}),
	)
	metrics.SetLogger(logger)
	metrics.SetGlobal(metrics.NewCollector(metrics.Labels{"service": "skdpd"}))
	return logger, nil
}

func parseLogLevel(level string) (metrics.Level, error) {
	switch level {
	case "debug":
		return metrics.LevelDebug, nil
	case "info":
		return metrics.LevelInfo, nil
	case "warn", "warning":
		return metrics.LevelWarn, nil
	case "error":
		return metrics.LevelError, nil
	case "silent", "off", "none":
		return metrics.LevelSilent, nil
	default:
		return metrics.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func parseLogFormat(format string) (metrics.Format, error) {
	switch format {
	case "text":
		return metrics.FormatText, nil
	case "json":
		return metrics.FormatJSON, nil
	default:
		return metrics.FormatText, fmt.Errorf("invalid log format: %s", format)
	}
}
