// Package config builds component configurations from CLI flag values.
package config

import (
	"fmt"

	"accounting-reconciliation-engine/internal/feed"
	"accounting-reconciliation-engine/internal/matcher"
	"accounting-reconciliation-engine/internal/reconciler"
	"accounting-reconciliation-engine/internal/reporter"
)

// CreateMatcherConfig returns the candidate search parameters for a named
// profile. Profiles trade window width for candidate volume.
func CreateMatcherConfig(profile string) (*matcher.Config, error) {
	switch profile {
	case "", "default":
		return matcher.DefaultConfig(), nil
	case "strict":
		return matcher.StrictConfig(), nil
	case "relaxed":
		return matcher.RelaxedConfig(), nil
	default:
		return nil, fmt.Errorf("unknown matching profile: %s (use default, strict, or relaxed)", profile)
	}
}

// CreateReconcilerConfig creates a reconciler configuration with CLI overrides
func CreateReconcilerConfig(batchLimit, workers int) *reconciler.Config {
	config := reconciler.DefaultConfig()

	if batchLimit > 0 {
		config.BatchLimit = batchLimit
	}
	if workers > 0 {
		config.Workers = workers
	}

	return config
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()

	switch format {
	case "", "console":
		config.Format = reporter.FormatConsole
	case "json":
		config.Format = reporter.FormatJSON
	case "csv":
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
		// CSV is for spreadsheet triage; playbooks stay in console output.
		config.IncludePlaybooks = false
	default:
		return nil, fmt.Errorf("unknown output format: %s (use console, json, or csv)", format)
	}

	return config, nil
}

// CreateFeedConfig creates the CSV read options used by the seed command
func CreateFeedConfig(maxErrors int) *feed.ReadConfig {
	config := feed.DefaultReadConfig()

	if maxErrors > 0 {
		config.MaxErrors = maxErrors
	}

	return config
}
