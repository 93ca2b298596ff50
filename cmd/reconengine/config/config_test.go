package config

import (
	"testing"

	"accounting-reconciliation-engine/internal/reporter"
)

func TestCreateMatcherConfig(t *testing.T) {
	tests := []struct {
		profile  string
		wantDays int
		wantErr  bool
	}{
		{"", 7, false},
		{"default", 7, false},
		{"strict", 3, false},
		{"relaxed", 21, false},
		{"aggressive", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.profile, func(t *testing.T) {
			got, err := CreateMatcherConfig(tt.profile)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CreateMatcherConfig(%q) error = %v, wantErr %v", tt.profile, err, tt.wantErr)
			}
			if err == nil && got.DateWindowDays != tt.wantDays {
				t.Errorf("Expected %d day window for %q, got %d", tt.wantDays, tt.profile, got.DateWindowDays)
			}
		})
	}
}

func TestCreateReconcilerConfig(t *testing.T) {
	config := CreateReconcilerConfig(0, 0)
	if config.BatchLimit != 1000 || config.Workers != 4 {
		t.Errorf("Expected defaults to survive zero overrides, got %+v", config)
	}

	config = CreateReconcilerConfig(50, 8)
	if config.BatchLimit != 50 || config.Workers != 8 {
		t.Errorf("Expected CLI overrides applied, got %+v", config)
	}
}

func TestCreateReportConfig(t *testing.T) {
	config, err := CreateReportConfig("")
	if err != nil {
		t.Fatalf("CreateReportConfig failed: %v", err)
	}
	if config.Format != reporter.FormatConsole {
		t.Errorf("Expected console default, got %s", config.Format)
	}

	config, err = CreateReportConfig("csv")
	if err != nil {
		t.Fatalf("CreateReportConfig failed: %v", err)
	}
	if config.Format != reporter.FormatCSV || config.IncludePlaybooks {
		t.Errorf("Expected CSV format without playbooks, got %+v", config)
	}

	if _, err := CreateReportConfig("xml"); err == nil {
		t.Error("Expected an error for an unknown format")
	}
}

func TestCreateFeedConfig(t *testing.T) {
	config := CreateFeedConfig(0)
	if config.MaxErrors != 100 {
		t.Errorf("Expected default error budget 100, got %d", config.MaxErrors)
	}

	config = CreateFeedConfig(5)
	if config.MaxErrors != 5 {
		t.Errorf("Expected error budget override 5, got %d", config.MaxErrors)
	}
}
