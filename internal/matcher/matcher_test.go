package matcher

import (
	"math"
	"testing"
	"time"

	"accounting-reconciliation-engine/internal/models"
	engineerrors "accounting-reconciliation-engine/pkg/errors"
)

func TestNewEngine(t *testing.T) {
	engine := NewEngine(nil)
	if engine == nil {
		t.Fatal("Expected engine to be created")
	}
	if engine.config == nil {
		t.Fatal("Expected default config to be set")
	}
	if engine.config.DateWindowDays != 7 {
		t.Errorf("Expected default date window of 7 days, got %d", engine.config.DateWindowDays)
	}

	custom := StrictConfig()
	engine = NewEngine(custom)
	if engine.config.DateWindowDays != 3 {
		t.Errorf("Expected strict date window of 3 days, got %d", engine.config.DateWindowDays)
	}
}

func TestEngine_GetConfigReturnsCopy(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	cfg := engine.GetConfig()
	cfg.DateWindowDays = 99

	if engine.config.DateWindowDays == 99 {
		t.Error("Mutating the returned config should not affect the engine")
	}
}

func TestEngine_UpdateConfig(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	if err := engine.UpdateConfig(RelaxedConfig()); err != nil {
		t.Errorf("Valid config update should succeed: %v", err)
	}
	if engine.config.DateWindowDays != 21 {
		t.Errorf("Expected updated date window of 21 days, got %d", engine.config.DateWindowDays)
	}

	invalid := DefaultConfig()
	invalid.MaxCandidates = 0
	if err := engine.UpdateConfig(invalid); err == nil {
		t.Error("Invalid config update should fail")
	}

	if err := engine.UpdateConfig(nil); err == nil {
		t.Error("Nil config update should fail")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		expectErr bool
	}{
		{"default is valid", func(c *Config) {}, false},
		{"negative date window", func(c *Config) { c.DateWindowDays = -1 }, true},
		{"zero date window allowed", func(c *Config) { c.DateWindowDays = 0 }, false},
		{"negative amount band", func(c *Config) { c.AmountBand = mustDecimal(t, "-5") }, true},
		{"zero max candidates", func(c *Config) { c.MaxCandidates = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestEngine_Score(t *testing.T) {
	engine := NewEngine(nil)
	weights := models.DefaultSignalWeights()

	perfect := models.MatchSignals{Amount: 1, Date: 1, Vendor: 1, SourceConfidence: 1, Description: 1}
	score, err := engine.Score(perfect, weights)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if math.Abs(score-1.0) > 1e-9 {
		t.Errorf("Expected perfect signals to score 1.0, got %f", score)
	}

	zero := models.MatchSignals{}
	score, err = engine.Score(zero, weights)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score != 0 {
		t.Errorf("Expected zero signals to score 0, got %f", score)
	}
}

func TestEngine_ScoreNormalizesWeights(t *testing.T) {
	engine := NewEngine(nil)

	// Weights that sum to 10 instead of 1 must produce the same score.
	inflated := models.SignalWeights{Amount: 3.5, Date: 2.5, Vendor: 1.5, SourceConfidence: 1.0, Description: 1.5}
	signals := models.MatchSignals{Amount: 1, Date: 0.5, Vendor: 0.5, SourceConfidence: 1, Description: 0}

	got, err := engine.Score(signals, inflated)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	want, err := engine.Score(signals, models.DefaultSignalWeights())
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Expected normalized score %f, got %f", want, got)
	}
}

func TestEngine_ScoreZeroWeights(t *testing.T) {
	engine := NewEngine(nil)

	_, err := engine.Score(models.MatchSignals{Amount: 1}, models.SignalWeights{})
	if err == nil {
		t.Fatal("Expected error for all-zero weights")
	}

	engineErr, ok := engineerrors.AsEngineError(err)
	if !ok {
		t.Fatalf("Expected an engine error, got %T", err)
	}
	if engineErr.Category != engineerrors.CategoryConfiguration {
		t.Errorf("Expected configuration category, got %s", engineErr.Category)
	}
	if engineErr.Code != engineerrors.CodeInvalidWeights {
		t.Errorf("Expected invalid weights code, got %s", engineErr.Code)
	}
}

func TestClassify(t *testing.T) {
	thresholds := models.DefaultThresholds(testTenant)

	tests := []struct {
		name       string
		confidence float64
		expected   MatchTier
	}{
		{"well above auto", 0.95, TierAuto},
		{"exactly at auto cutoff", 0.85, TierAuto},
		{"just below auto", 0.8499, TierSuggest},
		{"exactly at suggest cutoff", 0.60, TierSuggest},
		{"just below suggest", 0.5999, TierManual},
		{"exactly at floor", 0.30, TierManual},
		{"just below floor", 0.2999, TierNone},
		{"zero", 0.0, TierNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier := Classify(tt.confidence, thresholds)
			if tier != tt.expected {
				t.Errorf("Classify(%f) = %s, expected %s", tt.confidence, tier, tt.expected)
			}
		})
	}
}

func TestClassifyWithTunedThresholds(t *testing.T) {
	thresholds := models.DefaultThresholds(testTenant)
	thresholds.AutoMatch = 0.80
	thresholds.SuggestMatch = 0.55

	if tier := Classify(0.82, thresholds); tier != TierAuto {
		t.Errorf("Expected lowered auto cutoff to admit 0.82, got %s", tier)
	}
	if tier := Classify(0.56, thresholds); tier != TierSuggest {
		t.Errorf("Expected lowered suggest cutoff to admit 0.56, got %s", tier)
	}
}

func TestMatchTierString(t *testing.T) {
	tests := []struct {
		tier     MatchTier
		expected string
	}{
		{TierAuto, "auto"},
		{TierSuggest, "suggest"},
		{TierManual, "manual"},
		{TierNone, "none"},
		{MatchTier(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.tier.String(); got != tt.expected {
			t.Errorf("MatchTier(%d).String() = %q, expected %q", int(tt.tier), got, tt.expected)
		}
	}
}

func TestMatchTierOrdering(t *testing.T) {
	if !(TierNone < TierManual && TierManual < TierSuggest && TierSuggest < TierAuto) {
		t.Error("Expected tiers ordered none < manual < suggest < auto")
	}
}

func TestMatchTypeFor(t *testing.T) {
	tests := []struct {
		name     string
		signals  models.MatchSignals
		expected models.MatchType
	}{
		{"exact amount and date", models.MatchSignals{Amount: 1.0, Date: 1.0}, models.MatchTypeExact},
		{"exact amount, adjacent day", models.MatchSignals{Amount: 1.0, Date: 0.9}, models.MatchTypeFuzzy},
		{"close amount, same day", models.MatchSignals{Amount: 0.9, Date: 1.0}, models.MatchTypePartial},
		{"close amount, far date", models.MatchSignals{Amount: 0.5, Date: 0.35}, models.MatchTypePartial},
		{"amount scored zero", models.MatchSignals{Amount: 0, Date: 1.0}, models.MatchTypeFuzzy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchTypeFor(tt.signals)
			if got != tt.expected {
				t.Errorf("MatchTypeFor = %s, expected %s", got, tt.expected)
			}
		})
	}
}

func TestEngine_EvaluateAutoMatch(t *testing.T) {
	engine := NewEngine(nil)
	thresholds := models.DefaultThresholds(testTenant)
	day := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

	tx := testTransaction(t, "-1250.00", day, "ACME SUPPLIES")
	doc := testDocument(t, "Acme Supplies Ltd", "", "1250.00", day, 0.95)

	candidate, err := engine.Evaluate(tx, doc.ToMatchableRecord(), thresholds)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	// 0.35 + 0.25 + 0.15*(2/3) + 0.10*0.95 + 0.15*(2/3) = 0.895
	if math.Abs(candidate.Confidence-0.895) > 1e-9 {
		t.Errorf("Expected confidence 0.895, got %f", candidate.Confidence)
	}
	if candidate.Tier != TierAuto {
		t.Errorf("Expected auto tier under default thresholds, got %s", candidate.Tier)
	}
	if candidate.MatchType != models.MatchTypeExact {
		t.Errorf("Expected exact match type, got %s", candidate.MatchType)
	}
	if !candidate.AmountDelta.IsZero() {
		t.Errorf("Expected zero amount delta, got %s", candidate.AmountDelta)
	}
	if candidate.DateDeltaDays != 0 {
		t.Errorf("Expected zero date delta, got %d", candidate.DateDeltaDays)
	}
	if len(candidate.Reasons) == 0 {
		t.Error("Expected match reasons to be generated")
	}
}

func TestEngine_EvaluateStaleDateNeverAuto(t *testing.T) {
	engine := NewEngine(nil)
	thresholds := models.DefaultThresholds(testTenant)
	day := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

	// Identical in every signal except the date, ten days apart. The date
	// signal lands at 0.35, capping confidence at 0.8375 under default
	// weights, so even an otherwise perfect record cannot auto-match.
	tx := testTransaction(t, "-1250.00", day, "Acme Supplies Ltd")
	doc := testDocument(t, "Acme Supplies Ltd", "Acme Supplies Ltd", "1250.00", day.AddDate(0, 0, -10), 1.0)

	candidate, err := engine.Evaluate(tx, doc.ToMatchableRecord(), thresholds)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if math.Abs(candidate.Confidence-0.8375) > 1e-9 {
		t.Errorf("Expected confidence 0.8375, got %f", candidate.Confidence)
	}
	if candidate.Tier == TierAuto {
		t.Error("A ten day old record must never auto-match under default thresholds")
	}
	if candidate.Tier != TierSuggest {
		t.Errorf("Expected suggest tier, got %s", candidate.Tier)
	}
}

func TestEngine_EvaluateZeroWeightsFails(t *testing.T) {
	engine := NewEngine(nil)
	day := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

	thresholds := models.DefaultThresholds(testTenant)
	thresholds.Weights = models.SignalWeights{}

	tx := testTransaction(t, "-50.00", day, "COFFEE CART")
	doc := testDocument(t, "Coffee Cart", "", "50.00", day, 0.9)

	if _, err := engine.Evaluate(tx, doc.ToMatchableRecord(), thresholds); err == nil {
		t.Fatal("Expected configuration error for zero weights")
	}
}

func TestBuildReasons(t *testing.T) {
	tests := []struct {
		name     string
		signals  models.MatchSignals
		contains string
	}{
		{"exact amount", models.MatchSignals{Amount: 1.0}, "Exact amount match"},
		{"close amount", models.MatchSignals{Amount: 0.85}, "Close amount match"},
		{"amount tolerance", models.MatchSignals{Amount: 0.3}, "Amount within tolerance"},
		{"same day", models.MatchSignals{Date: 1.0}, "Same day"},
		{"adjacent day", models.MatchSignals{Date: 0.9}, "Adjacent day"},
		{"within week", models.MatchSignals{Date: 0.5}, "Date within a week"},
		{"strong vendor", models.MatchSignals{Vendor: 0.9}, "Strong vendor match"},
		{"partial vendor", models.MatchSignals{Vendor: 0.5}, "Partial vendor match"},
		{"strong description", models.MatchSignals{Description: 0.9}, "Strong description match"},
		{"low extraction confidence", models.MatchSignals{SourceConfidence: 0.2}, "Low source extraction confidence"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reasons := buildReasons(tt.signals)

			found := false
			for _, reason := range reasons {
				if reason == tt.contains {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("Expected reasons %v to contain %q", reasons, tt.contains)
			}
		})
	}
}

func TestConfigAmountRange(t *testing.T) {
	cfg := DefaultConfig()

	lo, hi := cfg.AmountRange(mustDecimal(t, "-250.00"))
	if !lo.Equal(mustDecimal(t, "150.00")) {
		t.Errorf("Expected lower bound 150.00, got %s", lo)
	}
	if !hi.Equal(mustDecimal(t, "350.00")) {
		t.Errorf("Expected upper bound 350.00, got %s", hi)
	}

	// Small amounts floor the lower bound at zero.
	lo, hi = cfg.AmountRange(mustDecimal(t, "40.00"))
	if !lo.IsZero() {
		t.Errorf("Expected lower bound floored at zero, got %s", lo)
	}
	if !hi.Equal(mustDecimal(t, "140.00")) {
		t.Errorf("Expected upper bound 140.00, got %s", hi)
	}
}

func TestConfigDateRange(t *testing.T) {
	cfg := DefaultConfig()
	day := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

	// A mid-afternoon booking still produces midnight-aligned bounds that
	// cover full calendar days on both edges of the window.
	from, to := cfg.DateRange(day.Add(14 * time.Hour))
	if !from.Equal(day.AddDate(0, 0, -7)) {
		t.Errorf("Expected window start at midnight 7 days earlier, got %s", from)
	}
	if !to.Equal(day.AddDate(0, 0, 8)) {
		t.Errorf("Expected exclusive window end at midnight 8 days later, got %s", to)
	}
}
