package exceptions

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"accounting-reconciliation-engine/internal/models"
)

func mustDecimal(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("Invalid decimal %q: %v", value, err)
	}
	return d
}

func spendTx(t *testing.T, amount string, dayOffset int, description string) *models.BankTransaction {
	t.Helper()
	base := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)
	return &models.BankTransaction{
		ID:          uuid.New(),
		TenantID:    testTenant,
		AccountID:   "acct-1",
		BookedAt:    base.AddDate(0, 0, dayOffset),
		Amount:      mustDecimal(t, amount),
		Currency:    "USD",
		Description: description,
	}
}

func spendHistory(t *testing.T, amounts ...string) []*models.BankTransaction {
	t.Helper()
	history := make([]*models.BankTransaction, 0, len(amounts))
	for i, amount := range amounts {
		history = append(history, spendTx(t, amount, -i-1, "recurring vendor payment"))
	}
	return history
}

func TestScoreUnusualSpend_CreditsScoreZero(t *testing.T) {
	history := spendHistory(t, "-50.00", "-52.00", "-48.00", "-51.00", "-49.00", "-50.00")

	deposit := spendTx(t, "5000.00", 0, "client payment received")
	if score := ScoreUnusualSpend(deposit, history); score != 0 {
		t.Errorf("Credits must score zero, got %f", score)
	}
}

func TestScoreUnusualSpend_ThinHistoryScoresZero(t *testing.T) {
	history := spendHistory(t, "-50.00", "-52.00", "-48.00")

	tx := spendTx(t, "-5000.00", 0, "very large payment")
	if score := ScoreUnusualSpend(tx, history); score != 0 {
		t.Errorf("Thin history must score zero, got %f", score)
	}
}

func TestScoreUnusualSpend_Scoring(t *testing.T) {
	history := spendHistory(t, "-50.00", "-52.00", "-48.00", "-51.00", "-49.00", "-50.00")

	typical := ScoreUnusualSpend(spendTx(t, "-50.00", 0, "vendor"), history)
	if typical != 0 {
		t.Errorf("A typical spend must score zero, got %f", typical)
	}

	slight := ScoreUnusualSpend(spendTx(t, "-53.00", 0, "vendor"), history)
	if slight < 0 || slight > 0.05 {
		t.Errorf("A slightly raised spend should barely register, got %f", slight)
	}

	raised := ScoreUnusualSpend(spendTx(t, "-55.00", 0, "vendor"), history)
	larger := ScoreUnusualSpend(spendTx(t, "-80.00", 0, "vendor"), history)
	extreme := ScoreUnusualSpend(spendTx(t, "-500.00", 0, "vendor"), history)

	if !(slight < raised && raised < larger) {
		t.Errorf("Scores must grow with the amount: %f, %f, %f", slight, raised, larger)
	}
	if extreme != 1 {
		t.Errorf("An extreme spend must saturate at 1, got %f", extreme)
	}
}

func TestScoreUnusualSpend_FlatHistory(t *testing.T) {
	history := spendHistory(t, "-100.00", "-100.00", "-100.00", "-100.00", "-100.00", "-100.00")

	if score := ScoreUnusualSpend(spendTx(t, "-150.00", 0, "vendor"), history); score != 0 {
		t.Errorf("1.5x the flat baseline must score zero, got %f", score)
	}

	mid := ScoreUnusualSpend(spendTx(t, "-250.00", 0, "vendor"), history)
	if mid <= 0 || mid >= 0.1 {
		t.Errorf("2.5x the flat baseline should score low but nonzero, got %f", mid)
	}

	if score := ScoreUnusualSpend(spendTx(t, "-1000.00", 0, "vendor"), history); score != 1 {
		t.Errorf("10x the flat baseline must saturate at 1, got %f", score)
	}
}

func TestScoreUnusualSpend_IgnoresCreditsAndSelf(t *testing.T) {
	history := spendHistory(t, "-50.00", "-52.00", "-48.00", "-51.00", "-49.00", "-50.00")

	// Large deposits in the history must not inflate the spend baseline.
	history = append(history, spendTx(t, "9000.00", -7, "quarterly revenue"))

	tx := spendTx(t, "-500.00", 0, "vendor")
	// The scored transaction may appear in its own history window.
	history = append(history, tx)

	if score := ScoreUnusualSpend(tx, history); score != 1 {
		t.Errorf("Expected the spend to stay extreme against the debit baseline, got %f", score)
	}
}

func TestDetectDuplicates_GroupsSameCharge(t *testing.T) {
	a := spendTx(t, "-45.90", 0, "ACME SaaS subscription")
	b := spendTx(t, "-45.90", 0, "ACME SaaS subscription")
	c := spendTx(t, "-12.00", 0, "Coffee downtown")

	groups := DetectDuplicates([]*models.BankTransaction{a, b, c})
	if len(groups) != 1 {
		t.Fatalf("Expected 1 duplicate group, got %d", len(groups))
	}

	group := groups[0]
	if len(group.Transactions) != 2 {
		t.Fatalf("Expected a group of 2, got %d", len(group.Transactions))
	}
	if group.Confidence != 1.0 {
		t.Errorf("Identical same-day charges must score 1.0, got %f", group.Confidence)
	}
	if group.Reason == "" {
		t.Error("Expected a populated reason")
	}
}

func TestDetectDuplicates_DateWindow(t *testing.T) {
	near := []*models.BankTransaction{
		spendTx(t, "-45.90", 0, "ACME SaaS subscription"),
		spendTx(t, "-45.90", 2, "ACME SaaS subscription"),
	}
	groups := DetectDuplicates(near)
	if len(groups) != 1 {
		t.Fatalf("Charges 2 days apart should group, got %d groups", len(groups))
	}
	if groups[0].Confidence >= 1.0 {
		t.Errorf("Date drift must lower the confidence, got %f", groups[0].Confidence)
	}

	far := []*models.BankTransaction{
		spendTx(t, "-45.90", 0, "ACME SaaS subscription"),
		spendTx(t, "-45.90", 5, "ACME SaaS subscription"),
	}
	if groups := DetectDuplicates(far); len(groups) != 0 {
		t.Errorf("Charges 5 days apart must not group, got %d groups", len(groups))
	}
}

func TestDetectDuplicates_RequiresSameAccountAndAmount(t *testing.T) {
	otherAccount := spendTx(t, "-45.90", 0, "ACME SaaS subscription")
	otherAccount.AccountID = "acct-2"

	txs := []*models.BankTransaction{
		spendTx(t, "-45.90", 0, "ACME SaaS subscription"),
		otherAccount,
		spendTx(t, "-45.91", 0, "ACME SaaS subscription"),
	}
	if groups := DetectDuplicates(txs); len(groups) != 0 {
		t.Errorf("Different accounts or amounts must not group, got %d groups", len(groups))
	}
}

func TestDetectDuplicates_DescriptionGate(t *testing.T) {
	unrelated := []*models.BankTransaction{
		spendTx(t, "-45.90", 0, "Coffee downtown branch"),
		spendTx(t, "-45.90", 0, "Office rent march installment"),
	}
	if groups := DetectDuplicates(unrelated); len(groups) != 0 {
		t.Errorf("Dissimilar descriptions must not group, got %d groups", len(groups))
	}

	similar := []*models.BankTransaction{
		spendTx(t, "-45.90", 0, "ACME Corp invoice 123"),
		spendTx(t, "-45.90", 0, "ACME Corp invoice 124"),
	}
	if groups := DetectDuplicates(similar); len(groups) != 1 {
		t.Errorf("Similar descriptions should group, got %d groups", len(groups))
	}

	blank := []*models.BankTransaction{
		spendTx(t, "-45.90", 0, ""),
		spendTx(t, "-45.90", 0, ""),
	}
	if groups := DetectDuplicates(blank); len(groups) != 1 {
		t.Errorf("Matching blank descriptions should group, got %d groups", len(groups))
	}
}

func TestDetectDuplicates_GroupsOnlyOnce(t *testing.T) {
	a := spendTx(t, "-45.90", 0, "ACME SaaS subscription")
	b := spendTx(t, "-45.90", 0, "ACME SaaS subscription")
	c := spendTx(t, "-45.90", 0, "ACME SaaS subscription")

	groups := DetectDuplicates([]*models.BankTransaction{a, b, c})
	if len(groups) != 1 {
		t.Fatalf("Expected a single group of 3, got %d groups", len(groups))
	}
	if len(groups[0].Transactions) != 3 {
		t.Errorf("Expected all 3 charges in one group, got %d", len(groups[0].Transactions))
	}
	if groups[0].Confidence != 1.0 {
		t.Errorf("Identical same-day charges must score 1.0, got %f", groups[0].Confidence)
	}
}
