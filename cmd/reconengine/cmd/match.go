package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"accounting-reconciliation-engine/internal/reconciler"
)

var (
	matchTenant      string
	matchTransaction string
	matchProfile     string
	matchAsJSON      bool
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match a single bank transaction",
	Long: `Match evaluates one bank transaction against the tenant's unreconciled
documents and ledger entries. A candidate above the auto cutoff settles the
transaction immediately; one above the suggest cutoff records a pending
suggestion; anything else opens an exception.

Examples:
  reconengine match --tenant <id> --transaction <id>
  reconengine match --tenant <id> --transaction <id> --json`,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringVar(&matchTenant, "tenant", "", "tenant ID (required)")
	matchCmd.Flags().StringVar(&matchTransaction, "transaction", "", "bank transaction ID (required)")
	matchCmd.Flags().StringVar(&matchProfile, "profile", "default", "matching profile (default, strict, relaxed)")
	matchCmd.Flags().BoolVar(&matchAsJSON, "json", false, "print the outcome as JSON")

	matchCmd.MarkFlagRequired("tenant")
	matchCmd.MarkFlagRequired("transaction")
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	tenantID, err := parseTenant(matchTenant)
	if err != nil {
		return err
	}
	txID, err := parseID("transaction", matchTransaction)
	if err != nil {
		return err
	}

	env, err := newEnvironment(ctx, tenantID, matchProfile, 0, 0)
	if err != nil {
		return err
	}
	defer env.close()

	outcome, err := env.service.MatchTransaction(ctx, tenantID, txID)
	if err != nil {
		return err
	}

	if matchAsJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(outcome)
	}

	printOutcome(outcome)
	return nil
}

func printOutcome(outcome *reconciler.MatchOutcome) {
	fmt.Printf("Transaction: %s\n", outcome.Transaction.ID)
	fmt.Printf("Outcome:     %s\n", outcome.Status)

	if outcome.Match != nil {
		fmt.Printf("\nMatch: %s\n", outcome.Match.ID)
		fmt.Printf("  Status:     %s\n", outcome.Match.Status)
		fmt.Printf("  Confidence: %.3f\n", outcome.Match.Confidence)
		if outcome.Match.Notes != "" {
			fmt.Printf("  Notes:      %s\n", outcome.Match.Notes)
		}
	}

	if len(outcome.Candidates) > 0 {
		fmt.Printf("\nCandidates (%d):\n", len(outcome.Candidates))
		for i, candidate := range outcome.Candidates {
			fmt.Printf("  %d. %s %s  confidence %.3f  tier %s\n",
				i+1, candidate.Record.Kind, candidate.Record.ID, candidate.Confidence, candidate.Tier)
			for _, reason := range candidate.Reasons {
				fmt.Printf("     - %s\n", reason)
			}
		}
	}

	if len(outcome.Exceptions) > 0 {
		fmt.Printf("\nExceptions Opened (%d):\n", len(outcome.Exceptions))
		for _, exc := range outcome.Exceptions {
			fmt.Printf("  [%s] %s: %s\n", exc.Severity, exc.Type, exc.Description)
		}
	}
}
