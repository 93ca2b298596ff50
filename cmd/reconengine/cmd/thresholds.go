package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"accounting-reconciliation-engine/internal/models"
	engineerrors "accounting-reconciliation-engine/pkg/errors"
)

var (
	thresholdsTenant       string
	thresholdsFeedbackFile string
)

var thresholdsCmd = &cobra.Command{
	Use:   "thresholds",
	Short: "Inspect and tune matching thresholds",
	Long: `Thresholds shows a tenant's current matching cutoffs and signal
weights, and applies batches of reviewer feedback to them. Learning moves
the cutoffs in bounded steps and blends the weights toward the signal
profile of accepted matches; it never drifts outside its clamps.

Examples:
  reconengine thresholds show --tenant <id>
  reconengine thresholds learn --tenant <id> --feedback-file decisions.json`,
}

var thresholdsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the tenant's current thresholds",
	RunE:  runThresholdsShow,
}

var thresholdsLearnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Apply a feedback batch to the tenant's thresholds",
	RunE:  runThresholdsLearn,
}

func init() {
	rootCmd.AddCommand(thresholdsCmd)
	thresholdsCmd.AddCommand(thresholdsShowCmd, thresholdsLearnCmd)

	thresholdsCmd.PersistentFlags().StringVar(&thresholdsTenant, "tenant", "", "tenant ID (required)")
	thresholdsCmd.MarkPersistentFlagRequired("tenant")

	thresholdsLearnCmd.Flags().StringVar(&thresholdsFeedbackFile, "feedback-file", "", "JSON file with review decisions (required)")
	thresholdsLearnCmd.MarkFlagRequired("feedback-file")
}

func runThresholdsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	tenantID, err := parseTenant(thresholdsTenant)
	if err != nil {
		return err
	}

	env, err := newEnvironment(ctx, tenantID, "", 0, 0)
	if err != nil {
		return err
	}
	defer env.close()

	current, err := env.thresholds.GetThresholds(ctx, tenantID)
	if err != nil {
		return err
	}

	printThresholds(current)
	return nil
}

func runThresholdsLearn(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	tenantID, err := parseTenant(thresholdsTenant)
	if err != nil {
		return err
	}

	feedback, err := loadFeedback(thresholdsFeedbackFile)
	if err != nil {
		return err
	}

	env, err := newEnvironment(ctx, tenantID, "", 0, 0)
	if err != nil {
		return err
	}
	defer env.close()

	updated, err := env.thresholds.LearnFromFeedback(ctx, tenantID, feedback)
	if err != nil {
		return err
	}

	fmt.Printf("Applied %d review decisions\n\n", len(feedback))
	printThresholds(updated)
	return nil
}

// loadFeedback reads a JSON array of review decisions
func loadFeedback(path string) ([]models.ReviewDecision, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, engineerrors.FileError(engineerrors.CodeFileNotFound, path, err)
		}
		return nil, engineerrors.FileError(engineerrors.CodeFilePermission, path, err)
	}
	defer file.Close()

	var feedback []models.ReviewDecision
	if err := json.NewDecoder(file).Decode(&feedback); err != nil {
		return nil, engineerrors.ParseError(engineerrors.CodeInvalidFormat, path, 0, "", "", err)
	}
	if len(feedback) == 0 {
		return nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "feedback", path,
			fmt.Errorf("feedback file contains no decisions"))
	}

	return feedback, nil
}

func printThresholds(t *models.MatchingThresholds) {
	fmt.Printf("Tenant:        %s\n", t.TenantID)
	fmt.Printf("Auto Match:    %.3f\n", t.AutoMatch)
	fmt.Printf("Suggest Match: %.3f\n", t.SuggestMatch)
	fmt.Printf("Weights:\n")
	fmt.Printf("  Amount:            %.3f\n", t.Weights.Amount)
	fmt.Printf("  Date:              %.3f\n", t.Weights.Date)
	fmt.Printf("  Vendor:            %.3f\n", t.Weights.Vendor)
	fmt.Printf("  Source Confidence: %.3f\n", t.Weights.SourceConfidence)
	fmt.Printf("  Description:       %.3f\n", t.Weights.Description)
	fmt.Printf("Learned From:  %d samples\n", t.LearnedFromSamples)
	if !t.UpdatedAt.IsZero() {
		fmt.Printf("Updated At:    %s\n", t.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
}
