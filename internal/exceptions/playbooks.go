package exceptions

import (
	"accounting-reconciliation-engine/internal/models"
)

// playbooks holds the fixed remediation sequence for each exception type.
// Steps are ordered; reviewers work them top to bottom.
var playbooks = map[models.ExceptionType][]models.PlaybookStep{
	models.ExceptionTypeUnmatched: {
		{Step: 1, Action: "review_transaction", Description: "Review the bank transaction's amount, date, and counterparty."},
		{Step: 2, Action: "search_documents", Description: "Search for invoices or receipts near the booking date and amount."},
		{Step: 3, Action: "check_ledger_drift", Description: "Check the ledger for entries with small date or amount differences."},
		{Step: 4, Action: "manual_match_or_annotate", Description: "Manually match the transaction or annotate why no record exists."},
	},
	models.ExceptionTypeDuplicate: {
		{Step: 1, Action: "compare_transactions", Description: "Compare the flagged transactions' dates, references, and descriptions."},
		{Step: 2, Action: "confirm_with_bank", Description: "Confirm against the bank statement whether the charge posted twice."},
		{Step: 3, Action: "resolve_duplicate", Description: "Dismiss if both charges are legitimate, otherwise request a refund and void the duplicate."},
	},
	models.ExceptionTypeMissingDocument: {
		{Step: 1, Action: "request_document", Description: "Request the missing invoice or receipt from the vendor or client."},
		{Step: 2, Action: "upload_and_rematch", Description: "Upload the document and re-run matching for the transaction."},
		{Step: 3, Action: "annotate_if_absent", Description: "Annotate the transaction if no document will be provided."},
	},
	models.ExceptionTypeAmountMismatch: {
		{Step: 1, Action: "compare_amounts", Description: "Compare the bank amount with the document or ledger amount."},
		{Step: 2, Action: "check_fees_and_partials", Description: "Check for bank fees, partial payments, or currency conversion explaining the gap."},
		{Step: 3, Action: "adjust_or_match", Description: "Record an adjustment entry or manually match once the difference is explained."},
		{Step: 4, Action: "escalate_unexplained", Description: "Escalate to the accountant if the difference remains unexplained."},
	},
	models.ExceptionTypeDateMismatch: {
		{Step: 1, Action: "compare_dates", Description: "Compare the booking date with the document issue and due dates."},
		{Step: 2, Action: "check_clearing_delay", Description: "Check for settlement or clearing delays around weekends and holidays."},
		{Step: 3, Action: "match_if_same_payment", Description: "Manually match when both records describe the same underlying payment."},
	},
	models.ExceptionTypeUnusualSpend: {
		{Step: 1, Action: "verify_with_owner", Description: "Verify the expense with the account owner or cardholder."},
		{Step: 2, Action: "check_vendor_history", Description: "Check whether the vendor has been paid before and at what amounts."},
		{Step: 3, Action: "escalate_or_dismiss", Description: "Escalate to the accountant if unverified, otherwise dismiss with notes."},
	},
	models.ExceptionTypeAnomaly: {
		{Step: 1, Action: "review_pattern", Description: "Review the flagged pattern against recent account activity."},
		{Step: 2, Action: "verify_with_owner", Description: "Verify the activity with the account owner."},
		{Step: 3, Action: "escalate_or_dismiss", Description: "Escalate for investigation if unverified, otherwise dismiss with notes."},
	},
}

// PlaybookFor returns the ordered remediation steps for the given exception
// type. Unknown types fall back to the unmatched playbook so no exception is
// ever created without remediation guidance.
func PlaybookFor(excType models.ExceptionType) []models.PlaybookStep {
	steps, ok := playbooks[excType]
	if !ok {
		steps = playbooks[models.ExceptionTypeUnmatched]
	}
	out := make([]models.PlaybookStep, len(steps))
	copy(out, steps)
	return out
}
