package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/eshaffer321/propledger/internal/application/ingest"
	"github.com/eshaffer321/propledger/internal/domain/money"
	"github.com/eshaffer321/propledger/internal/domain/reconcile"
)

// PrintHeader prints the command header
func PrintHeader(w io.Writer, command string, dryRun bool) {
	mode := "PRODUCTION"
	if dryRun {
		mode = "DRY-RUN"
	}
	fmt.Fprintf(w, "propledger: %s (%s mode)\n", command, mode)
}

// PrintImportSummary prints the import result summary
func PrintImportSummary(w io.Writer, result *ingest.Result, dryRun bool) {
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Source: %s | Fetched=%d Imported=%d Duplicates=%d\n",
		result.Source, result.Fetched, result.Imported, result.Duplicates)

	m := result.Matching
	if m.Processed > 0 {
		fmt.Fprintf(w, "Matching: Rule=%d Fuzzy=%d Posted=%d Unmatched=%d Failed=%d\n",
			m.RuleMatched, m.FuzzyMatched, m.Posted, m.Unmatched, m.Failed)
	}

	if len(result.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, err := range result.Errors {
			fmt.Fprintf(w, "  - %v\n", err)
		}
	}

	if !dryRun && result.Imported > 0 {
		fmt.Fprintln(w, "\nImport completed successfully.")
	}
}

// PrintSession prints a reconciliation session snapshot
func PrintSession(w io.Writer, s *reconcile.Session) {
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Session %s [%s]\n", s.ID, s.Status)
	fmt.Fprintf(w, "Bank account:      %s\n", s.BankAccountID)
	fmt.Fprintf(w, "Statement date:    %s\n", s.StatementDate.Format("2006-01-02"))
	fmt.Fprintf(w, "Statement balance: $%s\n", money.FormatDisplay(s.StatementBalance))
	fmt.Fprintf(w, "Book balance:      $%s\n", money.FormatDisplay(s.BookBalance))
	fmt.Fprintf(w, "Adjusted bank:     $%s\n", money.FormatDisplay(s.AdjustedBankBalance))
	fmt.Fprintf(w, "Variance:          $%s\n", money.FormatDisplay(s.Variance))

	if len(s.OutstandingItems) > 0 {
		fmt.Fprintf(w, "\nOutstanding items (%d):\n", len(s.OutstandingItems))
		for _, item := range s.OutstandingItems {
			label := item.Description
			if item.CheckNumber != "" {
				label = "check #" + item.CheckNumber
			}
			fmt.Fprintf(w, "  %-8s %s  %12s  %s\n",
				item.Kind, item.Date.Format("2006-01-02"), money.FormatDisplay(item.Amount), label)
		}
	}
	fmt.Fprintf(w, "Unreconciled transactions: %d\n", len(s.UnreconciledTransactions))
}

// PrintCompletion prints the outcome of completing a session
func PrintCompletion(w io.Writer, result *reconcile.CompletionResult) {
	PrintSession(w, result.Session)
	if result.Success {
		fmt.Fprintln(w, "\nReconciliation completed: book and bank agree.")
		return
	}
	fmt.Fprintf(w, "\nReconciliation closed with a variance of $%s. Review before the next statement.\n",
		money.FormatDisplay(result.Variance))
}
