package cli

import (
	"flag"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/application/ingest"
	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
	"github.com/eshaffer321/propledger/internal/domain/reconcile"
)

// CommonFlags are shared by every command
type CommonFlags struct {
	ConfigPath     string
	OrganizationID string
	UserID         string
	Verbose        bool
}

func (c *CommonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigPath, "config", "config.yaml", "Configuration file path")
	fs.StringVar(&c.OrganizationID, "org", "", "Organization ID (required)")
	fs.StringVar(&c.UserID, "user", "", "User ID recorded on the organization context")
	fs.BoolVar(&c.Verbose, "verbose", false, "Verbose output")
}

// Org returns the organization context named by the flags
func (c CommonFlags) Org() ledger.OrganizationContext {
	return ledger.OrganizationContext{OrganizationID: c.OrganizationID, UserID: c.UserID}
}

// ImportFlags are the flags of the bank-import command
type ImportFlags struct {
	CommonFlags
	File          string
	BankAccountID string
	LookbackDays  int
	DryRun        bool
	SkipMatching  bool
	AutoPost      bool
}

// ParseImportFlags parses bank-import flags from args
func ParseImportFlags(args []string) (ImportFlags, error) {
	var flags ImportFlags
	fs := flag.NewFlagSet("bank-import", flag.ContinueOnError)
	flags.register(fs)
	fs.StringVar(&flags.File, "file", "", "Bank feed CSV file (required)")
	fs.StringVar(&flags.BankAccountID, "account", "", "Bank account ID the feed belongs to (required)")
	fs.IntVar(&flags.LookbackDays, "days", 0, "Only import transactions from the last N days (0 = all)")
	fs.BoolVar(&flags.DryRun, "dry-run", false, "Count new transactions without storing them")
	fs.BoolVar(&flags.SkipMatching, "skip-matching", false, "Store transactions without matching")
	fs.BoolVar(&flags.AutoPost, "auto-post", false, "Post journal entries for rule matches")
	if err := fs.Parse(args); err != nil {
		return flags, err
	}

	switch {
	case flags.OrganizationID == "":
		return flags, fmt.Errorf("-org is required")
	case flags.File == "":
		return flags, fmt.Errorf("-file is required")
	case flags.BankAccountID == "":
		return flags, fmt.Errorf("-account is required")
	}
	return flags, nil
}

// ToImportOptions converts ImportFlags to ingest.Options
func (f ImportFlags) ToImportOptions() ingest.Options {
	return ingest.Options{
		BankAccountID: f.BankAccountID,
		LookbackDays:  f.LookbackDays,
		DryRun:        f.DryRun,
		SkipMatching:  f.SkipMatching,
	}
}

// ReconcileFlags are the flags of the reconcile command. Without -session a
// new session is started; with -complete it is closed right away.
type ReconcileFlags struct {
	CommonFlags
	BankAccountID    string
	StatementDate    time.Time
	StatementBalance decimal.Decimal
	SessionID        string
	Complete         bool
	BankFee          decimal.Decimal
	Interest         decimal.Decimal
}

// ParseReconcileFlags parses reconcile flags from args
func ParseReconcileFlags(args []string) (ReconcileFlags, error) {
	var flags ReconcileFlags
	var date, balance, fee, interest string
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	flags.register(fs)
	fs.StringVar(&flags.BankAccountID, "account", "", "Bank account to reconcile")
	fs.StringVar(&date, "date", "", "Statement date, YYYY-MM-DD")
	fs.StringVar(&balance, "balance", "", "Statement ending balance")
	fs.StringVar(&flags.SessionID, "session", "", "Complete an existing session instead of starting one")
	fs.BoolVar(&flags.Complete, "complete", false, "Complete the session after starting it")
	fs.StringVar(&fee, "fee", "", "Bank fee to book on completion")
	fs.StringVar(&interest, "interest", "", "Interest earned to book on completion")
	if err := fs.Parse(args); err != nil {
		return flags, err
	}

	if flags.OrganizationID == "" {
		return flags, fmt.Errorf("-org is required")
	}
	var err error
	if flags.BankFee, err = optionalAmount("fee", fee); err != nil {
		return flags, err
	}
	if flags.Interest, err = optionalAmount("interest", interest); err != nil {
		return flags, err
	}
	if flags.SessionID != "" {
		flags.Complete = true
		return flags, nil
	}

	if flags.BankAccountID == "" {
		return flags, fmt.Errorf("-account is required")
	}
	if flags.StatementDate, err = time.Parse("2006-01-02", date); err != nil {
		return flags, fmt.Errorf("-date must be YYYY-MM-DD")
	}
	if flags.StatementBalance, err = money.Parse(balance); err != nil {
		return flags, fmt.Errorf("-balance: %w", err)
	}
	return flags, nil
}

func optionalAmount(name, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := money.Parse(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("-%s: %w", name, err)
	}
	return d, nil
}

// Adjustments returns the completion adjustments named by the flags
func (f ReconcileFlags) Adjustments() []reconcile.Adjustment {
	var adjustments []reconcile.Adjustment
	if !f.BankFee.IsZero() {
		adjustments = append(adjustments, reconcile.Adjustment{
			Type: reconcile.AdjustmentBankFee, Amount: f.BankFee.Abs(), Description: "Bank service fee",
		})
	}
	if !f.Interest.IsZero() {
		adjustments = append(adjustments, reconcile.Adjustment{
			Type: reconcile.AdjustmentInterest, Amount: f.Interest.Abs(), Description: "Interest earned",
		})
	}
	return adjustments
}

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	Port       int
	Verbose    bool
}

// ParseServeFlags parses command line flags for the serve command.
// A zero port keeps the configured one.
func ParseServeFlags(args []string) (*ServeFlags, error) {
	flags := &ServeFlags{}
	fs := flag.NewFlagSet("recon-api", flag.ContinueOnError)
	fs.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file path")
	fs.IntVar(&flags.Port, "port", 0, "Port to listen on")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}
