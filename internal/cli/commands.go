package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/eshaffer321/propledger/internal/infrastructure/config"
	"github.com/eshaffer321/propledger/internal/infrastructure/logging"
	"github.com/eshaffer321/propledger/internal/infrastructure/storage"
)

// RunImport imports one bank-feed file and prints the summary to w
func RunImport(ctx context.Context, cfg *config.Config, flags ImportFlags, w io.Writer) error {
	loggingCfg := cfg.Observability.Logging
	if flags.Verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(loggingCfg, logging.SystemImport)

	if flags.AutoPost {
		cfg.Reconciliation.AutoPost = true
	}

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	services, err := NewServices(cfg, store, logger)
	if err != nil {
		return err
	}

	PrintHeader(w, "bank-import", flags.DryRun)
	fmt.Fprintf(w, "File: %s | Account: %s | Lookback: %d days\n\n", flags.File, flags.BankAccountID, flags.LookbackDays)

	result, err := NewImporter(flags.File, services, logger).Import(ctx, flags.Org(), flags.ToImportOptions())
	if err != nil {
		return err
	}
	PrintImportSummary(w, result, flags.DryRun)

	if !flags.DryRun && flags.AutoPost {
		report, err := services.Matching.RepairDanglingState(ctx, flags.Org())
		if err != nil {
			return fmt.Errorf("repair pass failed: %w", err)
		}
		if report.Promoted+report.Demoted > 0 {
			fmt.Fprintf(w, "Repair: Promoted=%d Linked=%d Demoted=%d\n", report.Promoted, report.Linked, report.Demoted)
		}
	}
	return nil
}

// RunReconcile starts or completes a reconciliation session and prints it to w
func RunReconcile(ctx context.Context, cfg *config.Config, flags ReconcileFlags, w io.Writer) error {
	loggingCfg := cfg.Observability.Logging
	if flags.Verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(loggingCfg, logging.SystemRecon)

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	services, err := NewServices(cfg, store, logger)
	if err != nil {
		return err
	}
	recon := services.Reconciliation
	org := flags.Org()

	PrintHeader(w, "reconcile", false)

	sessionID := flags.SessionID
	if sessionID == "" {
		session, err := recon.StartReconciliation(ctx, org, flags.BankAccountID, flags.StatementDate, flags.StatementBalance)
		if err != nil {
			return err
		}
		sessionID = session.ID
		if !flags.Complete {
			PrintSession(w, session)
			fmt.Fprintf(w, "\nComplete with: reconcile -org %s -session %s\n", org.OrganizationID, session.ID)
			return nil
		}
	}

	result, err := recon.CompleteReconciliation(ctx, org, sessionID, flags.Adjustments())
	if err != nil {
		return err
	}
	PrintCompletion(w, result)
	return nil
}
