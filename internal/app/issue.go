package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/alanyoungcy/bondd/internal/domain"
	"github.com/alanyoungcy/bondd/internal/issuance"
	"github.com/alanyoungcy/bondd/internal/pricing"
)

// IssueArgs is a one-shot issuance request from the command line.
type IssueArgs struct {
	BondID string
	Amount string
	// DryRun validates and prints the plan without submitting.
	DryRun bool
}

// Issue issues one bond from the operator wallet through the same dialog
// flow the desk uses: select, size against collateral, submit. The result is
// written to out.
func (a *App) Issue(ctx context.Context, args IssueArgs, out io.Writer) error {
	deps, err := a.wire(ctx)
	if err != nil {
		return err
	}
	svcs := a.buildServices(deps)
	if svcs.Issuances == nil {
		return errors.New("app: issue: no operator key configured")
	}

	// Prime the catalog from chain so the command works without a worker.
	if _, err := svcs.Catalog.Sync(ctx); err != nil {
		a.logger.WarnContext(ctx, "catalog sync failed, using stored catalog", slog.String("error", err.Error()))
	}
	bonds, err := svcs.Catalog.List(ctx, pricing.DefaultSort)
	if err != nil {
		return fmt.Errorf("app: issue: %w", err)
	}

	wallet := svcs.Issuances.Wallet()
	available, err := svcs.Accounts.Available(ctx, wallet)
	if err != nil {
		return fmt.Errorf("app: issue: %w", err)
	}

	dlg := issuance.NewDialog(bonds, available, svcs.Issuances,
		issuance.WithCloseDelay(a.cfg.Issuance.CloseDelay.Duration),
		issuance.WithLogger(a.logger),
	)
	if err := dlg.Open(); err != nil {
		return fmt.Errorf("app: issue from %s: %w", wallet, err)
	}
	if err := dlg.SelectBond(args.BondID); err != nil {
		return err
	}
	if err := dlg.Proceed(); err != nil {
		return err
	}
	if err := dlg.SetAmount(args.Amount); err != nil {
		return err
	}

	view := dlg.View()
	fmt.Fprintf(out, "wallet     %s\n", wallet)
	fmt.Fprintf(out, "bond       %s (%s)\n", view.Selected.ID, view.Selected.Symbol())
	fmt.Fprintf(out, "amount     %s ETH (max %s)\n", view.Amount, view.MaxAmount)
	if !dlg.CanSubmit() {
		return fmt.Errorf("app: issue: %w", pricing.Validate(view.Amount, view.MaxAmount))
	}
	if args.DryRun {
		fmt.Fprintln(out, "dry run, nothing submitted")
		return nil
	}

	receipt, err := dlg.Submit(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionFailed) {
			fmt.Fprintf(out, "state      %s\n", domain.TxError)
		}
		return err
	}
	fmt.Fprintf(out, "state      %s\n", domain.TxSuccess)
	fmt.Fprintf(out, "tx         %s\n", receipt.TxHash)
	fmt.Fprintf(out, "block      %d\n", receipt.BlockNumber)
	return nil
}
