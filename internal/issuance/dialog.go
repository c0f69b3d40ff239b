package issuance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondd/internal/domain"
	"github.com/alanyoungcy/bondd/internal/pricing"
)

// DefaultCloseDelay is how long a successful issuance stays on screen before
// the dialog closes itself.
const DefaultCloseDelay = 2 * time.Second

// Step is the page of the dialog.
type Step int

const (
	StepSelectBond Step = 1
	StepAmount     Step = 2
)

// Submitter sends an issuance and blocks until it is confirmed or failed.
type Submitter interface {
	SubmitIssuance(ctx context.Context, req domain.IssuanceRequest) (domain.TxReceipt, error)
}

// View is a read-only snapshot of the dialog.
type View struct {
	Open      bool
	Step      Step
	Bonds     []domain.Bond
	Selected  *domain.Bond
	Amount    decimal.Decimal
	MaxAmount decimal.Decimal
	Available decimal.Decimal
	State     domain.TxState
	Receipt   *domain.TxReceipt
	Err       error
}

// Option configures a Dialog.
type Option func(*Dialog)

// WithCloseDelay overrides DefaultCloseDelay. Zero or less closes the dialog
// as soon as the success is recorded.
func WithCloseDelay(d time.Duration) Option {
	return func(dl *Dialog) { dl.closeDelay = d }
}

// WithLogger sets the dialog logger.
func WithLogger(l *slog.Logger) Option {
	return func(dl *Dialog) { dl.logger = l }
}

// Dialog drives one wallet through bond selection, amount entry and
// submission. Methods are safe for concurrent use; only one submission can be
// in flight at a time.
type Dialog struct {
	mu sync.Mutex

	submitter  Submitter
	available  decimal.Decimal
	bonds      []domain.Bond
	closeDelay time.Duration
	logger     *slog.Logger

	open     bool
	step     Step
	selected *domain.Bond
	amount   decimal.Decimal
	lc       Lifecycle
	receipt  *domain.TxReceipt
	err      error

	closeTimer *time.Timer
	session    uint64
}

// NewDialog builds a dialog over bonds, listed by nearest maturity first,
// sized against the available collateral in ether.
func NewDialog(bonds []domain.Bond, available decimal.Decimal, submitter Submitter, opts ...Option) *Dialog {
	d := &Dialog{
		submitter:  submitter,
		available:  available,
		bonds:      pricing.SortBonds(bonds, pricing.DefaultSort),
		closeDelay: DefaultCloseDelay,
		logger:     slog.Default(),
		step:       StepSelectBond,
	}
	for _, o := range opts {
		o(d)
	}
	d.logger = d.logger.With(slog.String("component", "issuance_dialog"))
	return d
}

// Open shows the dialog. It fails with ErrNoCollateral when nothing can be
// issued.
func (d *Dialog) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !pricing.CanIssue(d.available) {
		return domain.ErrNoCollateral
	}
	d.open = true
	return nil
}

// SelectBond picks the bond to issue.
func (d *Dialog) SelectBond(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lc.State() != domain.TxIdle {
		return d.busyErr()
	}
	for i := range d.bonds {
		if d.bonds[i].ID == id {
			b := d.bonds[i]
			d.selected = &b
			if d.amount.GreaterThan(d.maxLocked()) {
				d.amount = decimal.Zero
			}
			return nil
		}
	}
	return fmt.Errorf("issuance: bond %s: %w", id, domain.ErrNotFound)
}

// Proceed moves to the amount step.
func (d *Dialog) Proceed() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.selected == nil {
		return domain.ErrNoBondSelected
	}
	d.step = StepAmount
	return nil
}

// Back returns to bond selection, keeping the current choice.
func (d *Dialog) Back() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lc.State() == domain.TxLoading {
		return domain.ErrSubmissionInFlight
	}
	d.step = StepSelectBond
	return nil
}

// SetAmount sets the amount of ETH to issue. Zero is accepted and simply
// keeps submission disabled.
func (d *Dialog) SetAmount(raw string) error {
	amount, err := pricing.ParseAmount(raw)
	if err != nil {
		return fmt.Errorf("issuance: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lc.State() != domain.TxIdle {
		return d.busyErr()
	}
	if d.selected == nil {
		return domain.ErrNoBondSelected
	}
	if amount.IsNegative() {
		return domain.ErrNegativeAmount
	}
	if max := d.maxLocked(); amount.GreaterThan(max) {
		return fmt.Errorf("%w: requested %s, max %s", domain.ErrAmountExceedsMargin, amount, max)
	}
	d.amount = amount
	return nil
}

// MaxAmount returns the largest amount issuable for the selected bond.
func (d *Dialog) MaxAmount() decimal.Decimal {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxLocked()
}

// CanSubmit reports whether Submit would be attempted.
func (d *Dialog) CanSubmit() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lc.State() == domain.TxIdle && d.selected != nil &&
		pricing.Validate(d.amount, d.maxLocked()) == nil
}

// Submit issues the selected bond. The lock is released while the submitter
// runs so that View and concurrent Submit calls do not block.
func (d *Dialog) Submit(ctx context.Context) (domain.TxReceipt, error) {
	d.mu.Lock()
	if d.lc.State() != domain.TxIdle {
		err := d.busyErr()
		d.mu.Unlock()
		return domain.TxReceipt{}, err
	}
	if d.selected == nil {
		d.mu.Unlock()
		return domain.TxReceipt{}, domain.ErrNoBondSelected
	}
	req := domain.IssuanceRequest{Bond: *d.selected, Amount: d.amount}
	if err := pricing.ValidateRequest(req, d.available); err != nil {
		d.mu.Unlock()
		return domain.TxReceipt{}, err
	}
	if err := d.lc.Transition(domain.TxLoading); err != nil {
		d.mu.Unlock()
		return domain.TxReceipt{}, err
	}
	d.err = nil
	d.receipt = nil
	session := d.session
	d.mu.Unlock()

	d.logger.InfoContext(ctx, "submitting issuance",
		slog.String("bond_id", req.Bond.ID),
		slog.String("amount", req.Amount.String()),
	)
	receipt, err := d.submitter.SubmitIssuance(ctx, req)
	if err != nil && !errors.Is(err, domain.ErrTransactionFailed) {
		err = fmt.Errorf("%w: %w", domain.ErrTransactionFailed, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		_ = d.lc.Transition(domain.TxError)
		d.err = err
		d.logger.WarnContext(ctx, "issuance failed",
			slog.String("bond_id", req.Bond.ID),
			slog.String("error", err.Error()),
		)
		return domain.TxReceipt{}, err
	}
	_ = d.lc.Transition(domain.TxSuccess)
	d.receipt = &receipt
	d.logger.InfoContext(ctx, "issuance confirmed",
		slog.String("bond_id", req.Bond.ID),
		slog.String("tx_hash", receipt.TxHash),
	)
	d.scheduleClose(session)
	return receipt, nil
}

// TryAgain clears a failure and returns to idle with the bond and amount kept.
func (d *Dialog) TryAgain() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lc.State() != domain.TxError {
		return fmt.Errorf("issuance: try again from %s: %w", d.lc.State(), domain.ErrInvalidTransition)
	}
	d.err = nil
	return d.lc.Transition(domain.TxIdle)
}

// Reset returns to the first step with nothing selected.
func (d *Dialog) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resetLocked()
}

// Close resets and hides the dialog.
func (d *Dialog) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.resetLocked(); err != nil {
		return err
	}
	d.open = false
	return nil
}

// View returns a snapshot of the dialog.
func (d *Dialog) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := View{
		Open:      d.open,
		Step:      d.step,
		Bonds:     d.bonds,
		Amount:    d.amount,
		MaxAmount: d.maxLocked(),
		Available: d.available,
		State:     d.lc.State(),
		Err:       d.err,
	}
	if d.selected != nil {
		b := *d.selected
		v.Selected = &b
	}
	if d.receipt != nil {
		r := *d.receipt
		v.Receipt = &r
	}
	return v
}

func (d *Dialog) maxLocked() decimal.Decimal {
	if d.selected == nil {
		return decimal.Zero
	}
	return pricing.MaxIssuable(d.available, *d.selected)
}

func (d *Dialog) busyErr() error {
	if d.lc.State() == domain.TxLoading {
		return domain.ErrSubmissionInFlight
	}
	return fmt.Errorf("issuance: dialog is %s: %w", d.lc.State(), domain.ErrInvalidTransition)
}

func (d *Dialog) resetLocked() error {
	if d.lc.State() == domain.TxLoading {
		return domain.ErrSubmissionInFlight
	}
	if d.closeTimer != nil {
		d.closeTimer.Stop()
		d.closeTimer = nil
	}
	if d.lc.State() != domain.TxIdle {
		_ = d.lc.Transition(domain.TxIdle)
	}
	d.session++
	d.step = StepSelectBond
	d.selected = nil
	d.amount = decimal.Zero
	d.receipt = nil
	d.err = nil
	return nil
}

func (d *Dialog) scheduleClose(session uint64) {
	if d.closeDelay <= 0 {
		_ = d.resetLocked()
		d.open = false
		return
	}
	d.closeTimer = time.AfterFunc(d.closeDelay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.session != session || d.lc.State() != domain.TxSuccess {
			return
		}
		_ = d.resetLocked()
		d.open = false
	})
}
