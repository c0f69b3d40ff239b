package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondd/internal/domain"
	"github.com/alanyoungcy/bondd/internal/issuance"
	"github.com/alanyoungcy/bondd/internal/notify"
	"github.com/alanyoungcy/bondd/internal/pricing"
)

// DefaultConfirmTimeout bounds how long an issuance waits for its receipt.
const DefaultConfirmTimeout = 3 * time.Minute

// CollateralReader returns the free collateral of an address.
type CollateralReader interface {
	Available(ctx context.Context, address string) (decimal.Decimal, error)
}

// IssuanceService issues bonds from the operator wallet. Every attempt is
// recorded and walks idle -> loading -> success|error; one attempt per wallet
// runs at a time, locally and across instances.
type IssuanceService struct {
	catalog        BondLookup
	collateral     CollateralReader
	submitter      domain.BondSubmitter
	store          domain.IssuanceStore
	locks          domain.LockManager
	bus            domain.SignalBus
	audit          domain.AuditStore
	alerts         Alerter
	confirmTimeout time.Duration
	logger         *slog.Logger

	now   func() time.Time
	newID func() string

	mu       sync.Mutex
	inflight map[string]bool
}

// NewIssuanceService creates an IssuanceService. locks, bus, audit and alerts
// may be nil.
func NewIssuanceService(
	catalog BondLookup,
	collateral CollateralReader,
	submitter domain.BondSubmitter,
	store domain.IssuanceStore,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	alerts Alerter,
	confirmTimeout time.Duration,
	logger *slog.Logger,
) *IssuanceService {
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}
	return &IssuanceService{
		catalog:        catalog,
		collateral:     collateral,
		submitter:      submitter,
		store:          store,
		locks:          locks,
		bus:            bus,
		audit:          audit,
		alerts:         alerts,
		confirmTimeout: confirmTimeout,
		logger:         logger.With(slog.String("component", "issuance_service")),
		now:            time.Now,
		newID:          uuid.NewString,
		inflight:       make(map[string]bool),
	}
}

// Wallet is the operator address issuances are made from.
func (s *IssuanceService) Wallet() string { return s.submitter.Address() }

// Issue issues amount ETH of bondID and blocks until the transaction is
// confirmed or fails. A failed submission still returns the recorded
// issuance together with an error wrapping domain.ErrTransactionFailed.
func (s *IssuanceService) Issue(ctx context.Context, bondID string, amount decimal.Decimal) (domain.Issuance, error) {
	iss, _, err := s.issue(ctx, bondID, amount)
	return iss, err
}

// SubmitIssuance issues req through the recorded path and returns the
// confirmed receipt, so the service can back an issuance.Dialog.
func (s *IssuanceService) SubmitIssuance(ctx context.Context, req domain.IssuanceRequest) (domain.TxReceipt, error) {
	_, receipt, err := s.issue(ctx, req.Bond.ID, req.Amount)
	return receipt, err
}

func (s *IssuanceService) issue(ctx context.Context, bondID string, amount decimal.Decimal) (domain.Issuance, domain.TxReceipt, error) {
	bond, err := s.catalog.Get(ctx, bondID)
	if err != nil {
		return domain.Issuance{}, domain.TxReceipt{}, err
	}
	wallet := s.submitter.Address()

	release, err := s.acquire(ctx, wallet)
	if err != nil {
		return domain.Issuance{}, domain.TxReceipt{}, err
	}
	defer release()

	if err := s.validate(ctx, wallet, bond, amount); err != nil {
		return domain.Issuance{}, domain.TxReceipt{}, err
	}

	now := s.now().UTC()
	iss := domain.Issuance{
		ID:        s.newID(),
		BondID:    bond.ID,
		Wallet:    wallet,
		Amount:    amount,
		State:     domain.TxIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, iss); err != nil {
		return domain.Issuance{}, domain.TxReceipt{}, fmt.Errorf("issuance: create: %w", err)
	}
	return s.attempt(ctx, iss, bond)
}

// Retry re-runs a failed issuance with its bond and amount preserved. When
// the failed attempt had already sent a transaction, that transaction is
// looked up first: a mined one settles the issuance without sending again and
// a pending one rejects the retry with ErrSubmissionInFlight.
func (s *IssuanceService) Retry(ctx context.Context, id string) (domain.Issuance, error) {
	iss, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.Issuance{}, fmt.Errorf("issuance: get %s: %w", id, err)
	}
	if iss.State != domain.TxError {
		return domain.Issuance{}, fmt.Errorf("issuance: retry %s in state %s: %w", id, iss.State, domain.ErrInvalidTransition)
	}
	bond, err := s.catalog.Get(ctx, iss.BondID)
	if err != nil {
		return domain.Issuance{}, err
	}

	release, err := s.acquire(ctx, iss.Wallet)
	if err != nil {
		return domain.Issuance{}, err
	}
	defer release()

	if iss.TxHash != "" {
		receipt, err := s.submitter.Confirmation(ctx, iss.TxHash)
		switch {
		case err == nil:
			return s.settle(ctx, iss, receipt)
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrTransactionFailed):
			// Dropped or reverted: nothing was issued, send again.
		default:
			return iss, fmt.Errorf("issuance: retry %s: %w", id, err)
		}
	}

	if err := s.validate(ctx, iss.Wallet, bond, iss.Amount); err != nil {
		return domain.Issuance{}, err
	}
	iss, _, err = s.attempt(ctx, iss, bond)
	return iss, err
}

// settle records a failed attempt whose transaction was mined after all. The
// record walks error -> idle -> loading -> success like any other attempt.
func (s *IssuanceService) settle(ctx context.Context, iss domain.Issuance, receipt domain.TxReceipt) (domain.Issuance, error) {
	lc := issuance.Resume(iss.State)
	for _, to := range []domain.TxState{domain.TxIdle, domain.TxLoading, domain.TxSuccess} {
		if err := s.transition(ctx, &lc, &iss, to, receipt.TxHash, ""); err != nil {
			return iss, err
		}
	}
	s.logger.InfoContext(ctx, "issuance settled from earlier transaction",
		slog.String("id", iss.ID),
		slog.String("tx_hash", receipt.TxHash),
		slog.Uint64("block", receipt.BlockNumber),
	)
	s.finish(ctx, domain.AuditIssuanceConfirmed, iss)
	return iss, nil
}

// Get returns one issuance.
func (s *IssuanceService) Get(ctx context.Context, id string) (domain.Issuance, error) {
	iss, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.Issuance{}, fmt.Errorf("issuance: get %s: %w", id, err)
	}
	return iss, nil
}

// List returns the issuances of wallet, newest first. An empty wallet lists
// the operator's.
func (s *IssuanceService) List(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Issuance, error) {
	if wallet == "" {
		wallet = s.submitter.Address()
	}
	out, err := s.store.ListByWallet(ctx, wallet, opts)
	if err != nil {
		return nil, fmt.Errorf("issuance: list: %w", err)
	}
	return out, nil
}

func (s *IssuanceService) validate(ctx context.Context, wallet string, bond domain.Bond, amount decimal.Decimal) error {
	available, err := s.collateral.Available(ctx, wallet)
	if err != nil {
		return err
	}
	return pricing.ValidateRequest(domain.IssuanceRequest{Bond: bond, Amount: amount}, available)
}

// acquire claims the wallet for one submission: first in process, then in
// Redis when a lock manager is configured.
func (s *IssuanceService) acquire(ctx context.Context, wallet string) (func(), error) {
	s.mu.Lock()
	if s.inflight[wallet] {
		s.mu.Unlock()
		return nil, fmt.Errorf("issuance: wallet %s: %w", wallet, domain.ErrSubmissionInFlight)
	}
	s.inflight[wallet] = true
	s.mu.Unlock()

	local := func() {
		s.mu.Lock()
		delete(s.inflight, wallet)
		s.mu.Unlock()
	}
	if s.locks == nil {
		return local, nil
	}
	unlock, err := s.locks.Acquire(ctx, "issuance:"+wallet, s.confirmTimeout+30*time.Second)
	if err != nil {
		local()
		return nil, fmt.Errorf("issuance: wallet %s: %w", wallet, err)
	}
	return func() {
		unlock()
		local()
	}, nil
}

// attempt drives one submission through the lifecycle, persisting each state.
func (s *IssuanceService) attempt(ctx context.Context, iss domain.Issuance, bond domain.Bond) (domain.Issuance, domain.TxReceipt, error) {
	lc := issuance.Resume(iss.State)
	if lc.State() != domain.TxIdle {
		if err := s.transition(ctx, &lc, &iss, domain.TxIdle, "", ""); err != nil {
			return iss, domain.TxReceipt{}, err
		}
	}
	if err := s.transition(ctx, &lc, &iss, domain.TxLoading, "", ""); err != nil {
		return iss, domain.TxReceipt{}, err
	}
	s.record(ctx, domain.AuditIssuanceSubmitted, iss)

	submitCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	// A receipt is final even when it arrives as the deadline passes.
	receipt, subErr := s.submitter.SubmitIssuance(submitCtx, domain.IssuanceRequest{Bond: bond, Amount: iss.Amount})
	cancel()

	// Persist the outcome even when the caller has gone away.
	persistCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer done()

	if subErr != nil {
		if !errors.Is(subErr, domain.ErrTransactionFailed) {
			subErr = fmt.Errorf("%w: %w", domain.ErrTransactionFailed, subErr)
		}
		if err := s.transition(persistCtx, &lc, &iss, domain.TxError, receipt.TxHash, subErr.Error()); err != nil {
			return iss, domain.TxReceipt{}, errors.Join(subErr, err)
		}
		s.logger.WarnContext(ctx, "issuance failed",
			slog.String("id", iss.ID),
			slog.String("bond_id", iss.BondID),
			slog.String("error", subErr.Error()),
		)
		s.finish(persistCtx, domain.AuditIssuanceFailed, iss)
		return iss, domain.TxReceipt{}, fmt.Errorf("issuance: %s: %w", iss.ID, subErr)
	}

	if err := s.transition(persistCtx, &lc, &iss, domain.TxSuccess, receipt.TxHash, ""); err != nil {
		return iss, domain.TxReceipt{}, err
	}
	s.logger.InfoContext(ctx, "issuance confirmed",
		slog.String("id", iss.ID),
		slog.String("bond_id", iss.BondID),
		slog.String("amount", iss.Amount.String()),
		slog.String("tx_hash", receipt.TxHash),
		slog.Uint64("block", receipt.BlockNumber),
	)
	s.finish(persistCtx, domain.AuditIssuanceConfirmed, iss)
	return iss, receipt, nil
}

func (s *IssuanceService) transition(ctx context.Context, lc *issuance.Lifecycle, iss *domain.Issuance, to domain.TxState, txHash, errMsg string) error {
	if err := lc.Transition(to); err != nil {
		return err
	}
	if err := s.store.UpdateState(ctx, iss.ID, to, txHash, errMsg); err != nil {
		return fmt.Errorf("issuance: update %s to %s: %w", iss.ID, to, err)
	}
	iss.State = to
	iss.TxHash = txHash
	iss.Error = errMsg
	if to == domain.TxLoading {
		iss.Attempts++
	}
	iss.UpdatedAt = s.now().UTC()
	s.publish(ctx, *iss)
	return nil
}

func (s *IssuanceService) finish(ctx context.Context, event string, iss domain.Issuance) {
	s.record(ctx, event, iss)
	if s.alerts != nil {
		_ = s.alerts.Notify(ctx, notify.IssuanceMessage(iss))
	}
}

func (s *IssuanceService) record(ctx context.Context, event string, iss domain.Issuance) {
	if s.audit == nil {
		return
	}
	detail := map[string]any{
		"id":       iss.ID,
		"bond_id":  iss.BondID,
		"wallet":   iss.Wallet,
		"amount":   iss.Amount.String(),
		"attempts": iss.Attempts,
	}
	if iss.TxHash != "" {
		detail["tx_hash"] = iss.TxHash
	}
	if iss.Error != "" {
		detail["error"] = iss.Error
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit issuance failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *IssuanceService) publish(ctx context.Context, iss domain.Issuance) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":    "issuance_" + string(iss.State),
		"issuance": iss,
	})
	if err := s.bus.Publish(ctx, domain.ChannelIssuances, evt); err != nil {
		s.logger.WarnContext(ctx, "publish issuance event failed", slog.String("error", err.Error()))
	}
}
