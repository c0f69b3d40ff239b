// Package notify sends operator alerts about issuances and swaps to chat
// channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/bondd/internal/domain"
)

// Event types accepted by Notify.
const (
	EventIssuanceConfirmed = "issuance_confirmed"
	EventIssuanceFailed    = "issuance_failed"
	EventSwapExecuted      = "swap_executed"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Message is a rendered notification.
type Message struct {
	Event string
	Title string
	Body  string
}

// Notifier fans a message out to every sender whose event is enabled. An
// empty event list enables everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier builds a Notifier.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether event would be delivered.
func (n *Notifier) Enabled(event string) bool {
	return len(n.senders) > 0 && (len(n.events) == 0 || n.events[event])
}

// Notify delivers msg to all senders. A failing sender does not stop the
// others; their errors are joined.
func (n *Notifier) Notify(ctx context.Context, msg Message) error {
	if !n.Enabled(msg.Event) {
		return nil
	}
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "notification failed",
				slog.String("sender", s.Name()),
				slog.String("event", msg.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}

// IssuanceMessage renders the terminal state of an issuance.
func IssuanceMessage(iss domain.Issuance) Message {
	if iss.State == domain.TxSuccess {
		return Message{
			Event: EventIssuanceConfirmed,
			Title: "Bond issued",
			Body: fmt.Sprintf("%s ETH of bond %s issued by %s\ntx %s",
				iss.Amount.String(), iss.BondID, iss.Wallet, iss.TxHash),
		}
	}
	return Message{
		Event: EventIssuanceFailed,
		Title: "Bond issuance failed",
		Body: fmt.Sprintf("%s ETH of bond %s by %s (attempt %d)\n%s",
			iss.Amount.String(), iss.BondID, iss.Wallet, iss.Attempts, iss.Error),
	}
}
