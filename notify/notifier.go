/*
Package notify delivers overdue notifications to administrators.

PURPOSE:
  The schedule engine reports every Pending -> Overdue transition it sees,
  on every derivation. This package turns that stream into one
  notification per transition:

    OverdueEvent -> Deduper.MarkNotified -> Hub.Broadcast + log line

  The de-duplication key is account, installment number and due date, so
  a start-date change (new due dates) or a payment reversal after the TTL
  can announce again.

DELIVERY:
  Best effort. A failing deduper is logged and the event is delivered
  anyway; a duplicate toast beats a missed overdue. Nothing here returns
  an error to the engine.

SEE ALSO:
  - installment/service.go: OverdueNotifier interface
  - api/scheduler.go: Periodic scan that feeds this notifier
*/
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/solarpay/financing-engine/installment"
	"go.uber.org/zap"
)

// MessageTypeOverdue tags overdue frames on the websocket feed.
const MessageTypeOverdue = "installment.overdue"

// DefaultDedupTTL keeps a transition silenced for a month.
const DefaultDedupTTL = 30 * 24 * time.Hour

// OverdueNotice is the payload of an overdue message.
type OverdueNotice struct {
	AccountID   string    `json:"account_id"`
	AccountName string    `json:"account_name"`
	Installment int       `json:"installment"`
	DueDate     string    `json:"due_date"`
	BaseAmount  string    `json:"base_amount"`
	Penalty     string    `json:"penalty"`
	Currency    string    `json:"currency"`
	DetectedAt  time.Time `json:"detected_at"`
}

// Broadcaster is the delivery side of the hub.
type Broadcaster interface {
	Broadcast(message *Message)
}

// Notifier implements installment.OverdueNotifier.
type Notifier struct {
	dedup  Deduper
	out    Broadcaster
	ttl    time.Duration
	logger *zap.Logger
}

func NewNotifier(dedup Deduper, out Broadcaster, ttl time.Duration, logger *zap.Logger) *Notifier {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{dedup: dedup, out: out, ttl: ttl, logger: logger}
}

func (n *Notifier) NotifyOverdue(ctx context.Context, account installment.Account, events []installment.OverdueEvent) {
	for _, ev := range events {
		key := dedupKey(ev)
		if n.dedup != nil {
			fresh, err := n.dedup.MarkNotified(ctx, key, n.ttl)
			if err != nil {
				n.logger.Warn("overdue dedup unavailable, delivering anyway",
					zap.String("key", key),
					zap.Error(err))
			} else if !fresh {
				continue
			}
		}

		msg := &Message{
			ID:       uuid.NewString(),
			Type:     MessageTypeOverdue,
			BranchID: account.BranchID,
			Data: OverdueNotice{
				AccountID:   string(ev.AccountID),
				AccountName: account.Name,
				Installment: ev.Installment,
				DueDate:     ev.DueDate.String(),
				BaseAmount:  ev.BaseAmount.String(),
				Penalty:     ev.Penalty.String(),
				Currency:    string(ev.BaseAmount.Currency),
				DetectedAt:  ev.DetectedAt,
			},
		}
		if n.out != nil {
			n.out.Broadcast(msg)
		}

		n.logger.Info("installment overdue",
			zap.String("event_id", msg.ID),
			zap.String("account_id", string(ev.AccountID)),
			zap.String("branch_id", account.BranchID),
			zap.Int("installment", ev.Installment),
			zap.String("due_date", ev.DueDate.String()),
			zap.String("penalty", ev.Penalty.String()))
	}
}

func dedupKey(ev installment.OverdueEvent) string {
	return fmt.Sprintf("%s:%d:%s", ev.AccountID, ev.Installment, ev.DueDate)
}
