package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/rental-settlement/internal/apperr"
	"github.com/iliyamo/rental-settlement/internal/model"
	"github.com/iliyamo/rental-settlement/internal/paystack"
	"github.com/iliyamo/rental-settlement/internal/repository"
)

// EventKind is the closed set of webhook events that affect payouts.
type EventKind string

const (
	EventTransferSuccess  EventKind = "transfer.success"
	EventTransferFailed   EventKind = "transfer.failed"
	EventTransferReversed EventKind = "transfer.reversed"
	// EventUnhandled covers every other event; those are acknowledged and
	// ignored.
	EventUnhandled EventKind = "unhandled"
)

// ClassifyEvent maps a provider event name onto an EventKind.
func ClassifyEvent(name string) EventKind {
	switch k := EventKind(strings.ToLower(strings.TrimSpace(name))); k {
	case EventTransferSuccess, EventTransferFailed, EventTransferReversed:
		return k
	}
	return EventUnhandled
}

// Ack is returned to the provider once a delivery is accepted.
type Ack struct {
	Event    string `json:"event"`
	Handled  bool   `json:"handled"`
	PayoutID string `json:"payout_id,omitempty"`
}

type webhookEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type transferData struct {
	ID           json.RawMessage `json:"id"`
	Reference    string          `json:"reference"`
	TransferCode string          `json:"transfer_code"`
	Amount       int64           `json:"amount"`
	Status       string          `json:"status"`
	Recipient    struct {
		RecipientCode string `json:"recipient_code"`
	} `json:"recipient"`
	Metadata json.RawMessage `json:"metadata"`
}

func (d transferData) providerReference() string {
	v := strings.Trim(strings.TrimSpace(string(d.ID)), `"`)
	if v == "null" {
		return ""
	}
	return v
}

func (d transferData) listingID() *string {
	var meta map[string]any
	if len(d.Metadata) == 0 || json.Unmarshal(d.Metadata, &meta) != nil {
		return nil
	}
	if v, ok := meta["listingId"].(string); ok && v != "" {
		return &v
	}
	return nil
}

type eventHandler func(ctx context.Context, kind EventKind, data json.RawMessage) (string, error)

func (s *Service) handlers() map[EventKind]eventHandler {
	return map[EventKind]eventHandler{
		EventTransferSuccess:  s.reconcileTransfer,
		EventTransferFailed:   s.reconcileTransfer,
		EventTransferReversed: s.reconcileTransfer,
	}
}

// HandleWebhook authenticates a provider delivery and applies it. body
// must be the raw request body; a bad signature fails before anything is
// decoded.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (Ack, error) {
	if !paystack.VerifySignature(s.secret, body, signature) {
		return Ack{}, apperr.New(apperr.Forbidden, "invalid paystack signature")
	}
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil || strings.TrimSpace(env.Event) == "" {
		return Ack{}, apperr.New(apperr.InvalidArgument, "invalid webhook payload")
	}

	kind := ClassifyEvent(env.Event)
	h, ok := s.handlers()[kind]
	if !ok {
		s.log.WithField("event", env.Event).Debug("ignoring webhook event")
		return Ack{Event: env.Event}, nil
	}
	payoutID, err := h(ctx, kind, env.Data)
	if err != nil {
		return Ack{}, err
	}
	return Ack{Event: env.Event, Handled: payoutID != "", PayoutID: payoutID}, nil
}

func targetStatus(kind EventKind, data transferData) string {
	switch kind {
	case EventTransferSuccess:
		return model.PayoutSuccess
	case EventTransferFailed:
		return model.PayoutFailed
	}
	if st := strings.ToLower(strings.TrimSpace(data.Status)); st != "" {
		return st
	}
	return model.PayoutReversed
}

// canTransition reports whether a payout in status from may move to to.
// A terminal state is never replaced by a non-terminal one, and between
// terminal states only a reversal may land on top.
func canTransition(from, to string) bool {
	if from == to {
		return false
	}
	if !model.IsTerminalPayoutStatus(from) {
		return true
	}
	if !model.IsTerminalPayoutStatus(to) {
		return false
	}
	return to == model.PayoutReversed
}

func (s *Service) reconcileTransfer(ctx context.Context, kind EventKind, raw json.RawMessage) (string, error) {
	var data transferData
	if len(raw) == 0 || json.Unmarshal(raw, &data) != nil {
		return "", apperr.New(apperr.InvalidArgument, "invalid webhook payload")
	}
	log := s.log.WithFields(logrus.Fields{
		"event":         string(kind),
		"transfer_code": data.TransferCode,
		"reference":     data.Reference,
	})
	if data.TransferCode == "" && data.Reference == "" {
		// nothing to match on; a retry would carry the same payload
		log.Warn("transfer event has no transfer code or reference, dropping")
		return "", nil
	}

	existing, err := s.payouts.FindPayoutByTransfer(ctx, data.TransferCode, data.Reference)
	switch {
	case err == nil:
		return s.applyTransfer(ctx, existing.ID, kind, data, raw, log)
	case !errors.Is(err, repository.ErrNotFound):
		return "", fmt.Errorf("find payout: %w", err)
	}

	if kind != EventTransferSuccess {
		log.Info("no payout for transfer event, ignoring")
		return "", nil
	}

	code := strings.TrimSpace(data.Recipient.RecipientCode)
	var acct model.BankAccount
	if code != "" {
		acct, err = s.accounts.GetBankAccountByRecipientCode(ctx, code)
	}
	if code == "" || errors.Is(err, repository.ErrNotFound) {
		log.WithField("recipient_code", code).
			Warn("successful transfer has no payout and no known recipient, dropping")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find bank account: %w", err)
	}

	p := model.Payout{
		ID:                uuid.NewString(),
		UserID:            acct.UserID,
		ListingID:         data.listingID(),
		Amount:            data.Amount,
		Currency:          model.CurrencyNGN,
		Reference:         nonEmpty(data.Reference),
		TransferCode:      nonEmpty(data.TransferCode),
		ProviderReference: nonEmpty(data.providerReference()),
		Status:            model.PayoutSuccess,
		Metadata:          mergeMetadata(nil, kind, raw),
	}
	err = s.payouts.CreatePayout(ctx, &p)
	if errors.Is(err, repository.ErrDuplicate) {
		// a concurrent delivery of the same event won the insert
		existing, ferr := s.payouts.FindPayoutByTransfer(ctx, data.TransferCode, data.Reference)
		if ferr != nil {
			return "", fmt.Errorf("find payout after duplicate: %w", ferr)
		}
		return s.applyTransfer(ctx, existing.ID, kind, data, raw, log)
	}
	if err != nil {
		return "", fmt.Errorf("record payout: %w", err)
	}
	log.WithField("payout_id", p.ID).Info("payout reconstructed from webhook")
	s.publish(ctx, p, "webhook")
	return p.ID, nil
}

// applyTransfer reconciles the payout id with the event. The status
// decision is made on the row as read under its lock, so an out of order
// delivery racing this one cannot slip an older state past canTransition.
func (s *Service) applyTransfer(ctx context.Context, id string, kind EventKind, data transferData, raw json.RawMessage, log *logrus.Entry) (string, error) {
	changed := false
	p, err := s.payouts.ModifyPayout(ctx, id, func(p *model.Payout) bool {
		changed = mergeTransfer(p, kind, data, raw, log)
		return changed
	})
	if err != nil {
		return "", fmt.Errorf("update payout: %w", err)
	}
	if changed {
		s.publish(ctx, p, "webhook")
	}
	return p.ID, nil
}

// mergeTransfer folds the event into p and reports whether anything
// changed. Missing identifiers and amount are backfilled; the status only
// moves when canTransition allows it.
func mergeTransfer(p *model.Payout, kind EventKind, data transferData, raw json.RawMessage, log *logrus.Entry) bool {
	changed := false
	if p.ProviderReference == nil {
		if v := nonEmpty(data.providerReference()); v != nil {
			p.ProviderReference, changed = v, true
		}
	}
	if p.TransferCode == nil {
		if v := nonEmpty(data.TransferCode); v != nil {
			p.TransferCode, changed = v, true
		}
	}
	if p.Reference == nil {
		if v := nonEmpty(data.Reference); v != nil {
			p.Reference, changed = v, true
		}
	}
	if p.Amount == 0 && data.Amount > 0 {
		p.Amount, changed = data.Amount, true
	}

	next := targetStatus(kind, data)
	if canTransition(p.Status, next) {
		log.WithFields(logrus.Fields{"payout_id": p.ID, "from": p.Status, "to": next}).Info("payout status updated")
		p.Status, changed = next, true
	} else if p.Status != next {
		log.WithFields(logrus.Fields{"payout_id": p.ID, "current": p.Status, "event_status": next}).
			Warn("ignoring payout status regression")
	}

	if changed {
		p.Metadata = mergeMetadata(p.Metadata, kind, raw)
	}
	return changed
}

// mergeMetadata keeps the existing object and records the latest webhook
// under its own keys. Non-object metadata is preserved under "initial".
func mergeMetadata(existing json.RawMessage, kind EventKind, data json.RawMessage) json.RawMessage {
	out := map[string]any{}
	if trimmed := bytes.TrimSpace(existing); len(trimmed) > 0 && string(trimmed) != "null" {
		if err := json.Unmarshal(trimmed, &out); err != nil {
			out = map[string]any{"initial": json.RawMessage(trimmed)}
		}
	}
	out["lastWebhookEvent"] = string(kind)
	out["webhook"] = json.RawMessage(data)
	buf, err := json.Marshal(out)
	if err != nil {
		return existing
	}
	return buf
}
