package document

import (
	"context"
	"fmt"
	"log/slog"

	"loadboard/load"
)

// Emailer delivers a generated document to a recipient, best-effort.
type Emailer interface {
	SendDocumentEmail(recipient, subject, filePath string)
}

// AcceptanceOrchestrator runs the accept-time side effects: generate the
// rate confirmation and email it to the carrier. It implements
// load.AcceptanceObserver and is invoked detached from the accepting
// request, so every failure here is logged and none of them reach the
// caller or roll the acceptance back.
type AcceptanceOrchestrator struct {
	docs   *Service
	users  UserGetter
	mail   Emailer
	logger *slog.Logger
}

func NewAcceptanceOrchestrator(docs *Service, users UserGetter, mail Emailer, logger *slog.Logger) *AcceptanceOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &AcceptanceOrchestrator{
		docs:   docs,
		users:  users,
		mail:   mail,
		logger: logger,
	}
}

func (o *AcceptanceOrchestrator) LoadAccepted(ctx context.Context, l load.Load) {
	if l.AcceptedBy == nil {
		o.logger.Error("accepted load missing carrier", "load_id", l.ID)
		return
	}

	carrier, err := o.users.GetUserByID(ctx, *l.AcceptedBy)
	if err != nil {
		o.logger.Error("rate confirmation: carrier lookup failed", "load_id", l.ID, "carrier_id", *l.AcceptedBy, "error", err)
		return
	}

	path, err := o.docs.GenerateRateConfirmation(ctx, l, carrier)
	if err != nil {
		o.logger.Error("rate confirmation generation failed", "load_id", l.ID, "error", err)
		return
	}

	o.logger.Info("rate confirmation generated", "load_id", l.ID, "path", path)

	if o.mail != nil {
		subject := fmt.Sprintf("Rate confirmation for %q", l.Title)
		o.mail.SendDocumentEmail(carrier.Email, subject, path)
	}
}
