package mail

import (
	"context"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
)

// Sender delivers a rendered message. *Mailer satisfies it.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier renders admission notices and hands them to a Sender.
type Notifier struct {
	sender Sender
}

var _ admission.Notifier = (*Notifier)(nil)

// NewNotifier creates a Notifier over sender.
func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

// NotifyOffer sends the offer e-mail.
func (n *Notifier) NotifyOffer(ctx context.Context, o admission.OfferNotice) error {
	msg, err := RenderOffer(o.Email, OfferData{
		StudentName:  o.StudentName,
		ProgramLabel: o.ProgramLabel,
		Institution:  o.Institution,
		City:         o.City,
		Score:        o.Score,
		Position:     o.Position,
		DecidedAt:    o.DecidedAt,
	})
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, msg)
}

// NotifyWithdrawal sends the auto-withdrawal e-mail.
func (n *Notifier) NotifyWithdrawal(ctx context.Context, w admission.WithdrawalNotice) error {
	msg, err := RenderWithdrawal(w.Email, WithdrawalData{
		StudentName:      w.StudentName,
		WithdrawnProgram: w.WithdrawnProgram,
		KeptProgram:      w.KeptProgram,
		DecidedAt:        w.DecidedAt,
	})
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, msg)
}
