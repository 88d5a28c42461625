package admission

import (
	"context"
	"time"
)

// OfferNotice - данные письма о предложении.
type OfferNotice struct {
	Email        string
	StudentName  string
	ProgramLabel string
	Institution  string
	City         string
	Score        int
	Position     int
	DecidedAt    time.Time
}

// WithdrawalNotice - данные письма об автоматическом отзыве.
type WithdrawalNotice struct {
	Email            string
	StudentName      string
	WithdrawnProgram string
	KeptProgram      string
	DecidedAt        time.Time
}

// Notifier доставляет студентам решения прогона.
type Notifier interface {
	NotifyOffer(ctx context.Context, n OfferNotice) error
	NotifyWithdrawal(ctx context.Context, n WithdrawalNotice) error
}
