// Package logmail is a development notify.Sender that writes alerts to the
// log instead of sending email.
package logmail

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sellerguard/internal/monitor"
	"github.com/JakeFAU/sellerguard/internal/notify"
)

// Sender logs each alert at info level.
type Sender struct {
	logger *zap.Logger
	clock  monitor.Clock
}

var _ notify.Sender = (*Sender)(nil)

// New builds a Sender. A nil clock uses UTC wall time.
func New(logger *zap.Logger, clock monitor.Clock) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{logger: logger, clock: clock}
}

// Send logs the rendered alert and always succeeds unless ctx is done.
func (s *Sender) Send(ctx context.Context, alert monitor.Alert) (monitor.DeliveryReceipt, error) {
	if err := ctx.Err(); err != nil {
		return monitor.DeliveryReceipt{}, notify.NewTransient(0, "delivery canceled", err)
	}
	msg := notify.Render(alert)
	s.logger.Info("change alert",
		zap.Int64("target_id", alert.Target.ID),
		zap.Int64("change_event_id", alert.Event.ID),
		zap.String("risk_level", string(alert.Event.RiskLevel)),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text),
	)
	return monitor.DeliveryReceipt{
		MessageID:   fmt.Sprintf("log-%d", alert.Event.ID),
		DeliveredAt: s.now(),
	}, nil
}

func (s *Sender) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}
