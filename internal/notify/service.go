package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/sellerguard/internal/monitor"
	"github.com/JakeFAU/sellerguard/internal/retry"
)

// Sender performs exactly one delivery attempt.
type Sender interface {
	Send(ctx context.Context, alert monitor.Alert) (monitor.DeliveryReceipt, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, alert monitor.Alert) (monitor.DeliveryReceipt, error)

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, alert monitor.Alert) (monitor.DeliveryReceipt, error) {
	return f(ctx, alert)
}

// Service implements monitor.Notifier by retrying transient Sender failures.
type Service struct {
	sender Sender
	policy retry.Policy
	logger *zap.Logger
}

var _ monitor.Notifier = (*Service)(nil)

// NewService wraps sender with the retry policy.
func NewService(sender Sender, policy retry.Policy, logger *zap.Logger) (*Service, error) {
	if sender == nil {
		return nil, errors.New("email sender is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{sender: sender, policy: policy.Normalize(), logger: logger}, nil
}

// SendChangeAlert delivers alert, retrying transient failures.
func (s *Service) SendChangeAlert(ctx context.Context, alert monitor.Alert) (monitor.DeliveryReceipt, error) {
	hooks := retry.Hooks{
		Retryable: IsTransient,
		OnFailure: func(attempt int, err error, willRetry bool) {
			s.logger.Error("email delivery attempt failed",
				zap.Int64("target_id", alert.Target.ID),
				zap.Int64("change_event_id", alert.Event.ID),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", s.policy.MaxAttempts),
				zap.Bool("transient", IsTransient(err)),
				zap.Bool("will_retry", willRetry),
				zap.Error(err),
			)
		},
	}
	return retry.Do(ctx, s.policy, hooks, func(ctx context.Context, attempt int) (monitor.DeliveryReceipt, error) {
		receipt, err := s.sender.Send(ctx, alert)
		if err != nil {
			de := *normalize(err)
			de.Attempt = attempt
			de.ChangeEventID = alert.Event.ID
			de.TargetID = alert.Target.ID
			return monitor.DeliveryReceipt{}, &de
		}
		return receipt, nil
	})
}
