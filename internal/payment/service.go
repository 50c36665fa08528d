package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/attar-shop/internal/order"
)

var (
	ErrOrderNotPayable  = errors.New("payment: order is not awaiting payment")
	ErrUnknownEventType = errors.New("payment: unknown webhook event type")
)

const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// WebhookEvent is the gateway's asynchronous signal, keyed by the gateway's
// own payment reference.
type WebhookEvent struct {
	Type       string `json:"type"`
	PaymentRef string `json:"payment_ref"`
}

// Orders is the slice of the order service this package needs.
type Orders interface {
	GetOrder(ctx context.Context, requesterID uuid.UUID, isAdmin bool, orderID uuid.UUID) (*order.Order, error)
	AttachPaymentRef(ctx context.Context, orderID uuid.UUID, ref string) error
	MarkPaid(ctx context.Context, paymentRef string) error
	MarkPaymentFailed(ctx context.Context, paymentRef string) error
}

type Service interface {
	CreateIntentForOrder(ctx context.Context, requesterID uuid.UUID, isAdmin bool, orderID uuid.UUID) (*Intent, error)
	HandleWebhook(ctx context.Context, event WebhookEvent) error
}

type service struct {
	orders   Orders
	gateway  Gateway
	currency string
}

func NewService(orders Orders, gateway Gateway, currency string) Service {
	return &service{
		orders:   orders,
		gateway:  gateway,
		currency: currency,
	}
}

func (s *service) CreateIntentForOrder(ctx context.Context, requesterID uuid.UUID, isAdmin bool, orderID uuid.UUID) (*Intent, error) {
	o, err := s.orders.GetOrder(ctx, requesterID, isAdmin, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusPending || o.Payment.Status == order.PaymentPaid {
		return nil, ErrOrderNotPayable
	}

	intent, err := s.gateway.CreateIntent(ctx, o.Number, o.Total, s.currency)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to create payment intent")
		return nil, err
	}

	if err := s.orders.AttachPaymentRef(ctx, orderID, intent.Ref); err != nil {
		return nil, fmt.Errorf("service: failed to attach payment ref: %w", err)
	}

	log.Info().
		Stringer("order_id", orderID).
		Str("payment_ref", intent.Ref).
		Msg("service: payment intent created")
	return intent, nil
}

func (s *service) HandleWebhook(ctx context.Context, event WebhookEvent) error {
	if event.PaymentRef == "" {
		return fmt.Errorf("payment: webhook event missing payment ref")
	}

	switch event.Type {
	case EventPaymentSucceeded:
		return s.orders.MarkPaid(ctx, event.PaymentRef)
	case EventPaymentFailed:
		return s.orders.MarkPaymentFailed(ctx, event.PaymentRef)
	default:
		log.Warn().Str("event_type", event.Type).Msg("service: ignoring unknown webhook event")
		return ErrUnknownEventType
	}
}
