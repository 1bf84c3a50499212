package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/montebay/storefront/internal/domain/cart"
	"github.com/montebay/storefront/internal/notify"
	"github.com/montebay/storefront/internal/payment"
	"github.com/montebay/storefront/internal/shipping"
)

// Config holds checkout pricing knobs.
type Config struct {
	Currency string
	// TaxRate is applied to the post-discount goods total.
	TaxRate decimal.Decimal
	// DefaultShipping is charged when the carrier-rate API is unavailable.
	DefaultShipping decimal.Decimal
	OriginZip       string
}

// ShipTo is the destination address collected at checkout.
type ShipTo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	Region  string `json:"region"`
	Zip     string `json:"zip"`
}

// CheckoutService assembles immutable order snapshots from the live cart and
// drives the order lifecycle. The freeze-then-charge ordering is the point:
// the processor is always given the frozen total, so the amount charged can
// never drift from what the cart displayed.
type CheckoutService struct {
	carts      *cart.Service
	orders     Repository
	processor  payment.Processor
	rates      shipping.RateClient
	notifier   notify.Notifier
	reconciler *Reconciler
	cfg        Config
	tracer     trace.Tracer
	confirmed  metric.Int64Counter
	lg         *zap.Logger
}

// NewCheckoutService wires the checkout flow.
func NewCheckoutService(
	carts *cart.Service,
	orders Repository,
	processor payment.Processor,
	rates shipping.RateClient,
	notifier notify.Notifier,
	reconciler *Reconciler,
	cfg Config,
	tracer trace.Tracer,
	meter metric.Meter,
	lg *zap.Logger,
) (*CheckoutService, error) {
	confirmed, err := meter.Int64Counter("storefront.orders.confirmed")
	if err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}
	return &CheckoutService{
		carts:      carts,
		orders:     orders,
		processor:  processor,
		rates:      rates,
		notifier:   notifier,
		reconciler: reconciler,
		cfg:        cfg,
		tracer:     tracer,
		confirmed:  confirmed,
		lg:         lg,
	}, nil
}

// Checkout freezes the owner's cart into an Order. Free orders (total ≤ 0)
// skip the payment processor and are confirmed immediately; paid orders are
// persisted pending with a charge handle for the frozen total.
func (s *CheckoutService) Checkout(ctx context.Context, ownerID string, shipTo ShipTo) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "checkout")
	defer span.End()

	c, err := s.carts.Get(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}

	goods := c.Totals.Subtotal.
		Sub(c.Totals.MembershipDiscount).
		Sub(c.Totals.PromotionDiscount)

	shippingAmount, serviceName := s.quoteShipping(ctx, c, shipTo, goods)
	tax := goods.Mul(s.cfg.TaxRate).Round(2)
	total := goods.Add(shippingAmount).Add(tax).Round(2)

	o := &Order{
		ID:                 uuid.New().String(),
		OwnerID:            c.OwnerID,
		MembershipID:       c.MembershipID,
		Lines:              freezeLines(c.Items),
		Subtotal:           c.Totals.Subtotal,
		MembershipDiscount: c.Totals.MembershipDiscount,
		PromotionDiscount:  c.Totals.PromotionDiscount,
		Shipping:           shippingAmount,
		Tax:                tax,
		Total:              total,
		PromotionID:        c.PromotionID,
		PromotionCode:      c.PromotionCode,
		Status:             StatusPending,
		PaymentStatus:      PaymentPending,
		ShippingService:    serviceName,
		CreatedAt:          time.Now().UTC(),
	}

	if o.IsFree() {
		// Nothing to await from a payment processor: confirm immediately.
		o.Status = StatusPaid
		o.PaymentStatus = PaymentPaid
		if err := s.orders.Create(ctx, o); err != nil {
			return nil, errors.Wrap(err, "create order")
		}
		return o, s.finalize(ctx, o)
	}

	handle, err := s.processor.CreateCharge(ctx, total, s.cfg.Currency, map[string]string{
		"order_id": o.ID,
		"owner_id": o.OwnerID,
	})
	if err != nil {
		return nil, errors.Wrapf(ErrPaymentFailed, "create charge: %v", err)
	}
	o.PaymentRef = handle.ID

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// ConfirmPayment transitions a pending order to paid, commits the membership
// usage deduction, and clears the cart. Safe to retry: an already-paid order
// is returned as-is and the reconciler's flag prevents double-deduction.
func (s *CheckoutService) ConfirmPayment(ctx context.Context, orderID string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "confirm_payment")
	defer span.End()

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch o.Status {
	case StatusPaid:
		return o, nil
	case StatusCancelled:
		return nil, errors.Errorf("order %s is cancelled", orderID)
	}

	if err := s.orders.MarkPaid(ctx, o.ID); err != nil {
		return nil, errors.Wrap(err, "mark paid")
	}
	o.Status = StatusPaid
	o.PaymentStatus = PaymentPaid

	return o, s.finalize(ctx, o)
}

// Cancel refunds a paid order, reverses the membership usage deduction, and
// marks the order cancelled. Repeated cancellation is a no-op.
func (s *CheckoutService) Cancel(ctx context.Context, orderID string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "cancel_order")
	defer span.End()

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusCancelled {
		return o, nil
	}

	paymentStatus := o.PaymentStatus
	if o.PaymentStatus == PaymentPaid && o.PaymentRef != "" {
		// The order ID keys the refund: if a later step fails and the
		// cancellation is retried, the processor sees the same key and does
		// not pay out a second time.
		if err := s.processor.Refund(ctx, o.PaymentRef, o.Total, "refund-"+o.ID); err != nil {
			return nil, errors.Wrap(err, "refund charge")
		}
		paymentStatus = PaymentRefunded
	}

	if err := s.reconciler.Reverse(ctx, o); err != nil {
		return nil, errors.Wrap(err, "reverse membership usage")
	}

	if err := s.orders.MarkCancelled(ctx, o.ID, paymentStatus); err != nil {
		return nil, errors.Wrap(err, "mark cancelled")
	}
	o.Status = StatusCancelled
	o.PaymentStatus = paymentStatus

	s.sendNotification(ctx, notify.TemplateOrderCancelled, o)
	return o, nil
}

// GetOrder returns an order by ID.
func (s *CheckoutService) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// finalize runs the post-payment steps shared by free and paid confirmation.
func (s *CheckoutService) finalize(ctx context.Context, o *Order) error {
	if err := s.reconciler.Commit(ctx, o); err != nil {
		return errors.Wrap(err, "commit membership usage")
	}

	if err := s.carts.Clear(ctx, o.OwnerID); err != nil {
		// The order is already durable; a stale cart is a nuisance, not a
		// reason to fail confirmation.
		s.lg.Warn("failed to clear cart after order confirmation",
			zap.String("order_id", o.ID), zap.Error(err))
	}

	s.confirmed.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("order.free", o.IsFree()),
	))
	s.sendNotification(ctx, notify.TemplateOrderConfirmed, o)
	return nil
}

func (s *CheckoutService) sendNotification(ctx context.Context, template string, o *Order) {
	err := s.notifier.Send(ctx, template, o.OwnerID, map[string]string{
		"order_id": o.ID,
		"total":    o.Total.StringFixed(2),
	})
	if err != nil {
		s.lg.Warn("notification delivery failed",
			zap.String("template", template),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}

// quoteShipping asks the carrier-rate API for a quote, falling back to the
// configured default on failure. Orders with no paid goods ship free.
func (s *CheckoutService) quoteShipping(ctx context.Context, c *cart.Cart, shipTo ShipTo, goods decimal.Decimal) (decimal.Decimal, string) {
	if !goods.IsPositive() {
		return decimal.Zero, ""
	}

	if s.rates == nil {
		return s.cfg.DefaultShipping.Round(2), ""
	}

	weight := 0
	for _, it := range c.Items {
		weight += it.WeightOz * it.Quantity
	}

	quote, err := s.rates.GetQuote(ctx, shipping.QuoteRequest{
		OriginZip: s.cfg.OriginZip,
		DestZip:   shipTo.Zip,
		WeightOz:  weight,
	})
	if err != nil {
		s.lg.Warn("carrier rate lookup failed, using default",
			zap.String("owner_id", c.OwnerID), zap.Error(err))
		return s.cfg.DefaultShipping.Round(2), ""
	}
	return quote.Cost.Round(2), quote.ServiceName
}

func freezeLines(items []cart.Item) []Line {
	lines := make([]Line, len(items))
	for i, it := range items {
		freeValue := it.ListPrice.Mul(decimal.NewFromInt(int64(it.FreeUnits)))
		lines[i] = Line{
			ProductID:       it.ProductID,
			CategoryID:      it.CategoryID,
			Name:            it.Name,
			Quantity:        it.Quantity,
			UnitPrice:       it.ListPrice,
			FreeUnits:       it.FreeUnits,
			AppliedDiscount: freeValue.Add(it.PromotionDiscount).Round(2),
			LineTotal:       it.FinalPrice,
		}
	}
	return lines
}
