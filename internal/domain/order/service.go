package order

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/delivery-orders/internal/domain/auth"
	"github.com/xenking/delivery-orders/internal/domain/catalog"
)

const defaultPaymentTimeout = 5 * time.Second

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID        string
	Items         []CartItem
	Address       map[string]any
	DeliveryType  DeliveryType
	PaymentMethod PaymentMethod
	PromoCode     string
	Adjustments   Adjustments
	ETAMinutes    *int
	Route         []Coordinate
}

// ListQuery narrows a scoped order listing.
type ListQuery struct {
	RestaurantID string
	From         *time.Time
	To           *time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCatalog enables the delivery-mode capability check at placement.
func WithCatalog(c catalog.Repository) Option {
	return func(s *Service) { s.catalog = c }
}

// WithNotifier sets the receiver of committed order events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithPaymentGateway sets the provider used to verify payment callbacks and
// the timeout applied to each lookup.
func WithPaymentGateway(g PaymentGateway, timeout time.Duration) Option {
	return func(s *Service) {
		s.gateway = g
		if timeout > 0 {
			s.paymentTimeout = timeout
		}
	}
}

// WithDeduper sets the store of already handled payment events.
func WithDeduper(d Deduper) Option {
	return func(s *Service) { s.dedupe = d }
}

// WithMeterProvider sets the meter provider for service counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithLocation sets the time zone used for revenue day buckets.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type serviceMetrics struct {
	placed      metric.Int64Counter
	transitions metric.Int64Counter
	settled     metric.Int64Counter
	discarded   metric.Int64Counter
}

// Service encapsulates order lifecycle business logic.
type Service struct {
	store          *Store
	calc           *Calculator
	catalog        catalog.Repository
	notifier       Notifier
	gateway        PaymentGateway
	paymentTimeout time.Duration
	dedupe         Deduper
	meterProvider  metric.MeterProvider
	loc            *time.Location
	agg            *Aggregator
	metrics        serviceMetrics
	now            func() time.Time
}

// NewService creates an order Service on top of store and calc.
func NewService(store *Store, calc *Calculator, opts ...Option) (*Service, error) {
	s := &Service{
		store:          store,
		calc:           calc,
		notifier:       NopNotifier{},
		paymentTimeout: defaultPaymentTimeout,
		meterProvider:  noop.NewMeterProvider(),
		loc:            time.UTC,
		now:            time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.agg = NewAggregator(s.loc)

	meter := s.meterProvider.Meter("github.com/xenking/delivery-orders/internal/domain/order")
	var err error
	if s.metrics.placed, err = meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders placed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.placed")
	}
	if s.metrics.transitions, err = meter.Int64Counter("orders.phase_transitions",
		metric.WithDescription("Committed delivery phase changes"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.phase_transitions")
	}
	if s.metrics.settled, err = meter.Int64Counter("orders.payments_settled",
		metric.WithDescription("Orders marked paid"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.payments_settled")
	}
	if s.metrics.discarded, err = meter.Int64Counter("orders.discarded",
		metric.WithDescription("Unpaid orders removed after a failed payment"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.discarded")
	}
	return s, nil
}

// Ping checks the order store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PlaceOrder snapshots the cart, computes totals, partitions the items into
// per-restaurant sub-orders and persists the order in the initial phase.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if req.UserID == "" {
		return nil, &ValidationError{Field: "userId", Reason: "required"}
	}
	if len(req.Items) == 0 {
		return nil, &ValidationError{Field: "items", Reason: "required"}
	}

	deliveryType := req.DeliveryType
	if deliveryType == "" {
		deliveryType = DeliveryDriver
	}
	if !deliveryType.Valid() {
		return nil, &ValidationError{Field: "deliveryType", Reason: "must be driver or drone"}
	}
	method := req.PaymentMethod
	if method == "" {
		method = PaymentCOD
	}
	if !method.Valid() {
		return nil, &ValidationError{Field: "paymentMethod", Reason: "must be card or cod"}
	}

	items, err := s.calc.Snapshot(req.Items)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.FoodID == "" {
			return nil, &ValidationError{Field: "foodId", Reason: "required"}
		}
	}

	if deliveryType == DeliveryDrone && s.catalog != nil {
		if err := s.checkDroneSupport(ctx, items); err != nil {
			return nil, err
		}
	}

	totals, err := s.calc.Compute(items, deliveryType, req.Adjustments)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	o := &Order{
		UserID:        req.UserID,
		Items:         items,
		Address:       req.Address,
		Phase:         PhaseAtRestaurant,
		PaymentMethod: method,
		DeliveryType:  deliveryType,
		DeliveryFee:   totals.DeliveryFee,
		PromoCode:     req.PromoCode,
		PromoDiscount: totals.PromoDiscount,
		SubTotal:      totals.SubTotal,
		Total:         totals.Total,
		Route:         req.Route,
		Timeline:      []TimelineEntry{{Status: StatusFoodProcessing, At: now}},
		SubOrders:     Partition(items, deliveryType, totals.DeliveryFee, req.ETAMinutes),
		CreatedAt:     now,
	}
	created, err := s.store.Create(ctx, o)
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", created.ID),
		zap.String("user_id", created.UserID),
		zap.Int("sub_orders", len(created.SubOrders)),
		zap.String("total", created.Total.String()),
	)
	s.metrics.placed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("delivery_type", string(deliveryType)),
		attribute.String("payment_method", string(method)),
	))
	s.notify(ctx, newEvent(EventPlaced, created, now))

	return created, nil
}

// checkDroneSupport rejects drone delivery when a restaurant in the cart
// does not offer it.
func (s *Service) checkDroneSupport(ctx context.Context, items []Item) error {
	var ids []string
	for _, it := range items {
		if it.RestaurantID != "" && !slices.Contains(ids, it.RestaurantID) {
			ids = append(ids, it.RestaurantID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	restaurants, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "get restaurants")
	}
	byID := make(map[string]catalog.Restaurant, len(restaurants))
	for _, r := range restaurants {
		byID[r.ID] = r
	}
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			return errors.Wrapf(ErrNotFound, "restaurant %s", id)
		}
		if !r.Supports(string(DeliveryDrone)) {
			return &ValidationError{Field: "deliveryType", Reason: "restaurant " + id + " does not offer drone delivery"}
		}
	}
	return nil
}

// GetOrder returns one order as seen by p. Customers see their own orders,
// owners see the slice of orders touching their restaurants and admins see
// everything.
func (s *Service) GetOrder(ctx context.Context, p auth.Principal, id string) (*Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case p.IsAdmin():
		return o, nil
	case o.UserID == p.UserID:
		return o, nil
	case p.IsOwner() && canManage(p, o):
		return View(o, Scope{RestaurantIDs: p.OwnedRestaurantIDs}), nil
	default:
		return nil, ErrForbidden
	}
}

// ListOrdersForUser returns the user's orders newest first.
func (s *Service) ListOrdersForUser(ctx context.Context, userID string) ([]Order, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "userId", Reason: "required"}
	}
	return s.store.ListByUser(ctx, userID)
}

// ListOrdersScoped returns the orders visible to p, each narrowed to the
// caller's restaurants with totals recomputed over the visible slice.
func (s *Service) ListOrdersScoped(ctx context.Context, p auth.Principal, q ListQuery) ([]Order, error) {
	scope, err := ResolveScope(p, q.RestaurantID)
	if err != nil {
		return nil, err
	}
	orders, err := s.store.ListScoped(ctx, scope.Apply(Filter{From: q.From, To: q.To}))
	if err != nil {
		return nil, err
	}
	out := make([]Order, len(orders))
	for i := range orders {
		out[i] = *View(&orders[i], scope)
	}
	return out, nil
}

// UpdateDeliveryPhase applies courier assignment and an optional phase
// change to the whole order in one atomic write.
func (s *Service) UpdateDeliveryPhase(ctx context.Context, p auth.Principal, id string, u PhaseUpdate) (*Order, error) {
	if u.Phase != nil && !u.Phase.Valid() {
		return nil, &TransitionError{To: *u.Phase}
	}
	if !p.IsAdmin() && !p.IsOwner() {
		return nil, ErrForbidden
	}

	lg := zctx.From(ctx).With(zap.String("order_id", id))

	var (
		now      time.Time
		moved    bool
		assigned bool
		settled  bool
	)
	o, err := s.store.UpdateOnePhase(ctx, id, func(o *Order) (bool, error) {
		moved, assigned, settled = false, false, false
		if !canManage(p, o) {
			return false, ErrForbidden
		}
		now = s.now().UTC()
		wasPaid := o.Paid
		assigned = assign(o, u)
		if u.Phase != nil {
			var err error
			if moved, err = advance(o, *u.Phase, now); err != nil {
				return false, err
			}
		}
		settled = !wasPaid && o.Paid
		return moved || assigned, nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidPhase) {
			lg.Warn("Delivery phase rejected", zap.Error(err))
		}
		return nil, err
	}

	if moved {
		lg.Info("Delivery phase advanced", zap.String("phase", string(o.Phase)))
		s.metrics.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", string(o.Phase))))
		s.notify(ctx, newEvent(EventPhaseChanged, o, now))
	} else if assigned {
		s.notify(ctx, newEvent(EventAssigned, o, now))
	}
	if settled {
		lg.Info("Cash on delivery settled")
		s.metrics.settled.Add(ctx, 1)
		s.notify(ctx, newEvent(EventPaid, o, now))
	}
	return o, nil
}

// UpdateStatus is the coarse status path. status is a legacy status string
// or a phase value. On a multi-restaurant order it moves the sub-order of
// restaurantID and carries the parent forward to the same phase; otherwise
// it moves the whole order.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, id, status, restaurantID string) error {
	target, err := PhaseFromStatus(status)
	if err != nil {
		return err
	}
	if !p.IsAdmin() && !p.IsOwner() {
		return ErrForbidden
	}

	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(p, cur) {
		return ErrForbidden
	}
	rid, err := sliceTarget(p, cur, restaurantID)
	if err != nil {
		return err
	}

	lg := zctx.From(ctx).With(zap.String("order_id", id))

	var (
		now         time.Time
		parentMoved bool
		sliceMoved  bool
		settled     bool
		o           *Order
	)
	if rid == "" {
		o, err = s.store.UpdateOnePhase(ctx, id, func(o *Order) (bool, error) {
			now = s.now().UTC()
			wasPaid := o.Paid
			moved, err := advance(o, target, now)
			parentMoved = moved
			settled = !wasPaid && o.Paid
			return moved, err
		})
	} else {
		o, err = s.store.UpdateSubOrderStatus(ctx, id, rid, func(o *Order, so *SubOrder) (bool, error) {
			now = s.now().UTC()
			wasPaid, before := o.Paid, o.Phase
			moved, err := advanceSlice(o, so, target, now)
			sliceMoved = moved
			parentMoved = o.Phase != before
			settled = !wasPaid && o.Paid
			return moved, err
		})
	}
	if err != nil {
		if errors.Is(err, ErrInvalidPhase) {
			lg.Warn("Status update rejected", zap.Error(err), zap.String("restaurant_id", rid))
		}
		return err
	}

	if sliceMoved {
		e := newEvent(EventSliceChanged, o, now)
		e.RestaurantID = rid
		e.Phase = target
		e.Status = target.Status()
		s.notify(ctx, e)
	}
	if parentMoved {
		lg.Info("Delivery phase advanced", zap.String("phase", string(o.Phase)))
		s.metrics.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", string(o.Phase))))
		s.notify(ctx, newEvent(EventPhaseChanged, o, now))
	}
	if settled {
		lg.Info("Cash on delivery settled")
		s.metrics.settled.Add(ctx, 1)
		s.notify(ctx, newEvent(EventPaid, o, now))
	}
	return nil
}

// sliceTarget decides which part of o a coarse status update addresses. An
// empty result means the whole order, which is also the answer for orders
// without sub-orders.
func sliceTarget(p auth.Principal, o *Order, restaurantID string) (string, error) {
	ids := o.RestaurantIDs()
	if restaurantID != "" {
		if p.IsOwner() && !p.Owns(restaurantID) {
			return "", ErrForbidden
		}
		if !slices.Contains(ids, restaurantID) {
			return "", errors.Wrapf(ErrNotFound, "restaurant %s in order", restaurantID)
		}
		if _, ok := o.SubOrder(restaurantID); ok && len(ids) > 1 {
			return restaurantID, nil
		}
		return "", nil
	}

	// Orders stored before sub-orders existed only move as a whole.
	if len(ids) <= 1 || len(o.SubOrders) == 0 || p.IsAdmin() {
		return "", nil
	}
	var owned []string
	for _, id := range ids {
		if p.Owns(id) {
			owned = append(owned, id)
		}
	}
	switch {
	case len(owned) == len(ids):
		return "", nil
	case len(owned) == 1:
		return owned[0], nil
	default:
		return "", &ValidationError{Field: "restaurantId", Reason: "required for a multi-restaurant order"}
	}
}

// GetRevenueMetrics aggregates revenue over delivered orders visible to p.
func (s *Service) GetRevenueMetrics(ctx context.Context, p auth.Principal, q RevenueQuery) (RevenueReport, error) {
	scope, err := ResolveScope(p, q.RestaurantID)
	if err != nil {
		return RevenueReport{}, err
	}
	orders, err := s.store.ListScoped(ctx, scope.Apply(Filter{
		From:          q.From,
		To:            q.To,
		DeliveredOnly: true,
	}))
	if err != nil {
		return RevenueReport{}, err
	}
	return s.agg.Aggregate(orders, scope, q.From, q.To), nil
}

func (s *Service) notify(ctx context.Context, e Event) {
	if err := s.notifier.Notify(ctx, e); err != nil {
		zctx.From(ctx).Warn("Notify order event",
			zap.String("event", string(e.Type)),
			zap.String("order_id", e.OrderID),
			zap.Error(err),
		)
	}
}
