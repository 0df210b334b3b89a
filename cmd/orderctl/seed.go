package main

import (
	"context"
	"math/rand"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jaswdr/faker"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/delivery-orders/internal/domain/catalog"
	"github.com/xenking/delivery-orders/internal/domain/order"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the store with fake restaurants and orders",
	RunE:  runSeed,
}

func init() {
	f := seedCmd.Flags()
	f.Int("restaurants", 10, "Number of restaurants to upsert")
	f.Int("orders", 100, "Number of orders to place")
	f.Int("users", 25, "Number of distinct customers")
	f.Int64("seed", 42, "Random seed")
	f.Float64("delivered-ratio", 0.6, "Share of orders advanced to delivered")
	f.Int("workers", 8, "Concurrent order placements")
}

// generator builds deterministic demo data.
type generator struct {
	fake faker.Faker
}

func newGenerator(seed int64) *generator {
	return &generator{fake: faker.NewWithSeed(rand.NewSource(seed))}
}

func (g *generator) restaurants(n int) []catalog.Restaurant {
	out := make([]catalog.Restaurant, n)
	for i := range out {
		modes := []string{string(order.DeliveryDriver)}
		if g.fake.Bool() {
			modes = append(modes, string(order.DeliveryDrone))
		}
		out[i] = catalog.Restaurant{
			ID:            "R" + strconv.Itoa(i+1),
			Name:          g.fake.Company().Name(),
			OwnerID:       "owner-" + strconv.Itoa(i+1),
			DeliveryModes: modes,
		}
	}
	return out
}

func (g *generator) users(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = g.fake.UUID().V4()
	}
	return out
}

// cart picks one to three restaurants and one to three dishes from each.
// Drone delivery is chosen only when every picked restaurant offers it.
func (g *generator) cart(rs []catalog.Restaurant, users []string) order.PlaceOrderRequest {
	want := min(g.fake.IntBetween(1, 3), len(rs))
	picked := make([]int, 0, want)
	for len(picked) < want {
		if idx := g.fake.IntBetween(0, len(rs)-1); !slices.Contains(picked, idx) {
			picked = append(picked, idx)
		}
	}

	drone := true
	var items []order.CartItem
	for _, idx := range picked {
		r := rs[idx]
		drone = drone && r.Supports(string(order.DeliveryDrone))
		for range g.fake.IntBetween(1, 3) {
			price := decimal.NewFromInt(int64(g.fake.IntBetween(3, 40)) * 5000)
			items = append(items, order.CartItem{
				FoodID:       r.ID + "-" + g.fake.Lorem().Word(),
				RestaurantID: r.ID,
				Name:         g.fake.Lorem().Word(),
				Price:        order.Num(price),
				Quantity:     order.RawNumber(strconv.Itoa(g.fake.IntBetween(1, 4))),
			})
		}
	}

	req := order.PlaceOrderRequest{
		UserID:        users[g.fake.IntBetween(0, len(users)-1)],
		Items:         items,
		Address:       map[string]any{"street": g.fake.Address().StreetAddress(), "city": g.fake.Address().City()},
		DeliveryType:  order.DeliveryDriver,
		PaymentMethod: order.PaymentCOD,
	}
	if drone && g.fake.Bool() {
		req.DeliveryType = order.DeliveryDrone
	}
	if g.fake.Bool() {
		req.PaymentMethod = order.PaymentCard
	}
	return req
}

func runSeed(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	nRestaurants, _ := f.GetInt("restaurants")
	nOrders, _ := f.GetInt("orders")
	nUsers, _ := f.GetInt("users")
	seed, _ := f.GetInt64("seed")
	ratio, _ := f.GetFloat64("delivered-ratio")
	workers, _ := f.GetInt("workers")
	if nRestaurants < 1 || nUsers < 1 {
		return errors.New("need at least one restaurant and one user")
	}

	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close(context.Background())
	ctx = zctx.Base(ctx, e.lg)

	gen := newGenerator(seed)
	rs := gen.restaurants(nRestaurants)
	for _, r := range rs {
		if err := e.backend.Restaurants.Upsert(ctx, r); err != nil {
			return err
		}
	}
	users := gen.users(nUsers)

	// Carts are generated up front so the output does not depend on
	// worker scheduling.
	type job struct {
		req     order.PlaceOrderRequest
		deliver bool
	}
	jobs := make([]job, nOrders)
	for i := range jobs {
		jobs[i] = job{req: gen.cart(rs, users), deliver: gen.fake.Float64(2, 0, 1) < ratio}
	}

	var placed, delivered atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, j := range jobs {
		g.Go(func() error {
			o, err := e.orders.PlaceOrder(gctx, j.req)
			if err != nil {
				return errors.Wrap(err, "place order")
			}
			placed.Add(1)
			if !j.deliver {
				return nil
			}
			if o.PaymentMethod == order.PaymentCard {
				if err := e.orders.ConfirmPayment(gctx, o.ID, true); err != nil {
					return errors.Wrapf(err, "confirm payment %s", o.ID)
				}
			}
			if err := advanceToDelivered(gctx, e.orders, o.ID); err != nil {
				return err
			}
			delivered.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	e.lg.Info("Seed complete",
		zap.Int("restaurants", len(rs)),
		zap.Int64("orders", placed.Load()),
		zap.Int64("delivered", delivered.Load()),
	)
	return nil
}

func advanceToDelivered(ctx context.Context, svc *order.Service, id string) error {
	for _, phase := range []order.Phase{order.PhaseDelivering, order.PhaseDelivered} {
		if _, err := svc.UpdateDeliveryPhase(ctx, adminPrincipal, id, order.PhaseUpdate{Phase: &phase}); err != nil {
			return errors.Wrapf(err, "advance %s to %s", id, phase)
		}
	}
	return nil
}
