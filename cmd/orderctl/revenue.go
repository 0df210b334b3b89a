package main

import (
	"context"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/spf13/cobra"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

const dateLayout = "2006-01-02"

var revenueCmd = &cobra.Command{
	Use:   "revenue",
	Short: "Print the revenue report as JSON",
	RunE:  runRevenue,
}

func init() {
	addRangeFlags(revenueCmd)
	revenueCmd.Flags().String("restaurant", "", "Restrict the report to one restaurant")
}

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "Start date (YYYY-MM-DD), inclusive")
	cmd.Flags().String("to", "", "End date (YYYY-MM-DD), inclusive")
}

// dateRange reads --from and --to as whole days in loc. The upper bound
// covers the entire "to" day.
func dateRange(cmd *cobra.Command, loc *time.Location) (from, to *time.Time, err error) {
	fromRaw, _ := cmd.Flags().GetString("from")
	toRaw, _ := cmd.Flags().GetString("to")
	if fromRaw != "" {
		t, err := time.ParseInLocation(dateLayout, fromRaw, loc)
		if err != nil {
			return nil, nil, errors.Wrap(err, "from")
		}
		from = &t
	}
	if toRaw != "" {
		t, err := time.ParseInLocation(dateLayout, toRaw, loc)
		if err != nil {
			return nil, nil, errors.Wrap(err, "to")
		}
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		to = &t
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, errors.New("to is before from")
	}
	return from, to, nil
}

func runRevenue(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close(context.Background())

	from, to, err := dateRange(cmd, e.loc)
	if err != nil {
		return err
	}
	restaurant, _ := cmd.Flags().GetString("restaurant")

	report, err := e.orders.GetRevenueMetrics(ctx, adminPrincipal, order.RevenueQuery{
		RestaurantID: restaurant,
		From:         from,
		To:           to,
	})
	if err != nil {
		return err
	}
	return writeReport(cmd.OutOrStdout(), report)
}

func writeReport(w io.Writer, r order.RevenueReport) error {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("summary")
	e.ObjStart()
	e.FieldStart("totalRevenue")
	e.Str(r.Summary.TotalRevenue.String())
	e.FieldStart("totalOrders")
	e.Int(r.Summary.TotalOrders)
	e.FieldStart("avgOrderValue")
	e.Str(r.Summary.AvgOrderValue.String())
	e.ObjEnd()

	e.FieldStart("restaurants")
	e.ArrStart()
	for _, rr := range r.Restaurants {
		e.ObjStart()
		e.FieldStart("restaurantId")
		e.Str(rr.RestaurantID)
		e.FieldStart("revenue")
		e.Str(rr.Revenue.String())
		e.FieldStart("orders")
		e.Int(rr.Orders)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("timeseries")
	e.ArrStart()
	for _, d := range r.Timeseries {
		e.ObjStart()
		e.FieldStart("day")
		e.Str(d.Day)
		e.FieldStart("revenue")
		e.Str(d.Revenue.String())
		e.FieldStart("orders")
		e.Int(d.Orders)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()

	if _, err := w.Write(append(e.Bytes(), '\n')); err != nil {
		return errors.Wrap(err, "write report")
	}
	return nil
}
