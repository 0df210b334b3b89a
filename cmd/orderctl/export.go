package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export delivered orders as gzipped NDJSON",
	Long: `export writes one JSON object per delivered order, gzip compressed.
The destination is a local path or an s3://bucket/key URL.`,
	RunE: runExport,
}

func init() {
	addRangeFlags(exportCmd)
	f := exportCmd.Flags()
	f.String("restaurant", "", "Only orders that include this restaurant")
	f.String("out", "orders.ndjson.gz", "Local path or s3://bucket/key")
	f.String("region", "us-east-1", "AWS region for s3 destinations")
}

// exportRecord is one NDJSON line. Money is written as decimal strings.
type exportRecord struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	RestaurantIDs []string        `json:"restaurantIds"`
	DeliveryType  string          `json:"deliveryType"`
	PaymentMethod string          `json:"paymentMethod"`
	Paid          bool            `json:"payment"`
	SubTotal      decimal.Decimal `json:"subTotal"`
	DeliveryFee   decimal.Decimal `json:"deliveryFee"`
	PromoDiscount decimal.Decimal `json:"promoDiscount"`
	Total         decimal.Decimal `json:"total"`
	Items         []order.Item    `json:"items"`
	CreatedAt     time.Time       `json:"createdAt"`
	DeliveredAt   *time.Time      `json:"deliveredAt,omitempty"`
}

func newExportRecord(o order.Order) exportRecord {
	rec := exportRecord{
		ID:            o.ID,
		UserID:        o.UserID,
		RestaurantIDs: o.RestaurantIDs(),
		DeliveryType:  string(o.DeliveryType),
		PaymentMethod: string(o.PaymentMethod),
		Paid:          o.Paid,
		SubTotal:      o.SubTotal,
		DeliveryFee:   o.DeliveryFee,
		PromoDiscount: o.PromoDiscount,
		Total:         o.Total,
		Items:         o.Items,
		CreatedAt:     o.CreatedAt,
	}
	for _, t := range o.Timeline {
		if t.Status == order.StatusDelivered && t.RestaurantID == "" {
			at := t.At
			rec.DeliveredAt = &at
		}
	}
	return rec
}

// writeExport streams orders to w as gzipped NDJSON and returns the number
// of records written.
func writeExport(w io.Writer, orders []order.Order) (int, error) {
	zw := pgzip.NewWriter(w)
	bw := bufio.NewWriter(zw)
	enc := json.NewEncoder(bw)

	for i, o := range orders {
		if err := enc.Encode(newExportRecord(o)); err != nil {
			return i, errors.Wrapf(err, "encode order %s", o.ID)
		}
	}
	if err := bw.Flush(); err != nil {
		return len(orders), errors.Wrap(err, "flush")
	}
	if err := zw.Close(); err != nil {
		return len(orders), errors.Wrap(err, "close gzip")
	}
	return len(orders), nil
}

// parseS3URL splits s3://bucket/key. ok is false for local paths.
func parseS3URL(raw string) (bucket, key string, ok bool, err error) {
	if !strings.HasPrefix(raw, "s3://") {
		return "", "", false, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", true, errors.Wrap(err, "parse s3 url")
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", true, errors.Errorf("s3 url %q needs a bucket and a key", raw)
	}
	return u.Host, key, true, nil
}

func uploadS3(ctx context.Context, region, bucket, key string, body []byte) error {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return errors.Wrap(err, "load aws config")
	}
	client := s3.NewFromConfig(cfg)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return errors.Wrapf(err, "upload s3://%s/%s", bucket, key)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
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
	f := cmd.Flags()
	restaurant, _ := f.GetString("restaurant")
	out, _ := f.GetString("out")
	region, _ := f.GetString("region")

	bucket, key, remote, err := parseS3URL(out)
	if err != nil {
		return err
	}

	filter := order.Filter{From: from, To: to, DeliveredOnly: true}
	if restaurant != "" {
		filter.RestaurantIDs = []string{restaurant}
	}
	orders, err := e.backend.Orders.List(ctx, filter)
	if err != nil {
		return errors.Wrap(err, "list delivered orders")
	}

	var n int
	if remote {
		var buf bytes.Buffer
		if n, err = writeExport(&buf, orders); err != nil {
			return err
		}
		if err := uploadS3(ctx, region, bucket, key, buf.Bytes()); err != nil {
			return err
		}
	} else {
		file, err := os.Create(out)
		if err != nil {
			return errors.Wrap(err, "create output")
		}
		n, err = writeExport(file, orders)
		if cerr := file.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "close output")
		}
		if err != nil {
			return err
		}
	}

	e.lg.Info("Export complete", zap.Int("orders", n), zap.String("out", out))
	return nil
}
