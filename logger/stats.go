package logger

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

var (
	errorsCatalog      int64
	errorsSnapshot     int64
	warnsCatalog       int64
	warnsSnapshot      int64
	productsFetched    int64
	productsSkipped    int64
	snapshotsProcessed int64
)

func recordWarn(component string) {
	if strings.Contains(component, "catalog") {
		atomic.AddInt64(&warnsCatalog, 1)
	} else if strings.Contains(component, "snapshot") {
		atomic.AddInt64(&warnsSnapshot, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "catalog") {
		atomic.AddInt64(&errorsCatalog, 1)
	} else if strings.Contains(component, "snapshot") {
		atomic.AddInt64(&errorsSnapshot, 1)
	}
}

// IncrementProductFetched records one product whose snapshot fetch
// completed, along with the number of snapshot rows it yielded.
func IncrementProductFetched(snapshots int) {
	atomic.AddInt64(&productsFetched, 1)
	atomic.AddInt64(&snapshotsProcessed, int64(snapshots))
}

// IncrementProductSkipped records one product dropped from the run.
func IncrementProductSkipped() {
	atomic.AddInt64(&productsSkipped, 1)
}

// RunSummary logs the accumulated run counters and publishes them to
// CloudWatch when the client is configured. It is intended to be called
// once, at the end of a run.
func RunSummary(ctx context.Context, log *Log, duration time.Duration) {
	fields := Fields{
		"products_fetched":    atomic.LoadInt64(&productsFetched),
		"products_skipped":    atomic.LoadInt64(&productsSkipped),
		"snapshots_processed": atomic.LoadInt64(&snapshotsProcessed),
		"errors_catalog":      atomic.LoadInt64(&errorsCatalog),
		"errors_snapshot":     atomic.LoadInt64(&errorsSnapshot),
		"warns_catalog":       atomic.LoadInt64(&warnsCatalog),
		"warns_snapshot":      atomic.LoadInt64(&warnsSnapshot),
		"duration_ms":         float64(duration.Nanoseconds()) / 1e6,
	}

	log.WithComponent("summary").WithFields(fields).Info("run summary")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("ProductsFetched"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["products_fetched"].(int64)))},
		{MetricName: aws.String("ProductsSkipped"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["products_skipped"].(int64)))},
		{MetricName: aws.String("SnapshotsProcessed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["snapshots_processed"].(int64)))},
		{MetricName: aws.String("ErrorsSnapshot"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_snapshot"].(int64)))},
		{MetricName: aws.String("RunDurationMs"), Unit: cwtypes.StandardUnitMilliseconds, Value: aws.Float64(fields["duration_ms"].(float64))},
	}
	publishMetrics(ctx, data)
}
