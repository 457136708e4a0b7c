package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vertexflow/config"
	"vertexflow/logger"
	"vertexflow/models"
	"vertexflow/processor"
	"vertexflow/reader/vertex"
	"vertexflow/writer"
)

// Indexer is the slice of the Vertex client the pipeline needs.
type Indexer interface {
	FetchProducts(ctx context.Context) (map[int32]string, error)
	FetchSnapshots(ctx context.Context, productID int32, maxTime int64) ([]models.FundingSnapshot, error)
}

// reportMirror uploads a finished report body somewhere off-box.
type reportMirror interface {
	Upload(ctx context.Context, body string, runID string, at time.Time) error
}

// Pipeline runs one fetch-convert-average-rank-write pass over every
// product in the catalog.
type Pipeline struct {
	config  *config.Config
	indexer Indexer
	report  *writer.ReportWriter
	mirror  reportMirror
	log     *logger.Log
	now     func() time.Time
}

// New wires a Pipeline from the configuration: the indexer client, the
// report writer and, when enabled, the S3 mirror.
func New(cfg *config.Config) (*Pipeline, error) {
	p := &Pipeline{
		config:  cfg,
		indexer: vertex.NewClient(cfg),
		report:  writer.NewReportWriter(cfg),
		log:     logger.GetLogger(),
		now:     time.Now,
	}

	if cfg.Storage.S3.Enabled {
		mirror, err := writer.NewS3Mirror(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 mirror: %w", err)
		}
		p.mirror = mirror
	}

	return p, nil
}

type fetchResult struct {
	productID int32
	snapshots []models.FundingSnapshot
}

// Run executes one complete pass. A catalog failure aborts the run and
// leaves any previous report untouched; a per-product snapshot failure
// skips that product and continues. Run fails when no product yields data.
func (p *Pipeline) Run(ctx context.Context) error {
	start := p.now()
	runID := uuid.NewString()
	log := p.log.WithComponent("pipeline").WithFields(logger.Fields{"run_id": runID})

	catalog, err := p.indexer.FetchProducts(ctx)
	if err != nil {
		p.log.WithComponent("catalog_reader").WithError(err).Error("product catalog fetch failed")
		return fmt.Errorf("fetch product catalog: %w", err)
	}
	if len(catalog) == 0 {
		return fmt.Errorf("product catalog is empty")
	}

	// Ascending ID order keeps worker job assignment and the later merge
	// independent of map iteration order.
	ids := make([]int32, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	// One cutoff for the whole run so every product covers the same hours.
	maxTime := vertex.CutoffTime(p.now(), p.config.Window.Granularity, p.config.Window.CutoffSlack)

	log.WithFields(logger.Fields{
		"products": len(ids),
		"max_time": maxTime,
		"workers":  p.config.Fetch.MaxWorkers,
	}).Info("starting funding rate run")

	results := p.fetchAll(ctx, ids, maxTime)

	// A cancelled run must not replace the previous report with a partial
	// one; unfetched products are missing, not skipped.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled: %w", err)
	}

	averages := make(map[string]float64, len(results))
	for _, id := range ids {
		snapshots, ok := results[id]
		if !ok {
			continue
		}
		if len(snapshots) < p.config.Report.MinSamples {
			p.log.WithComponent("pipeline").WithFields(logger.Fields{
				"product_id": id,
				"ticker":     catalog[id],
				"snapshots":  len(snapshots),
				"min":        p.config.Report.MinSamples,
			}).Warn("not enough snapshots, dropping ticker")
			logger.IncrementProductSkipped()
			continue
		}

		avg, ok := processor.AverageRate(processor.HourlyRates(snapshots), p.config.Window.Count)
		if !ok {
			logger.IncrementProductSkipped()
			continue
		}
		averages[catalog[id]] = avg
	}

	if len(averages) == 0 {
		return fmt.Errorf("no snapshots retrieved for any product")
	}

	ranked := processor.RankAverages(averages)
	if err := p.report.Write(ranked); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	p.log.LogMetric("pipeline", "TickersRanked", len(ranked), "counter", logger.Fields{"run_id": runID})

	if p.mirror != nil {
		if err := p.mirror.Upload(ctx, p.report.Render(ranked), runID, p.now()); err != nil {
			// The local report stands even when the mirror is unreachable.
			log.WithError(err).Warn("report mirror upload failed")
		}
	}

	logger.RunSummary(ctx, p.log, time.Since(start))
	log.WithFields(logger.Fields{
		"tickers":  len(ranked),
		"duration": time.Since(start).String(),
	}).Info("funding rate run complete")
	return nil
}

// fetchAll fans the product IDs over a bounded worker pool. Failed
// products are logged and skipped; the returned map only holds products
// whose fetch succeeded.
func (p *Pipeline) fetchAll(ctx context.Context, ids []int32, maxTime int64) map[int32][]models.FundingSnapshot {
	jobs := make(chan int32)
	out := make(chan fetchResult)

	var wg sync.WaitGroup
	workers := p.config.Fetch.MaxWorkers
	if workers > len(ids) {
		workers = len(ids)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				snapshots, err := p.indexer.FetchSnapshots(ctx, id, maxTime)
				if err != nil {
					p.log.WithComponent("snapshot_reader").WithError(err).WithFields(logger.Fields{
						"product_id": id,
					}).Warn("snapshot fetch failed, skipping product")
					logger.IncrementProductSkipped()
					continue
				}
				logger.IncrementProductFetched(len(snapshots))
				select {
				case out <- fetchResult{productID: id, snapshots: snapshots}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, id := range ids {
			select {
			case jobs <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make(map[int32][]models.FundingSnapshot, len(ids))
	for res := range out {
		results[res.productID] = res.snapshots
	}
	return results
}
