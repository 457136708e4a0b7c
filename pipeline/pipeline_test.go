package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	appconfig "vertexflow/config"
	"vertexflow/logger"
	"vertexflow/models"
	"vertexflow/writer"
)

type fakeIndexer struct {
	catalog    map[int32]string
	catalogErr error
	snapshots  map[int32][]models.FundingSnapshot
	failIDs    map[int32]bool
	onFetch    func(productID int32)

	mu       sync.Mutex
	maxTimes []int64
}

func (f *fakeIndexer) FetchProducts(ctx context.Context) (map[int32]string, error) {
	if f.catalogErr != nil {
		return nil, f.catalogErr
	}
	return f.catalog, nil
}

func (f *fakeIndexer) FetchSnapshots(ctx context.Context, productID int32, maxTime int64) ([]models.FundingSnapshot, error) {
	f.mu.Lock()
	f.maxTimes = append(f.maxTimes, maxTime)
	f.mu.Unlock()

	if f.onFetch != nil {
		f.onFetch(productID)
	}
	if f.failIDs[productID] {
		return nil, fmt.Errorf("product %d unavailable", productID)
	}
	return f.snapshots[productID], nil
}

type fakeMirror struct {
	mu     sync.Mutex
	bodies []string
}

func (m *fakeMirror) Upload(ctx context.Context, body string, runID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies = append(m.bodies, body)
	return nil
}

// constantSnapshots builds n hourly snapshots with a constant raw rate,
// most recent first.
func constantSnapshots(productID int32, n int, raw float64) []models.FundingSnapshot {
	snaps := make([]models.FundingSnapshot, n)
	base := int64(1700006400)
	for i := 0; i < n; i++ {
		snaps[i] = models.FundingSnapshot{
			ProductID: productID,
			Timestamp: base - int64(i)*3600,
			Raw24h:    raw,
		}
	}
	return snaps
}

func testConfig(t *testing.T) *appconfig.Config {
	t.Helper()
	return &appconfig.Config{
		Vertexflow: appconfig.VertexflowConfig{Name: "vertexflow", Version: "test"},
		Window:     appconfig.WindowConfig{Count: 72, Granularity: 3600, CutoffSlack: 5 * time.Second},
		Fetch: appconfig.FetchConfig{
			MaxWorkers: 3,
			RateLimit:  appconfig.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 10},
		},
		Report: appconfig.ReportConfig{
			Path:       filepath.Join(t.TempDir(), "vertexrates.txt"),
			Precision:  6,
			MinSamples: 1,
		},
	}
}

func newTestPipeline(cfg *appconfig.Config, idx Indexer) *Pipeline {
	return &Pipeline{
		config:  cfg,
		indexer: idx,
		report:  writer.NewReportWriter(cfg),
		log:     logger.GetLogger(),
		now:     func() time.Time { return time.Unix(1700010000, 0) },
	}
}

func TestRunEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	idx := &fakeIndexer{
		catalog: map[int32]string{1: "BTC-PERP_USDC", 2: "ETH-PERP_USDC"},
		snapshots: map[int32][]models.FundingSnapshot{
			1: constantSnapshots(1, 72, 36e18),
			2: constantSnapshots(2, 72, 12e18),
		},
	}
	p := newTestPipeline(cfg, idx)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, err := os.ReadFile(cfg.Report.Path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), string(data))
	}
	if lines[2] != "BTC-PERP_USDC\t150.000000" {
		t.Errorf("unexpected first entry: %q", lines[2])
	}
	if lines[3] != "ETH-PERP_USDC\t50.000000" {
		t.Errorf("unexpected second entry: %q", lines[3])
	}
}

func TestRunIdempotent(t *testing.T) {
	cfg := testConfig(t)
	idx := &fakeIndexer{
		catalog: map[int32]string{1: "BTC-PERP_USDC", 2: "ETH-PERP_USDC", 3: "SOL-PERP_USDC"},
		snapshots: map[int32][]models.FundingSnapshot{
			1: constantSnapshots(1, 72, 36e18),
			2: constantSnapshots(2, 72, 12e18),
			3: constantSnapshots(3, 72, -6e18),
		},
	}
	p := newTestPipeline(cfg, idx)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, err := os.ReadFile(cfg.Report.Path)
	if err != nil {
		t.Fatalf("read first report: %v", err)
	}

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, err := os.ReadFile(cfg.Report.Path)
	if err != nil {
		t.Fatalf("read second report: %v", err)
	}

	if string(first) != string(second) {
		t.Fatal("identical input data produced different reports")
	}
}

func TestRunCatalogFailureLeavesReport(t *testing.T) {
	cfg := testConfig(t)

	// Seed a previous report.
	if err := os.WriteFile(cfg.Report.Path, []byte("previous\n"), 0o644); err != nil {
		t.Fatalf("seed report: %v", err)
	}

	idx := &fakeIndexer{catalogErr: fmt.Errorf("gateway unreachable")}
	p := newTestPipeline(cfg, idx)

	if err := p.Run(context.Background()); err == nil {
		t.Fatal("expected error when catalog fetch fails")
	}

	data, err := os.ReadFile(cfg.Report.Path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if string(data) != "previous\n" {
		t.Fatalf("previous report was modified: %q", string(data))
	}
}

func TestRunSkipsFailingProduct(t *testing.T) {
	cfg := testConfig(t)
	idx := &fakeIndexer{
		catalog: map[int32]string{1: "BTC-PERP_USDC", 2: "ETH-PERP_USDC"},
		snapshots: map[int32][]models.FundingSnapshot{
			1: constantSnapshots(1, 72, 36e18),
		},
		failIDs: map[int32]bool{2: true},
	}
	p := newTestPipeline(cfg, idx)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, err := os.ReadFile(cfg.Report.Path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(data), "BTC-PERP_USDC") {
		t.Error("healthy product missing from report")
	}
	if strings.Contains(string(data), "ETH-PERP_USDC") {
		t.Error("failed product should not appear in report")
	}
}

func TestRunShortHistoryPartialAverage(t *testing.T) {
	cfg := testConfig(t)
	idx := &fakeIndexer{
		catalog: map[int32]string{1: "NEW-PERP_USDC"},
		snapshots: map[int32][]models.FundingSnapshot{
			1: constantSnapshots(1, 10, 24e18),
		},
	}
	p := newTestPipeline(cfg, idx)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, err := os.ReadFile(cfg.Report.Path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	// 24e18 raw is 100%/h; a constant series averages to itself over any
	// number of samples.
	if !strings.Contains(string(data), "NEW-PERP_USDC\t100.000000") {
		t.Fatalf("partial average not applied: %q", string(data))
	}
}

func TestRunMinSamplesDropsTicker(t *testing.T) {
	cfg := testConfig(t)
	cfg.Report.MinSamples = 72
	idx := &fakeIndexer{
		catalog: map[int32]string{1: "NEW-PERP_USDC", 2: "BTC-PERP_USDC"},
		snapshots: map[int32][]models.FundingSnapshot{
			1: constantSnapshots(1, 10, 24e18),
			2: constantSnapshots(2, 72, 36e18),
		},
	}
	p := newTestPipeline(cfg, idx)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, err := os.ReadFile(cfg.Report.Path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if strings.Contains(string(data), "NEW-PERP_USDC") {
		t.Error("short-history ticker should be dropped when below min_samples")
	}
	if !strings.Contains(string(data), "BTC-PERP_USDC") {
		t.Error("full-history ticker missing")
	}
}

func TestRunAllProductsFail(t *testing.T) {
	cfg := testConfig(t)
	idx := &fakeIndexer{
		catalog: map[int32]string{1: "BTC-PERP_USDC"},
		failIDs: map[int32]bool{1: true},
	}
	p := newTestPipeline(cfg, idx)

	if err := p.Run(context.Background()); err == nil {
		t.Fatal("expected error when every product fails")
	}
	if _, err := os.Stat(cfg.Report.Path); !os.IsNotExist(err) {
		t.Error("no report should be written when every product fails")
	}
}

func TestRunCancelledMidFetchLeavesReport(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fetch.MaxWorkers = 1 // fetch in ascending ID order

	// Seed a previous complete report.
	previous := "Ticker\tAverage Funding Rate (%)\n---------------------------------\nOLD-PERP_USDC\t1.000000\n"
	if err := os.WriteFile(cfg.Report.Path, []byte(previous), 0o644); err != nil {
		t.Fatalf("seed report: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	idx := &fakeIndexer{
		catalog: map[int32]string{1: "BTC-PERP_USDC", 2: "ETH-PERP_USDC", 3: "SOL-PERP_USDC"},
		snapshots: map[int32][]models.FundingSnapshot{
			1: constantSnapshots(1, 72, 36e18),
			2: constantSnapshots(2, 72, 12e18),
			3: constantSnapshots(3, 72, -6e18),
		},
		onFetch: func(productID int32) {
			if productID == 2 {
				cancel()
			}
		},
	}
	p := newTestPipeline(cfg, idx)

	if err := p.Run(ctx); err == nil {
		t.Fatal("expected error when run is cancelled mid-fetch")
	}

	data, err := os.ReadFile(cfg.Report.Path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if string(data) != previous {
		t.Fatalf("cancelled run replaced the previous report: %q", string(data))
	}
}

func TestRunSharedCutoff(t *testing.T) {
	cfg := testConfig(t)
	idx := &fakeIndexer{
		catalog: map[int32]string{1: "A-PERP", 2: "B-PERP", 3: "C-PERP"},
		snapshots: map[int32][]models.FundingSnapshot{
			1: constantSnapshots(1, 72, 1e18),
			2: constantSnapshots(2, 72, 1e18),
			3: constantSnapshots(3, 72, 1e18),
		},
	}
	p := newTestPipeline(cfg, idx)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// now=1700010000 is exactly on the hour, so the cutoff is now plus the
	// 5s slack.
	want := int64(1700010005)
	if len(idx.maxTimes) != 3 {
		t.Fatalf("expected 3 snapshot fetches, got %d", len(idx.maxTimes))
	}
	for _, got := range idx.maxTimes {
		if got != want {
			t.Fatalf("cutoff %d differs from expected shared cutoff %d", got, want)
		}
	}
}

func TestRunMirrorReceivesReport(t *testing.T) {
	cfg := testConfig(t)
	idx := &fakeIndexer{
		catalog: map[int32]string{1: "BTC-PERP_USDC"},
		snapshots: map[int32][]models.FundingSnapshot{
			1: constantSnapshots(1, 72, 36e18),
		},
	}
	mirror := &fakeMirror{}
	p := newTestPipeline(cfg, idx)
	p.mirror = mirror

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, err := os.ReadFile(cfg.Report.Path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if len(mirror.bodies) != 1 {
		t.Fatalf("expected 1 mirrored upload, got %d", len(mirror.bodies))
	}
	if mirror.bodies[0] != string(data) {
		t.Fatal("mirrored body differs from local report")
	}
}
