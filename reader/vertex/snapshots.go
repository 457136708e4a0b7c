package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"vertexflow/models"
)

// CutoffTime rounds now down to the nearest granularity boundary and adds
// slack, so the snapshot written just after a funding event boundary is
// still inside the window. All products in a run share one cutoff.
func CutoffTime(now time.Time, granularity int64, slack time.Duration) int64 {
	ts := now.Unix()
	return ts - ts%granularity + int64(slack/time.Second)
}

// FetchSnapshots queries the archive endpoint for one product's hourly
// funding snapshots up to maxTime, most recent first. One HTTP request per
// product; no batching across products and no retries.
func (c *Client) FetchSnapshots(ctx context.Context, productID int32, maxTime int64) ([]models.FundingSnapshot, error) {
	url := c.config.Indexer.ArchiveURL

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Op: "fetch snapshots", URL: url, Err: err}
	}

	query := models.ArchiveQuery{
		MarketSnapshots: models.ArchiveSnapshotsQuery{
			Interval: models.ArchiveInterval{
				Count:       c.config.Window.Count,
				Granularity: c.config.Window.Granularity,
				MaxTime:     maxTime,
			},
			ProductIDs: []int32{productID},
		},
	}

	payload, err := json.Marshal(query)
	if err != nil {
		return nil, &DataError{Op: "fetch snapshots", Reason: "encode archive query", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &NetworkError{Op: "fetch snapshots", URL: url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "fetch snapshots", URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &NetworkError{Op: "fetch snapshots", URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "fetch snapshots", URL: url, Err: err}
	}

	var archive models.ArchiveResponse
	if err := json.Unmarshal(body, &archive); err != nil {
		return nil, &DataError{Op: "fetch snapshots", Reason: "undecodable archive response", Err: err}
	}

	key := strconv.FormatInt(int64(productID), 10)
	snapshots := make([]models.FundingSnapshot, 0, len(archive.Snapshots))
	for _, raw := range archive.Snapshots {
		ts, err := raw.Timestamp.Int64()
		if err != nil {
			return nil, &DataError{Op: "fetch snapshots", Reason: "non-numeric timestamp", Err: err}
		}

		rateStr, ok := raw.FundingRates[key]
		if !ok {
			return nil, &DataError{Op: "fetch snapshots", Reason: fmt.Sprintf("missing funding rate for product %d at %d", productID, ts)}
		}

		rate, err := strconv.ParseFloat(rateStr, 64)
		if err != nil {
			return nil, &DataError{Op: "fetch snapshots", Reason: fmt.Sprintf("non-numeric funding rate %q for product %d", rateStr, productID), Err: err}
		}

		snapshots = append(snapshots, models.FundingSnapshot{
			ProductID: productID,
			Timestamp: ts,
			Raw24h:    rate,
		})
	}

	return snapshots, nil
}
