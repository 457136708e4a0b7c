package models

import (
	"encoding/json"
)

// FundingSnapshot is one hourly observation of a product's funding rate.
// Raw24h is the 24-hour funding rate scaled by 1e18, as delivered by the
// archive endpoint.
type FundingSnapshot struct {
	ProductID int32   `json:"product_id"`
	Timestamp int64   `json:"timestamp"`
	Raw24h    float64 `json:"funding_rate_24h"`
}

// AverageRate is the ranked report entry for one ticker: the mean of its
// most recent hourly percentage rates.
type AverageRate struct {
	Ticker string  `json:"ticker"`
	Value  float64 `json:"value"`
}

// AssetEntry mirrors one element of the assets endpoint response.
type AssetEntry struct {
	ProductID int32  `json:"product_id"`
	TickerID  string `json:"ticker_id"`
}

// ArchiveInterval is the time window portion of an archive query.
type ArchiveInterval struct {
	Count       int   `json:"count"`
	Granularity int64 `json:"granularity"`
	MaxTime     int64 `json:"max_time"`
}

// ArchiveQuery is the request body for the archive market_snapshots call.
type ArchiveQuery struct {
	MarketSnapshots ArchiveSnapshotsQuery `json:"market_snapshots"`
}

// ArchiveSnapshotsQuery selects products and the interval to fetch.
type ArchiveSnapshotsQuery struct {
	Interval   ArchiveInterval `json:"interval"`
	ProductIDs []int32         `json:"product_ids"`
}

// ArchiveSnapshot mirrors one raw snapshot record from the archive
// response. FundingRates maps product ID (as a decimal string key) to the
// scaled 24h rate rendered as a decimal string.
type ArchiveSnapshot struct {
	Timestamp    json.Number       `json:"timestamp"`
	FundingRates map[string]string `json:"funding_rates"`
}

// ArchiveResponse is the top-level archive response envelope.
type ArchiveResponse struct {
	Snapshots []ArchiveSnapshot `json:"snapshots"`
}
