package processor

import (
	"vertexflow/models"
)

// rateScale is the fixed-point scale the archive applies to 24h funding
// rates.
const rateScale = 1e18

// HourlyPercent converts a raw scaled 24-hour funding rate into an hourly
// percentage rate. Pure and sign-preserving; no rounding happens here,
// only at report formatting.
func HourlyPercent(raw float64) float64 {
	return raw / rateScale / 24 * 100
}

// HourlyRates converts a most-recent-first snapshot series into hourly
// percentage rates, preserving order.
func HourlyRates(snapshots []models.FundingSnapshot) []float64 {
	rates := make([]float64, len(snapshots))
	for i, s := range snapshots {
		rates[i] = HourlyPercent(s.Raw24h)
	}
	return rates
}

// AverageRate returns the arithmetic mean of the first window values of a
// most-recent-first rate series. With fewer than window values the mean is
// taken over whatever is available; callers enforce any minimum sample
// count. Returns ok=false for an empty series.
func AverageRate(rates []float64, window int) (float64, bool) {
	if len(rates) == 0 || window <= 0 {
		return 0, false
	}
	if len(rates) < window {
		window = len(rates)
	}

	sum := 0.0
	for _, r := range rates[:window] {
		sum += r
	}
	return sum / float64(window), true
}
