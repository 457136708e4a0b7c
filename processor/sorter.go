package processor

import (
	"sort"

	"vertexflow/models"
)

// RankAverages orders per-ticker averages by descending rate. Equal rates
// are broken by ticker name ascending so two runs over the same data
// produce identical reports.
func RankAverages(averages map[string]float64) []models.AverageRate {
	ranked := make([]models.AverageRate, 0, len(averages))
	for ticker, value := range averages {
		ranked = append(ranked, models.AverageRate{Ticker: ticker, Value: value})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Value != ranked[j].Value {
			return ranked[i].Value > ranked[j].Value
		}
		return ranked[i].Ticker < ranked[j].Ticker
	})

	return ranked
}
