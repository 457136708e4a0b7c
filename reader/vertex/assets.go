package vertex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"vertexflow/logger"
	"vertexflow/models"
)

// FetchProducts retrieves the product catalog from the assets endpoint and
// returns the product ID to ticker mapping. When the same product ID
// appears twice the later entry wins. A failure here is fatal for the run:
// nothing downstream can be labelled without the mapping.
func (c *Client) FetchProducts(ctx context.Context) (map[int32]string, error) {
	log := c.log.WithComponent("catalog_reader")
	url := c.config.Indexer.AssetsURL

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Op: "fetch products", URL: url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{Op: "fetch products", URL: url, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "fetch products", URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &NetworkError{Op: "fetch products", URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "fetch products", URL: url, Err: err}
	}

	var entries []models.AssetEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, &DataError{Op: "fetch products", Reason: "undecodable assets response", Err: err}
	}

	mapping := make(map[int32]string, len(entries))
	for _, entry := range entries {
		mapping[entry.ProductID] = entry.TickerID
	}

	log.WithFields(logger.Fields{"products": len(mapping)}).Info("product catalog fetched")
	return mapping, nil
}
