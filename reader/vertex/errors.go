package vertex

import "fmt"

// NetworkError reports a transport failure or a non-success HTTP status
// from the indexer. During the catalog fetch it is fatal for the run;
// during a per-product snapshot fetch the product is skipped.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.URL)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DataError reports a malformed indexer response: undecodable JSON,
// missing fields or a non-numeric rate.
type DataError struct {
	Op     string
	Reason string
	Err    error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *DataError) Unwrap() error { return e.Err }
