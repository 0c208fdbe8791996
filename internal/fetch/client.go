package fetch

import (
	"errors"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrNotFound marks a 404 from an external database, so callers can fall
// back to another source instead of failing the job outright.
var ErrNotFound = errors.New("not found")

// newHTTPClient builds the retrying HTTP client shared by all database
// clients. Retries cover transport-level failures only; a 404 is a result,
// not an error to retry.
func newHTTPClient(timeout time.Duration) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil

	return rc.StandardClient()
}
