package remote

import (
	"errors"
	"fmt"

	"github.com/imroc/req/v3"
)

var (
	ErrNoServerURL = errors.New("remote: server url missing")
)

const (
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or malformed request
	CodeAccessDenied   = "E_ACCESS_DENIED"   // auth failure or permission denied
	CodeStaleRevision  = "E_STALE_REVISION"  // commit base revision no longer current
	CodeRepoNotFound   = "E_REPO_NOT_FOUND"  // the repository does not exist
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
)

// APIError is a structured rejection from the remote repository service.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote api error: %s - %s", e.Code, e.Message)
}

// ErrorCode returns the E_* code carried by the rejection.
func (e *APIError) ErrorCode() string { return e.Code }

// handleAPIError folds the common transport-error / api-error pattern into a
// single wrapped error per operation.
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s: %w", operation, requestErr)
	}

	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*APIError); ok && apiErr.Code != "" {
			return fmt.Errorf("%s: %w", operation, apiErr)
		}
		return fmt.Errorf("api error: %s: %s", operation, resp.Status)
	}

	return nil
}
