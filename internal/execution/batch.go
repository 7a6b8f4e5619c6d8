package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codefionn/runpad/internal/apperr"
	"github.com/codefionn/runpad/internal/logger"
	"github.com/codefionn/runpad/internal/metrics"
)

// DefaultBatchTimeout bounds a batch run when the caller passes zero.
const DefaultBatchTimeout = 15 * time.Second

// Result is the outcome of a batch run. Stdout and Stderr are verbatim.
type Result struct {
	Stdout   string
	Stderr   string
	Success  bool
	Duration time.Duration
}

type runRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

type runResponse struct {
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
	Success *bool  `json:"success,omitempty"`
}

// BatchRunner submits whole programs to the batch execution service.
type BatchRunner struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewBatchRunner creates a runner posting to baseURL + "/run".
func NewBatchRunner(baseURL string) *BatchRunner {
	return &BatchRunner{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		log:        logger.Global().WithPrefix("batch"),
	}
}

// Run executes code and waits for the single response. The timeout is
// enforced on the client regardless of any server-side limit.
//
// Errors carry apperr kinds: KindTimeout when the bound is exceeded,
// KindUserCancelled when ctx is cancelled by the caller, and
// KindExecutionUnavailable for network failures and non-2xx responses.
func (r *BatchRunner) Run(ctx context.Context, language, code string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultBatchTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(runRequest{Language: language, Code: code})
	if err != nil {
		return Result{}, apperr.Wrap(err, apperr.KindInternal, "failed to encode run request")
	}
	req, err := http.NewRequestWithContext(runCtx, http.MethodPost, r.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return Result{}, apperr.Wrap(err, apperr.KindExecutionUnavailable, "invalid execution endpoint")
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Result{}, r.classifyErr(ctx, runCtx, err, timeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Result{}, apperr.Errorf(apperr.KindExecutionUnavailable,
			"execution service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out runResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if runCtx.Err() != nil {
			return Result{}, r.classifyErr(ctx, runCtx, err, timeout)
		}
		return Result{}, apperr.Wrap(err, apperr.KindExecutionUnavailable, "malformed execution response")
	}

	elapsed := time.Since(start)
	metrics.RecordBatchDuration(elapsed)

	success := out.Stderr == ""
	if out.Success != nil {
		success = *out.Success
	}
	r.log.Debug("%s run finished in %s (success=%t)", language, elapsed, success)

	return Result{
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		Success:  success,
		Duration: elapsed,
	}, nil
}

func (r *BatchRunner) classifyErr(parent, runCtx context.Context, err error, timeout time.Duration) error {
	switch {
	case parent.Err() != nil:
		return apperr.Wrap(parent.Err(), apperr.KindUserCancelled, "run cancelled")
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return apperr.Errorf(apperr.KindTimeout, "execution timed out after %s", timeout)
	default:
		r.log.Warn("Execution service unreachable: %v", err)
		return apperr.Wrap(err, apperr.KindExecutionUnavailable, fmt.Sprintf("execution service unreachable at %s", r.baseURL))
	}
}
