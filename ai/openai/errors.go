package openai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/poiesic/sitesage/ai"
	"github.com/poiesic/sitesage/core"
)

// statusCode finds the HTTP status the client reports as
// "unexpected status code: 429".
var statusCode = regexp.MustCompile(`status code:? (\d{3})\b`)

// httpStatus returns the status code quoted in msg, or 0.
func httpStatus(msg string) int {
	m := statusCode.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}

// classify maps a client error onto the retrieval error taxonomy while
// keeping the original error in the chain.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", core.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	msg := strings.ToLower(err.Error())
	status := httpStatus(msg)
	switch {
	case status == 429, strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return fmt.Errorf("%w: %w", core.ErrRateLimited, err)
	case status == 400, strings.Contains(msg, "invalid_request"), strings.Contains(msg, "invalid request"):
		return fmt.Errorf("%w: %w", ai.ErrInvalidRequest, err)
	}
	return err
}
