package batch

import (
	"context"
	"fmt"
	"strings"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Result is the outcome of the operation for one UID
type Result struct {
	UID     string `json:"uid"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Succeeded reports whether the operation succeeded for this UID
func (r Result) Succeeded() bool {
	return r.Status == statusSuccess
}

// Summary aggregates the results of a batch
type Summary struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// AllFailed reports whether no item of a non-empty batch succeeded
func (s Summary) AllFailed() bool {
	return s.Total > 0 && s.Successful == 0
}

// ParseStringOrArray accepts a single string or an array of strings.
// Values are trimmed and duplicates are dropped, keeping the first occurrence.
func ParseStringOrArray(param interface{}, paramName string) ([]string, error) {
	if param == nil {
		return nil, fmt.Errorf("%s is required", paramName)
	}

	var raw []string
	switch v := param.(type) {
	case string:
		raw = []string{v}
	case []string:
		raw = v
	case []interface{}:
		raw = make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", paramName, i)
			}
			raw = append(raw, s)
		}
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", paramName)
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", paramName)
	}

	seen := make(map[string]struct{}, len(raw))
	values := make([]string, 0, len(raw))
	for i, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			if len(raw) == 1 {
				return nil, fmt.Errorf("%s cannot be empty", paramName)
			}
			return nil, fmt.Errorf("%s[%d] cannot be empty", paramName, i)
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		values = append(values, s)
	}
	return values, nil
}

// Process runs fn for every UID in order and collects the results.
// Once ctx is done the remaining UIDs are reported as failed with ctx.Err().
func Process(ctx context.Context, uids []string, fn func(ctx context.Context, uid string) (string, error)) Summary {
	summary := Summary{
		Total:   len(uids),
		Results: make([]Result, 0, len(uids)),
	}

	for _, uid := range uids {
		var result Result
		if err := ctx.Err(); err != nil {
			result = NewErrorResult(uid, err)
		} else if msg, err := fn(ctx, uid); err != nil {
			result = NewErrorResult(uid, err)
		} else {
			result = NewSuccessResult(uid, msg)
		}

		if result.Succeeded() {
			summary.Successful++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, result)
	}
	return summary
}

// NewSuccessResult creates a success result
func NewSuccessResult(uid, message string) Result {
	return Result{
		UID:     uid,
		Status:  statusSuccess,
		Message: message,
	}
}

// NewErrorResult creates an error result
func NewErrorResult(uid string, err error) Result {
	return Result{
		UID:    uid,
		Status: statusError,
		Error:  err.Error(),
	}
}
