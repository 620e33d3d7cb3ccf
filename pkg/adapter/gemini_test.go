package adapter_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/recall/pkg/adapter"
	"google.golang.org/genai"
)

func TestIsRetriable(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name: "rate limited",
			err: genai.APIError{
				Code:    429,
				Status:  "RESOURCE_EXHAUSTED",
				Message: "quota exceeded",
			},
			expected: true,
		},
		{
			name: "server error",
			err: genai.APIError{
				Code:    500,
				Status:  "INTERNAL_ERROR",
				Message: "internal server error",
			},
			expected: true,
		},
		{
			name: "unavailable",
			err: genai.APIError{
				Code:    503,
				Status:  "UNAVAILABLE",
				Message: "service unavailable",
			},
			expected: true,
		},
		{
			name: "bad request",
			err: genai.APIError{
				Code:    400,
				Status:  "INVALID_ARGUMENT",
				Message: "invalid parameter format",
			},
			expected: false,
		},
		{
			name: "permission denied",
			err: genai.APIError{
				Code:    403,
				Status:  "PERMISSION_DENIED",
				Message: "caller does not have permission",
			},
			expected: false,
		},
		{
			name:     "transport failure",
			err:      errors.New("connection reset by peer"),
			expected: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gt.Equal(t, adapter.IsRetriableForTest(tc.err), tc.expected)
		})
	}
}
