package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", Invalidf("top_k must be positive, got %d", 0), http.StatusBadRequest},
		{"wrapped invalid", fmt.Errorf("index: %w", ErrInvalidInput), http.StatusBadRequest},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"dependency", fmt.Errorf("embed: %w", ErrDependencyUnavailable), http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatusCode(tc.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrDimensionMismatch, http.StatusInternalServerError, "got %d want %d", 3, 384)
	assert.True(t, Is(err, ErrDimensionMismatch))
	assert.Contains(t, err.Error(), "got 3 want 384")
}
