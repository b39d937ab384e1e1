package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nsqe/nsqe/errs"
)

func TestFromErrorMapsKnownSentinels(t *testing.T) {
	cases := []struct {
		err    error
		kind   string
		status int
	}{
		{errs.ErrInvalidInput, "invalid_input", http.StatusBadRequest},
		{errs.ErrCapacityExhausted, "capacity_exhausted", http.StatusServiceUnavailable},
		{errs.ErrNoViableRoute, "no_viable_route", http.StatusUnprocessableEntity},
		{errs.ErrNodeLost, "node_lost", http.StatusBadGateway},
		{errs.ErrDeadline, "deadline", http.StatusGatewayTimeout},
		{errs.ErrModelNotFound, "model_not_found", http.StatusNotFound},
	}
	for _, tc := range cases {
		se := FromError(fmt.Errorf("wrapped: %w", tc.err))
		require.Equal(t, tc.kind, se.Kind)
		require.Equal(t, tc.status, se.StatusCode)
	}
}

func TestFromErrorFallsBackToInternal(t *testing.T) {
	se := FromError(fmt.Errorf("boom"))
	require.Equal(t, "internal", se.Kind)
	require.Equal(t, http.StatusInternalServerError, se.StatusCode)
}

func TestFromErrorNilIsZeroValue(t *testing.T) {
	require.Equal(t, StatusError{}, FromError(nil))
}

func TestFinishReasonForMapsCancellationAndDeadline(t *testing.T) {
	require.Equal(t, FinishStop, FinishReasonFor(nil))
	require.Equal(t, FinishCancelled, FinishReasonFor(errs.ErrCancelled))
	require.Equal(t, FinishDeadline, FinishReasonFor(errs.ErrDeadline))
	require.Equal(t, FinishError, FinishReasonFor(fmt.Errorf("boom")))
}

func TestStatusErrorImplementsError(t *testing.T) {
	se := StatusError{Kind: "invalid_input", Message: "architecture must be set"}
	require.Equal(t, "invalid_input: architecture must be set", se.Error())

	bare := StatusError{Kind: "internal"}
	require.Equal(t, "internal", bare.Error())
}
