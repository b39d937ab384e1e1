package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nsqe/nsqe/api"
)

func TestExitCodeMapsWrappedCliError(t *testing.T) {
	require.Equal(t, ExitSuccess, ExitCode(nil))
	require.Equal(t, ExitInternal, ExitCode(errors.New("boom")))
	require.Equal(t, ExitCapacityExhausted, ExitCode(exitErr(ExitCapacityExhausted, errors.New("full"))))
}

func TestExitCodeForMapsStatusErrorKinds(t *testing.T) {
	cases := []struct {
		kind string
		want int
	}{
		{"invalid_input", ExitInvalidInput},
		{"no_viable_route", ExitNoViableRoute},
		{"capacity_exhausted", ExitCapacityExhausted},
		{"overloaded", ExitCapacityExhausted},
		{"internal", ExitInternal},
		{"node_lost", ExitInternal},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, exitCodeFor(api.StatusError{Kind: tc.kind}))
	}
}

func TestExitCodeForNonStatusErrorFallsBackToInternal(t *testing.T) {
	require.Equal(t, ExitInternal, exitCodeFor(errors.New("connection refused")))
}
