package main

import (
	"testing"

	"github.com/brojonat/slotrelay/service/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileJQFilters_Invalid(t *testing.T) {
	_, err := compileJQFilters([]string{".counts.sent > "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse jq filter")
}

func TestFilterJQ_Runs(t *testing.T) {
	runs := []*relay.BulkReport{
		{Endpoint: "helius", Counts: relay.Counts{Sent: 10, Confirmed: 10}},
		{Endpoint: "helius", Counts: relay.Counts{Sent: 10, Confirmed: 7, TimedOut: 3}},
		{Endpoint: "triton", Counts: relay.Counts{Sent: 10, Confirmed: 9, TimedOut: 1}},
	}

	tests := []struct {
		name    string
		filters []string
		want    int
	}{
		{name: "no filters", filters: nil, want: 3},
		{name: "timed out", filters: []string{".counts.timed_out > 0"}, want: 2},
		{name: "all filters must match", filters: []string{".counts.timed_out > 0", `.endpoint == "helius"`}, want: 1},
		{name: "null is falsy", filters: []string{".missing"}, want: 0},
		{name: "non-boolean is truthy", filters: []string{".endpoint"}, want: 3},
		{name: "empty result is no match", filters: []string{"empty"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes, err := compileJQFilters(tt.filters)
			require.NoError(t, err)

			got, err := filterJQ(runs, codes)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestFilterJQ_Comparisons(t *testing.T) {
	results := []*relay.ComparisonResult{
		{Round: 1, A: relay.LandingResult{Endpoint: "a", SlotSent: 1, SlotLanded: 2}},
		{Round: 2, B: relay.LandingResult{Endpoint: "b", SlotSent: 1, SlotLanded: 3}},
	}

	codes, err := compileJQFilters([]string{".a.slot_landed > 0"})
	require.NoError(t, err)

	got, err := filterJQ(results, codes)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Round)
}

func TestFilterJQ_RuntimeError(t *testing.T) {
	codes, err := compileJQFilters([]string{`.endpoint | error("boom")`})
	require.NoError(t, err)

	_, err = filterJQ([]*relay.BulkReport{{Endpoint: "x"}}, codes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jq filter error")
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(nil))
	assert.False(t, isTruthy(false))
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy(0))
	assert.True(t, isTruthy(""))
	assert.True(t, isTruthy([]interface{}{}))
}
