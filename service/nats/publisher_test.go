package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/slotrelay/service/relay"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStat(endpoint string) relay.ConfirmedStat {
	var sig solana.Signature
	sig[0] = 7
	return relay.ConfirmedStat{
		Endpoint:   endpoint,
		Signature:  sig,
		SlotSent:   100,
		SlotLanded: 102,
		Elapsed:    850 * time.Millisecond,
		Success:    true,
		Mode:       "bulk",
		ReportedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestFromConfirmedStat(t *testing.T) {
	stat := testStat("rpc-a")

	event := FromConfirmedStat(stat)

	assert.Equal(t, "rpc-a", event.Endpoint)
	assert.Equal(t, stat.Signature.String(), event.Signature)
	assert.Equal(t, uint64(2), event.SlotDelta)
	assert.Equal(t, int64(850), event.ElapsedMS)
	assert.Equal(t, "bulk", event.Mode)
	assert.True(t, event.Success)
	assert.False(t, event.PublishedAt.IsZero())
}

func TestFromConfirmedStat_LandedBeforeSent(t *testing.T) {
	stat := testStat("rpc-a")
	stat.SlotLanded = 99

	assert.Zero(t, FromConfirmedStat(stat).SlotDelta)
}

func TestSubjectFor(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"rpc-a", "bench.stats.rpc-a"},
		{"api.mainnet-beta.solana.com", "bench.stats.api_mainnet-beta_solana_com"},
		{"https://x.io:8899", "bench.stats.https___x_io_8899"},
		{"", "bench.stats.unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.want, SubjectFor(tt.endpoint))
		})
	}
}

func TestSubscribeOptions_FilterSubject(t *testing.T) {
	assert.Equal(t, StreamSubjects, SubscribeOptions{}.FilterSubject())
	assert.Equal(t, "bench.stats.rpc-b", SubscribeOptions{Endpoint: "rpc-b"}.FilterSubject())
}

func TestSink_Submit(t *testing.T) {
	mock := NewMockPublisher()
	sink := NewSink(mock)

	require.NoError(t, sink.Submit(context.Background(), testStat("rpc-a")))
	require.NoError(t, sink.Submit(context.Background(), testStat("rpc-b")))

	assert.Equal(t, "nats", sink.Name())
	assert.Len(t, mock.GetPublishedEvents(), 2)
	assert.Len(t, mock.GetPublishedEventsForEndpoint("rpc-b"), 1)
}

func TestSink_SubmitError(t *testing.T) {
	mock := NewMockPublisher()
	mock.SetPublishError(errors.New("nats: no responders"))

	err := NewSink(mock).Submit(context.Background(), testStat("rpc-a"))

	assert.Error(t, err)
	assert.Empty(t, mock.GetPublishedEvents())
}

func TestDecodeStatsEvent(t *testing.T) {
	event, err := DecodeStatsEvent([]byte(`{"endpoint":"rpc-a","signature":"abc","slot_sent":5,"slot_landed":6}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), event.SlotLanded)

	_, err = DecodeStatsEvent([]byte(`{"endpoint":"rpc-a"}`))
	assert.Error(t, err)

	_, err = DecodeStatsEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestMockPublisher_Close(t *testing.T) {
	mock := NewMockPublisher()
	require.NoError(t, mock.Close())
	assert.True(t, mock.IsClosed())
}
