package main

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServe(t *testing.T) {
	m := NewMetrics()
	m.FlightsTotal.WithLabelValues("logged").Inc()
	m.Phase.Set(float64(PhaseAirborne))

	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Serve(ctx, addr) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		body = string(data)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	assert.Contains(t, body, `simlogbook_flights_total{outcome="logged"} 1`)
	assert.Contains(t, body, "simlogbook_phase 3")

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestMetricsRegistryIsPrivate(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.ReconnectsTotal.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.ReconnectsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ReconnectsTotal))

	n, err := testutil.GatherAndCount(a.Registry(), "simlogbook_reconnects_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
