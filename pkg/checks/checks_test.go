package checks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeHTTP_RecordsStatusAndLatency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	status, latency, redirects, err := probeHTTP(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, http.StatusOK, *status)
	require.NotNil(t, latency)
	assert.GreaterOrEqual(t, *latency, 0)
	require.NotNil(t, redirects)
	assert.Equal(t, 0, *redirects)
}

func TestProbeHTTP_CountsRedirects(t *testing.T) {
	var final *httptest.Server
	final = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer final.Close()

	redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusFound)
	}))
	defer redirecting.Close()

	status, _, redirects, err := probeHTTP(context.Background(), redirecting.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, *status)
	assert.Equal(t, 1, *redirects)
}

func TestProbeHTTP_TransportErrorYieldsNilStatus(t *testing.T) {
	status, _, _, err := probeHTTP(context.Background(), "http://127.0.0.1:1")
	require.Error(t, err)
	assert.Nil(t, status)
}

func TestProbe_CombinesAllSubchecks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, err := Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NotNil(t, m.HTTPStatus)
	assert.Equal(t, http.StatusOK, *m.HTTPStatus)
	assert.Nil(t, m.SSLDaysLeft, "http scheme should not attempt a TLS probe")
}

func TestRoundTo2(t *testing.T) {
	assert.Equal(t, 12.35, roundTo2(12.346))
	assert.Equal(t, 0.0, roundTo2(0))
}
