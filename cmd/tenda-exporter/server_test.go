package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fexd12/prometheus-tenda-exporter/pkg/reporter"
	"github.com/fexd12/prometheus-tenda-exporter/pkg/tenda"
	"github.com/fexd12/prometheus-tenda-exporter/pkg/tracker"
)

// fakeRouterClient serves both collaborators from canned values.
type fakeRouterClient struct {
	status     tenda.NetworkStatus
	statusErr  error
	devices    tenda.Devices
	devicesErr error
}

func (f *fakeRouterClient) NetworkStatus(context.Context) (tenda.NetworkStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeRouterClient) ConnectedDevices(context.Context) (tenda.Devices, error) {
	return f.devices, f.devicesErr
}

func newTestServer(t *testing.T, client *fakeRouterClient) *Server {
	t.Helper()

	s := newServer(tracker.NewScanner(client), reporter.New(client), time.Second)
	require.NoError(t, s.RegisterMetrics(prometheus.NewRegistry()))
	return s
}

func healthyClient() *fakeRouterClient {
	return &fakeRouterClient{
		status: tenda.NetworkStatus{
			"getNetwork": []interface{}{
				map[string]interface{}{"wanUpFlux": "512.0KB/s", "wanDownFlux": "2.0MB/s"},
			},
		},
		devices: tenda.Devices{"AA:BB": "phone", "CC:DD": "tv"},
	}
}

func TestCollectRecordsMetrics(t *testing.T) {
	s := newTestServer(t, healthyClient())

	require.NoError(t, s.Collect(context.Background()))

	assert.Equal(t, 512.0, testutil.ToFloat64(s.traffic.Upload))
	assert.Equal(t, 2048.0, testutil.ToFloat64(s.traffic.Download))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.clients.Count))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.clients.Present.WithLabelValues("AA:BB", "phone")))
	assert.Equal(t, 0, testutil.CollectAndCount(s.meta.Errors))
}

func TestCollectFailureKeepsDevicesAndZeroesRates(t *testing.T) {
	client := healthyClient()
	s := newTestServer(t, client)
	require.NoError(t, s.Collect(context.Background()))

	client.statusErr = errors.New("router unreachable")
	client.devicesErr = errors.New("router unreachable")

	err := s.Collect(context.Background())
	require.Error(t, err)

	assert.Zero(t, testutil.ToFloat64(s.traffic.Upload))
	assert.Zero(t, testutil.ToFloat64(s.traffic.Download))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.clients.Count), "last known clients are kept")
	assert.Equal(t, 1.0, testutil.ToFloat64(s.meta.Errors.WithLabelValues(sourceStatus)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.meta.Errors.WithLabelValues(sourceDevices)))
}

func TestCollectDropsDepartedClients(t *testing.T) {
	client := healthyClient()
	s := newTestServer(t, client)
	require.NoError(t, s.Collect(context.Background()))

	client.devices = tenda.Devices{"CC:DD": "tv"}
	require.NoError(t, s.Collect(context.Background()))

	assert.Equal(t, 1, testutil.CollectAndCount(s.clients.Present))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.clients.Count))
}

func TestHandlerRoutes(t *testing.T) {
	s := newTestServer(t, healthyClient())
	require.NoError(t, s.Collect(context.Background()))
	handler := s.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var records []tenda.DeviceRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Equal(t, []tenda.DeviceRecord{{MAC: "AA:BB", Name: "phone"}, {MAC: "CC:DD", Name: "tv"}}, records)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tenda_wan_upload_kbps 512"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
