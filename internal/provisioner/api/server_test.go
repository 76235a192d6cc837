package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvinFlower/shadow-link/internal/provisioner/db"
	"github.com/AvinFlower/shadow-link/internal/provisioner/orchestrator"
	"github.com/AvinFlower/shadow-link/internal/provisioner/reconciler"
	apperrors "github.com/AvinFlower/shadow-link/internal/shared/errors"
	applogger "github.com/AvinFlower/shadow-link/internal/shared/logger"
	"github.com/AvinFlower/shadow-link/pkg/api"
)

type fakeProvisioner struct {
	result *orchestrator.Result
	err    error
	last   orchestrator.Request
}

func (p *fakeProvisioner) Provision(_ context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
	p.last = req
	return p.result, p.err
}

type fakeSyncer struct {
	userSummary *reconciler.UserSummary
	allSummary  *reconciler.Summary
	err         error
}

func (s *fakeSyncer) SyncUser(context.Context, int64) (*reconciler.UserSummary, error) {
	return s.userSummary, s.err
}

func (s *fakeSyncer) SyncAll(context.Context) (*reconciler.Summary, error) {
	return s.allSummary, s.err
}

type fakeConfigs struct {
	configs []db.UserConfiguration
	err     error
}

func (c *fakeConfigs) ListConfigurationsByUser(context.Context, int64) ([]db.UserConfiguration, error) {
	return c.configs, c.err
}

func newTestHandler(p Provisioner, s Syncer, c ConfigurationReader) http.Handler {
	srv := NewServer(ServerConfig{Address: ":0", Version: "test"}, p, s, c, applogger.NewDevelopment("api-test"))
	return srv.registerRoutes(http.NewServeMux())
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestHandler(&fakeProvisioner{}, &fakeSyncer{}, &fakeConfigs{})

	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.Response[api.HealthResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "ok", resp.Data.Status)
	assert.Equal(t, "test", resp.Data.Version)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateConfiguration(t *testing.T) {
	expiry := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	prov := &fakeProvisioner{result: &orchestrator.Result{
		ClientUUID:     "client-uuid",
		Link:           "vless://client-uuid@203.0.113.10:8443",
		ServerID:       3,
		ExpirationDate: expiry,
		Price:          250,
	}}
	handler := newTestHandler(prov, &fakeSyncer{}, &fakeConfigs{})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/configurations",
		api.CreateConfigurationRequest{UserID: 7, Country: "NL", Months: 3})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, orchestrator.Request{UserID: 7, Country: "NL", Months: 3}, prov.last)

	var resp api.Response[api.CreateConfigurationResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "client-uuid", resp.Data.ClientUUID)
	assert.Equal(t, 250, resp.Data.Price)
	assert.True(t, resp.Data.ExpirationDate.Equal(expiry))
}

func TestCreateConfigurationErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			"invalid argument",
			apperrors.NewProvisioningError(apperrors.ErrCodeInvalidArgument, "country is required", false, nil),
			http.StatusBadRequest, "invalid_argument",
		},
		{
			"unknown user",
			apperrors.NewProvisioningError(apperrors.ErrCodeNotFound, "user 7 does not exist", false, nil),
			http.StatusNotFound, "not_found",
		},
		{
			"no capacity",
			apperrors.NewProvisioningError(apperrors.ErrCodeNoCapacity, "fleet is full", false, nil),
			http.StatusConflict, "no_capacity",
		},
		{
			"unreachable panel",
			apperrors.NewPanelError(apperrors.ErrCodeRemoteUnreachable, "dial timeout", true, nil),
			http.StatusBadGateway, "remote_unreachable",
		},
		{
			"database failure",
			apperrors.NewDatabaseError(apperrors.ErrCodeDatabase, "insert failed", true, nil),
			http.StatusInternalServerError, "database_error",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(&fakeProvisioner{err: tc.err}, &fakeSyncer{}, &fakeConfigs{})

			rec := doJSON(t, handler, http.MethodPost, "/api/v1/configurations",
				api.CreateConfigurationRequest{UserID: 7, Country: "NL", Months: 1})
			require.Equal(t, tc.wantStatus, rec.Code)

			var resp api.Response[any]
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.wantCode, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}
}

func TestCreateConfigurationBadBody(t *testing.T) {
	handler := newTestHandler(&fakeProvisioner{}, &fakeSyncer{}, &fakeConfigs{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/configurations", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListConfigurations(t *testing.T) {
	configs := &fakeConfigs{configs: []db.UserConfiguration{
		{ClientUUID: "a-uuid", ServerID: 1, ConfigLink: "vless://a", Months: 1},
		{ClientUUID: "b-uuid", ServerID: 2, ConfigLink: "vless://b", Months: 3},
	}}
	handler := newTestHandler(&fakeProvisioner{}, &fakeSyncer{}, configs)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/users/7/configurations", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.Response[api.ConfigurationsListResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.TotalCount)
	assert.Equal(t, "a-uuid", resp.Data.Configurations[0].ClientUUID)
}

func TestListConfigurationsBadUserID(t *testing.T) {
	handler := newTestHandler(&fakeProvisioner{}, &fakeSyncer{}, &fakeConfigs{})

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/users/abc/configurations", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncSingleUser(t *testing.T) {
	syncer := &fakeSyncer{userSummary: &reconciler.UserSummary{UserID: 7, Inserted: 2, Deleted: 1}}
	handler := newTestHandler(&fakeProvisioner{}, syncer, &fakeConfigs{})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/configurations/sync",
		api.SyncConfigurationsRequest{UserID: 7})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.Response[api.SyncConfigurationsResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Users)
	assert.Equal(t, 2, resp.Data.Inserted)
	assert.Equal(t, 1, resp.Data.Deleted)
}

func TestSyncAllUsers(t *testing.T) {
	syncer := &fakeSyncer{allSummary: &reconciler.Summary{
		Users:    5,
		Inserted: 3,
		Failures: map[int64]error{9: assert.AnError},
	}}
	handler := newTestHandler(&fakeProvisioner{}, syncer, &fakeConfigs{})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/configurations/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.Response[api.SyncConfigurationsResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Data.Users)
	assert.Equal(t, []int64{9}, resp.Data.Failures)
}

func TestSyncUnknownUser(t *testing.T) {
	syncer := &fakeSyncer{err: apperrors.NewReconcileError(apperrors.ErrCodeNotFound, "user 42 does not exist", false, nil)}
	handler := newTestHandler(&fakeProvisioner{}, syncer, &fakeConfigs{})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/configurations/sync",
		api.SyncConfigurationsRequest{UserID: 42})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})
	handler := Chain(
		RequestID(applogger.NewDevelopment("api-test")),
		Recovery(),
		Logging(),
	)(mux)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
