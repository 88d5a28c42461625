package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

const sampleResponse = `{
  "nhits": 2,
  "records": [
    {
      "recordid": "a1b2",
      "datasetid": "fr-esr-parcoursup",
      "fields": {
        "lib_for_voe_ins": "BUT - Informatique",
        "g_ea_lib_vx": "IUT de Paris - Rives de Seine",
        "fili": "BUT",
        "ville_etab": "Paris",
        "lib_dep": "Paris",
        "region_etab_aff": "Ile-de-France",
        "contrat_etab": "Public",
        "taux_acces_ens": 18,
        "select_form": "formation sélective",
        "capa_fin": 120,
        "voe_tot": 4200,
        "prop_tot": 760,
        "pct_bours": "21,5",
        "g_olocalisation_des_formations": [48.85, 2.35]
      }
    },
    {
      "recordid": "",
      "fields": {"lib_for_voe_ins": "orphan"}
    }
  ]
}`

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig()
	cfg.BaseURL = srv.URL
	cfg.MaxRetries = 2
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RetryMaxDelay = 2 * time.Millisecond
	cfg.RateLimiterConfig = RateLimiterConfig{RequestsPerMinute: 6000, BurstSize: 10, WaitTimeout: time.Second}
	return NewClient(cfg)
}

func TestClient_ListPrograms(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, searchPath, r.URL.Path)
		assert.Equal(t, "fr-esr-parcoursup", r.URL.Query().Get("dataset"))
		assert.Equal(t, "5000", r.URL.Query().Get("rows"))
		_, _ = w.Write([]byte(sampleResponse))
	})

	programs, err := client.ListPrograms(context.Background())
	require.NoError(t, err)
	require.Len(t, programs, 1)

	p := programs[0]
	assert.Equal(t, shared.ProgramID("a1b2"), p.ID)
	assert.Equal(t, "BUT - Informatique", p.Label)
	assert.Equal(t, "Ile-de-France", p.Region)
	assert.Equal(t, 120, p.Capacity)
	require.NotNil(t, p.AdmissionRate)
	assert.InDelta(t, 18.0, *p.AdmissionRate, 1e-9)
	require.NotNil(t, p.NeedBasedShare)
	assert.InDelta(t, 21.5, *p.NeedBasedShare, 1e-9)
	require.NotNil(t, p.Latitude)
	assert.InDelta(t, 48.85, *p.Latitude, 1e-9)
}

func TestClient_LookupProgram(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `recordid:"a1b2"`, r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(sampleResponse))
	})

	p, err := client.LookupProgram(context.Background(), "a1b2")
	require.NoError(t, err)
	assert.Equal(t, "Paris", p.City)
}

func TestClient_LookupProgramNotFound(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"nhits": 0, "records": []}`))
	})

	_, err := client.LookupProgram(context.Background(), "missing")
	assert.ErrorIs(t, err, shared.ErrProgramNotFound)
	assert.True(t, shared.IsNotFound(err))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(sampleResponse))
	})

	programs, err := client.ListPrograms(context.Background())
	require.NoError(t, err)
	assert.Len(t, programs, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorcode": 10002, "error": "Unknown dataset"}`))
	})

	_, err := client.ListPrograms(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrCatalogUnavailable)
	assert.True(t, shared.IsExternalService(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.ListPrograms(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "open", client.Status().BreakerState)

	_, err = client.ListPrograms(context.Background())
	assert.ErrorIs(t, err, shared.ErrCatalogUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_InvalidBody(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	})

	_, err := client.ListPrograms(context.Background())
	assert.ErrorIs(t, err, shared.ErrCatalogInvalidResponse)
}

func TestFlexFloat(t *testing.T) {
	var fields ProgramFieldsDTO
	require.NoError(t, json.Unmarshal([]byte(`{"taux_acces_ens": "NC", "capa_fin": "35", "pct_bours": null}`), &fields))

	assert.Nil(t, fields.AdmissionRate.Float64())
	assert.Equal(t, 35, fields.Capacity.Int())
	assert.Nil(t, fields.NeedBasedShare.Float64())
}

func TestRateLimiter_RecordHitBlocks(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 600, BurstSize: 2})
	assert.True(t, rl.TryAllow())

	rl.RecordRateLimitHit(time.Minute)
	assert.False(t, rl.TryAllow())
	assert.True(t, rl.Status().BlockedUntil.After(time.Now()))

	rl.Reset()
	assert.True(t, rl.TryAllow())
}
