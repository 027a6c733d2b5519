package powerbi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportgate/reportgate/pkg/config"
	"github.com/reportgate/reportgate/pkg/errs"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server, *atomic.Int64) {
	var tokenCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": fmt.Sprintf("app-token-%d", tokenCalls.Load()),
			"expires_in":   3600,
		})
	})
	if handler != nil {
		mux.Handle("/api/", http.StripPrefix("/api", handler))
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := config.PowerBIConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     server.URL + "/token",
		Scope:        "https://analysis.windows.net/powerbi/api/.default",
		APIBase:      server.URL + "/api",
	}
	return NewClient(cfg, testLogger(), nil), server, &tokenCalls
}

func TestAppToken(t *testing.T) {
	t.Run("caches across calls", func(t *testing.T) {
		client, _, tokenCalls := newTestClient(t, nil)

		first, err := client.AppToken(context.Background())
		require.NoError(t, err)
		second, err := client.AppToken(context.Background())
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, int64(1), tokenCalls.Load())
	})

	t.Run("renews when inside the expiry margin", func(t *testing.T) {
		client, _, tokenCalls := newTestClient(t, nil)

		_, err := client.AppToken(context.Background())
		require.NoError(t, err)

		client.mu.Lock()
		client.tokenExpiry = time.Now().Add(time.Minute)
		client.mu.Unlock()

		_, err = client.AppToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(2), tokenCalls.Load())
	})

	t.Run("concurrent callers share one renewal", func(t *testing.T) {
		client, _, tokenCalls := newTestClient(t, nil)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := client.AppToken(context.Background())
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, int64(1), tokenCalls.Load())
	})

	t.Run("maps token endpoint failures to upstream errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
		}))
		t.Cleanup(server.Close)

		client := NewClient(config.PowerBIConfig{TokenURL: server.URL, APIBase: server.URL}, testLogger(), nil)
		_, err := client.AppToken(context.Background())
		assert.True(t, errs.Is(err, errs.KindUpstream))
	})
}

func TestWorkspacesAndReports(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/groups", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{{"id": "ws-1", "name": "Finance"}},
		})
	})
	handler.HandleFunc("/groups/ws-1/reports", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{"id": "r-1", "name": "Sales", "embedUrl": "https://embed/r-1", "datasetId": "d-1"},
			},
		})
	})
	handler.HandleFunc("/groups/ws-1/reports/r-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "r-1", "name": "Sales", "embedUrl": "https://embed/r-1", "datasetId": "d-1",
		})
	})
	client, _, _ := newTestClient(t, handler)
	ctx := context.Background()

	workspaces, err := client.Workspaces(ctx)
	require.NoError(t, err)
	require.Len(t, workspaces, 1)
	assert.Equal(t, "Finance", workspaces[0].Name)

	reports, err := client.Reports(ctx, "ws-1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "d-1", reports[0].DatasetID)

	report, err := client.Report(ctx, "ws-1", "r-1")
	require.NoError(t, err)
	assert.Equal(t, "https://embed/r-1", report.EmbedURL)
}

func TestGenerateToken(t *testing.T) {
	t.Run("sends identity and dataset refs", func(t *testing.T) {
		var captured generateTokenRequest
		handler := http.NewServeMux()
		handler.HandleFunc("/GenerateToken", func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			json.NewEncoder(w).Encode(map[string]any{
				"token":      "embed-token",
				"tokenId":    "tid-1",
				"expiration": time.Now().Add(time.Hour).Format(time.RFC3339),
			})
		})
		client, _, _ := newTestClient(t, handler)

		report := &ReportInfo{ID: "r-1", DatasetID: "d-1"}
		identity := &EmbedIdentity{Username: "7", Roles: []string{RLSRole}, Datasets: []string{"d-1"}}
		token, err := client.GenerateToken(context.Background(), "ws-1", report, identity)
		require.NoError(t, err)

		assert.Equal(t, "embed-token", token.Token)
		assert.Equal(t, "tid-1", token.TokenID)
		require.Len(t, captured.Reports, 1)
		assert.False(t, captured.Reports[0].AllowEdit)
		assert.Equal(t, []tokenWorkspaceRef{{ID: "ws-1"}}, captured.TargetWorkspaces)
		assert.Equal(t, []tokenDatasetRef{{ID: "d-1"}}, captured.Datasets)
		require.Len(t, captured.Identities, 1)
		assert.Equal(t, "7", captured.Identities[0].Username)
		assert.Equal(t, []string{RLSRole}, captured.Identities[0].Roles)
	})

	t.Run("omits identities when nil", func(t *testing.T) {
		var raw map[string]json.RawMessage
		handler := http.NewServeMux()
		handler.HandleFunc("/GenerateToken", func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
			json.NewEncoder(w).Encode(map[string]any{"token": "t", "tokenId": "id"})
		})
		client, _, _ := newTestClient(t, handler)

		_, err := client.GenerateToken(context.Background(), "ws-1", &ReportInfo{ID: "r-1"}, nil)
		require.NoError(t, err)
		_, hasIdentities := raw["identities"]
		assert.False(t, hasIdentities)
		_, hasDatasets := raw["datasets"]
		assert.False(t, hasDatasets)
	})

	t.Run("carries the upstream status", func(t *testing.T) {
		handler := http.NewServeMux()
		handler.HandleFunc("/GenerateToken", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"code":"InvalidRequest"}}`, http.StatusBadRequest)
		})
		client, _, _ := newTestClient(t, handler)

		_, err := client.GenerateToken(context.Background(), "ws-1", &ReportInfo{ID: "r-1"}, nil)
		require.Error(t, err)
		assert.True(t, errs.Is(err, errs.KindUpstream))
		var de *errs.Error
		require.ErrorAs(t, err, &de)
		assert.Equal(t, http.StatusBadRequest, de.UpstreamStatus)
	})
}

type callRecorder struct {
	mu  sync.Mutex
	ops []string
}

func (r *callRecorder) ObserveUpstream(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.mu.Lock()
	r.ops = append(r.ops, operation+":"+outcome)
	r.mu.Unlock()
}

func (r *callRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

func TestClientObservesUpstreamCalls(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/groups", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"value": []map[string]any{}})
	})
	handler.HandleFunc("/GenerateToken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"InvalidRequest"}}`, http.StatusBadRequest)
	})

	client, _, _ := newTestClient(t, handler)
	recorder := &callRecorder{}
	client.observer = recorder

	_, err := client.Workspaces(context.Background())
	require.NoError(t, err)
	_, err = client.GenerateToken(context.Background(), "ws-1", &ReportInfo{ID: "r-1"}, nil)
	require.Error(t, err)

	assert.Equal(t, []string{
		"app_token:ok",
		"list_workspaces:ok",
		"generate_token:error",
	}, recorder.recorded())
}
