package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Harshitk-cp/junctree/internal/service"
	"github.com/Harshitk-cp/junctree/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const lawnNetwork = `{
  "name": "lawn",
  "definition": {
    "variables": [
      {"name": "Rain", "domain": {"kind": "discrete", "labels": ["false", "true"]}},
      {"name": "Wet", "domain": {"kind": "discrete", "labels": ["false", "true"]}}
    ],
    "distributions": [
      {"variable": "Rain", "table": [0.8, 0.2]},
      {"variable": "Wet", "parents": ["Rain"], "table": [0.9, 0.1, 0.2, 0.8]}
    ]
  }
}`

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	s, err := store.NewSQLiteNetworkStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	if cfg.Engine.Heuristic == "" {
		cfg.Engine = service.DefaultOptions()
	}
	return NewApp(s, prometheus.NewRegistry(), cfg, zap.NewNop())
}

func do(t *testing.T, app *App, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, r)
	return w
}

type entry struct {
	States      map[string]string `json:"states"`
	Probability float64           `json:"probability"`
}

type distribution struct {
	Searched   []string `json:"searched"`
	Known      []string `json:"known"`
	Normalized bool     `json:"normalized"`
	Entries    []entry  `json:"entries"`
	Normalizer []entry  `json:"normalizer"`
}

func probabilities(d distribution) []float64 {
	out := make([]float64, len(d.Entries))
	for i, e := range d.Entries {
		out[i] = e.Probability
	}
	return out
}

func createLawn(t *testing.T, app *App) string {
	t.Helper()
	w := do(t, app, http.MethodPost, "/v1/networks", lawnNetwork)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		ID   string `json:"id"`
		Tree struct {
			Cliques []struct {
				Variables []string `json:"variables"`
			} `json:"cliques"`
			Width int `json:"width"`
		} `json:"tree"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Len(t, created.Tree.Cliques, 1)
	assert.ElementsMatch(t, []string{"Rain", "Wet"}, created.Tree.Cliques[0].Variables)
	assert.Equal(t, 1, created.Tree.Width)
	return created.ID
}

func ask(t *testing.T, app *App, id, body string) distribution {
	t.Helper()
	w := do(t, app, http.MethodPost, "/v1/networks/"+id+"/ask", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var d distribution
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	return d
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, Config{})
	w := do(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestNetworkLifecycle(t *testing.T) {
	app := newTestApp(t, Config{})
	id := createLawn(t, app)

	w := do(t, app, http.MethodGet, "/v1/networks", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"lawn"`)

	w = do(t, app, http.MethodPost, "/v1/networks", lawnNetwork)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, app, http.MethodGet, "/v1/networks/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, app, http.MethodGet, "/v1/networks/"+id+"/dot", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/vnd.graphviz", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "digraph"))

	w = do(t, app, http.MethodDelete, "/v1/networks/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, app, http.MethodGet, "/v1/networks/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, app, http.MethodGet, "/v1/networks/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRejectsInvalidDistribution(t *testing.T) {
	app := newTestApp(t, Config{})
	body := strings.Replace(lawnNetwork, "[0.9, 0.1, 0.2, 0.8]", "[0.9, 0.2, 0.2, 0.8]", 1)
	w := do(t, app, http.MethodPost, "/v1/networks", body)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestAskAndEvidence(t *testing.T) {
	app := newTestApp(t, Config{})
	id := createLawn(t, app)

	wet := ask(t, app, id, `{"searched": ["Wet"]}`)
	assert.True(t, wet.Normalized)
	assert.InDeltaSlice(t, []float64{0.76, 0.24}, probabilities(wet), 1e-12)

	given := ask(t, app, id, `{"searched": ["Wet"], "known_values": {"Rain": "true"}}`)
	assert.Empty(t, given.Known)
	assert.InDeltaSlice(t, []float64{0.2, 0.8}, probabilities(given), 1e-12)

	w := do(t, app, http.MethodPut, "/v1/networks/"+id+"/evidence", `{"observations": {"Wet": "true"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"Wet":"true"`)

	rain := ask(t, app, id, `{"searched": ["Rain"]}`)
	assert.InDeltaSlice(t, []float64{0.08 / 0.24, 0.16 / 0.24}, probabilities(rain), 1e-12)

	raw := ask(t, app, id, `{"searched": ["Rain"], "normalize": false}`)
	assert.False(t, raw.Normalized)
	assert.InDeltaSlice(t, []float64{0.08, 0.16}, probabilities(raw), 1e-12)
	require.Len(t, raw.Normalizer, 1)
	assert.InDelta(t, 0.24, raw.Normalizer[0].Probability, 1e-12)

	w = do(t, app, http.MethodGet, "/v1/networks/"+id+"/marginals", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"clique":0`)

	w = do(t, app, http.MethodDelete, "/v1/networks/"+id+"/evidence?variable=Wet", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"evidence":{}`)

	rain = ask(t, app, id, `{"searched": ["Rain"]}`)
	assert.InDeltaSlice(t, []float64{0.8, 0.2}, probabilities(rain), 1e-12)
}

func TestAskErrors(t *testing.T) {
	app := newTestApp(t, Config{})
	id := createLawn(t, app)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"empty searched", `{"searched": []}`, http.StatusBadRequest},
		{"unknown variable", `{"searched": ["Snow"]}`, http.StatusBadRequest},
		{"overlap", `{"searched": ["Rain"], "known": ["Rain"]}`, http.StatusBadRequest},
		{"unknown label", `{"searched": ["Wet"], "known_values": {"Rain": "maybe"}}`, http.StatusBadRequest},
		{"malformed", `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, app, http.MethodPost, "/v1/networks/"+id+"/ask", tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}

	w := do(t, app, http.MethodPut, "/v1/networks/"+id+"/evidence", `{"observations": {"Wet": "soaked"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScore(t *testing.T) {
	app := newTestApp(t, Config{})
	id := createLawn(t, app)

	w := do(t, app, http.MethodPost, "/v1/networks/"+id+"/score",
		`{"rows": [{"Rain": "true", "Wet": "true"}, {"Wet": "false"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var score service.Score
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &score))
	assert.Equal(t, 2, score.Rows)
	assert.Equal(t, 3, score.FreeParameters)
}

func TestAPIKeyAuth(t *testing.T) {
	app := newTestApp(t, Config{APIKey: "secret"})

	w := do(t, app, http.MethodGet, "/v1/networks", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = do(t, app, http.MethodGet, "/v1/networks", "", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = do(t, app, http.MethodGet, "/v1/networks", "", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, w.Code)

	// Health stays open.
	w = do(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsAndStats(t *testing.T) {
	app := newTestApp(t, Config{})
	createLawn(t, app)

	w := do(t, app, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "junctree_http_requests_total")
	assert.Contains(t, w.Body.String(), "junctree_loaded_networks 1")

	w = do(t, app, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats["loaded_networks"])
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("ELIMINATION_HEURISTIC", "min_weight")
	t.Setenv("REQUIRE_SINGLE_TREE", "true")
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "min_weight", string(cfg.Engine.Heuristic))
	assert.Equal(t, "single_tree", string(cfg.Engine.Policy))

	t.Setenv("ELIMINATION_HEURISTIC", "random")
	_, err = ConfigFromEnv()
	assert.Error(t, err)
}
