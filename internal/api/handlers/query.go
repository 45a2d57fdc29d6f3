package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/Harshitk-cp/junctree/internal/factor"
	"github.com/Harshitk-cp/junctree/internal/service"
)

type QueryHandler struct {
	svc *service.NetworkService
}

func NewQueryHandler(svc *service.NetworkService) *QueryHandler {
	return &QueryHandler{svc: svc}
}

type askRequest struct {
	Searched    []string          `json:"searched"`
	Known       []string          `json:"known,omitempty"`
	KnownValues map[string]string `json:"known_values,omitempty"`
	Normalize   *bool             `json:"normalize,omitempty"`
}

type distributionResponse struct {
	Searched   []string          `json:"searched"`
	Known      []string          `json:"known"`
	Given      map[string]string `json:"given,omitempty"`
	Normalized bool              `json:"normalized"`
	Entries    []factor.Entry    `json:"entries"`
	Normalizer []factor.Entry    `json:"normalizer,omitempty"`
}

func toResponse(d *factor.Distribution) distributionResponse {
	resp := distributionResponse{
		Searched:   d.Searched.Names(),
		Known:      d.Known.Names(),
		Normalized: d.Normalized,
		Entries:    d.Entries(),
	}
	if resp.Searched == nil {
		resp.Searched = []string{}
	}
	if resp.Known == nil {
		resp.Known = []string{}
	}
	if !d.Normalized && d.Normalizer != nil {
		resp.Normalizer = factor.NewDistribution(d.Normalizer).Entries()
	}
	return resp
}

// Ask answers P(searched | known, evidence). With known_values the known
// variables are fixed to those labels and a distribution over searched
// alone is returned.
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	id, ok := networkID(w, r)
	if !ok {
		return
	}
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Searched) == 0 {
		writeError(w, http.StatusBadRequest, "searched is required")
		return
	}
	normalize := req.Normalize == nil || *req.Normalize
	known := req.Known
	if len(req.KnownValues) > 0 {
		if !normalize {
			writeError(w, http.StatusBadRequest, "known_values requires a normalized query")
			return
		}
		if len(known) == 0 {
			for name := range req.KnownValues {
				known = append(known, name)
			}
			sort.Strings(known)
		}
	}

	net, err := h.svc.Load(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to load network")
		return
	}
	var opts []service.AskOption
	if !normalize {
		opts = append(opts, service.Unnormalized())
	}
	d, err := net.AskNames(req.Searched, known, opts...)
	if err != nil {
		writeServiceError(w, err, "failed to answer query")
		return
	}

	if len(req.KnownValues) > 0 {
		a := domain.Assignment{}
		for name, label := range req.KnownValues {
			v, err := net.Variable(name)
			if err != nil {
				writeServiceError(w, err, "failed to answer query")
				return
			}
			s, err := v.StateOf(label)
			if err != nil {
				writeServiceError(w, err, "failed to answer query")
				return
			}
			a.Set(v, s)
		}
		if d, err = d.Instantiate(a); err != nil {
			writeServiceError(w, err, "failed to answer query")
			return
		}
		resp := toResponse(d)
		resp.Given = req.KnownValues
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(d))
}

type cliqueMarginal struct {
	Clique int `json:"clique"`
	distributionResponse
}

// Marginals returns the calibrated marginal of every clique.
func (h *QueryHandler) Marginals(w http.ResponseWriter, r *http.Request) {
	id, ok := networkID(w, r)
	if !ok {
		return
	}
	net, err := h.svc.Load(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to load network")
		return
	}
	all, err := net.AskAll()
	if err != nil {
		writeServiceError(w, err, "failed to compute marginals")
		return
	}
	out := make([]cliqueMarginal, 0, len(all))
	for cid, d := range all {
		out = append(out, cliqueMarginal{Clique: int(cid), distributionResponse: toResponse(d)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Clique < out[j].Clique })
	writeJSON(w, http.StatusOK, map[string]any{"cliques": out})
}

type evidenceRequest struct {
	Observations map[string]string  `json:"observations,omitempty"`
	Readings     map[string]float64 `json:"readings,omitempty"`
}

// GetEvidence lists the current observations.
func (h *QueryHandler) GetEvidence(w http.ResponseWriter, r *http.Request) {
	id, ok := networkID(w, r)
	if !ok {
		return
	}
	net, err := h.svc.Load(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to load network")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evidence": net.Evidence()})
}

// PutEvidence enters observations by label and continuous readings by
// value. Earlier observations of other variables are kept.
func (h *QueryHandler) PutEvidence(w http.ResponseWriter, r *http.Request) {
	id, ok := networkID(w, r)
	if !ok {
		return
	}
	var req evidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Observations) == 0 && len(req.Readings) == 0 {
		writeError(w, http.StatusBadRequest, "observations or readings is required")
		return
	}
	net, err := h.svc.Load(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to load network")
		return
	}

	for _, name := range sortedKeys(req.Observations) {
		if err := net.Observe(name, req.Observations[name]); err != nil {
			writeServiceError(w, err, "failed to enter evidence")
			return
		}
	}
	for _, name := range sortedKeys(req.Readings) {
		if err := net.ObserveReal(name, req.Readings[name]); err != nil {
			writeServiceError(w, err, "failed to enter evidence")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"evidence": net.Evidence()})
}

// DeleteEvidence retracts the variable named by ?variable= or, without it,
// all evidence.
func (h *QueryHandler) DeleteEvidence(w http.ResponseWriter, r *http.Request) {
	id, ok := networkID(w, r)
	if !ok {
		return
	}
	net, err := h.svc.Load(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to load network")
		return
	}
	if name := r.URL.Query().Get("variable"); name != "" {
		if err := net.Retract(name); err != nil {
			writeServiceError(w, err, "failed to retract evidence")
			return
		}
	} else {
		net.ClearEvidence()
	}
	writeJSON(w, http.StatusOK, map[string]any{"evidence": net.Evidence()})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
