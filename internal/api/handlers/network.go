package handlers

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/Harshitk-cp/junctree/internal/junction"
	"github.com/Harshitk-cp/junctree/internal/service"
)

type NetworkHandler struct {
	svc *service.NetworkService
}

func NewNetworkHandler(svc *service.NetworkService) *NetworkHandler {
	return &NetworkHandler{svc: svc}
}

type createNetworkRequest struct {
	Name       string                   `json:"name"`
	Definition domain.NetworkDefinition `json:"definition"`
}

type cliqueResponse struct {
	ID        int      `json:"id"`
	Variables []string `json:"variables"`
	Component int      `json:"component"`
}

type treeResponse struct {
	Cliques          []cliqueResponse `json:"cliques"`
	Roots            []int            `json:"roots"`
	EliminationOrder []string         `json:"elimination_order"`
	Width            int              `json:"width"`
	MaxStates        int              `json:"max_states"`
}

type networkResponse struct {
	*domain.Network
	Tree *treeResponse `json:"tree,omitempty"`
}

func describeTree(t *junction.Tree) *treeResponse {
	out := &treeResponse{Width: t.Width(), MaxStates: t.MaxStates()}
	for _, c := range t.Cliques {
		out.Cliques = append(out.Cliques, cliqueResponse{
			ID:        int(c.ID),
			Variables: c.Vars.Names(),
			Component: c.Component,
		})
	}
	for _, r := range t.Roots {
		out.Roots = append(out.Roots, int(r))
	}
	for _, v := range t.EliminationOrder {
		out.EliminationOrder = append(out.EliminationOrder, v.Name())
	}
	return out
}

func (h *NetworkHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createNetworkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Definition.Variables) == 0 {
		writeError(w, http.StatusBadRequest, "definition.variables is required")
		return
	}

	n, err := h.svc.Create(r.Context(), req.Name, req.Definition)
	if err != nil {
		writeServiceError(w, err, "failed to create network")
		return
	}

	resp := networkResponse{Network: n}
	if net, err := h.svc.Load(r.Context(), n.ID); err == nil {
		if t, err := net.Compile(); err == nil {
			resp.Tree = describeTree(t)
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *NetworkHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = l
	}
	networks, err := h.svc.List(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err, "failed to list networks")
		return
	}
	if networks == nil {
		networks = []domain.Network{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"networks": networks})
}

func (h *NetworkHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := networkID(w, r)
	if !ok {
		return
	}
	n, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to get network")
		return
	}
	net, err := h.svc.Load(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to load network")
		return
	}
	t, err := net.Compile()
	if err != nil {
		writeServiceError(w, err, "failed to compile network")
		return
	}
	writeJSON(w, http.StatusOK, networkResponse{Network: n, Tree: describeTree(t)})
}

func (h *NetworkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := networkID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err, "failed to delete network")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dot renders the network, moral graph and junction tree as Graphviz.
func (h *NetworkHandler) Dot(w http.ResponseWriter, r *http.Request) {
	id, ok := networkID(w, r)
	if !ok {
		return
	}
	net, err := h.svc.Load(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to load network")
		return
	}
	var buf bytes.Buffer
	if err := net.Dot(&buf); err != nil {
		writeServiceError(w, err, "failed to render network")
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type scoreRequest struct {
	Rows []domain.Row `json:"rows"`
}

// Score reports the log-likelihood and BIC of the network on the posted rows.
func (h *NetworkHandler) Score(w http.ResponseWriter, r *http.Request) {
	id, ok := networkID(w, r)
	if !ok {
		return
	}
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "rows is required")
		return
	}
	net, err := h.svc.Load(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to load network")
		return
	}
	score, err := net.Score(r.Context(), domain.NewSliceSource(req.Rows...))
	if err != nil {
		writeServiceError(w, err, "failed to score network")
		return
	}
	if math.IsInf(score.LogLikelihood, -1) {
		writeError(w, http.StatusUnprocessableEntity, "sample contains a row of probability zero")
		return
	}
	writeJSON(w, http.StatusOK, score)
}
