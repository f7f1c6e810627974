package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/neurotrace/connectome/internal/annotation"
	"github.com/neurotrace/connectome/internal/cascade"
	"github.com/neurotrace/connectome/internal/crossref"
	"github.com/neurotrace/connectome/internal/domain"
	"github.com/neurotrace/connectome/internal/network"
	"github.com/neurotrace/connectome/internal/service"
	"github.com/neurotrace/connectome/internal/store"
)

// PartnerService computes thresholded partner tables.
type PartnerService interface {
	Partners(ctx context.Context, id domain.NeuronID, dir domain.Direction, th service.Thresholds) (domain.PartnerTable, error)
	Summary(ctx context.Context, id domain.NeuronID, th service.Thresholds) (domain.ConnectivitySummary, error)
}

// CascadeRunner runs a cascade to completion.
type CascadeRunner interface {
	Run(ctx context.Context, req cascade.Request) (cascade.Report, error)
}

// Matcher cross-references identifiers between datasets.
type Matcher interface {
	Match(id domain.NeuronID) crossref.Match
}

// APIHandlers exposes HTTP handlers for the REST API.
type APIHandlers struct {
	logger    *slog.Logger
	partners  PartnerService
	cascades  CascadeRunner
	matcher   Matcher
	results   store.Store
	annotator annotation.Fetcher
}

// APIDependencies collects the collaborators of APIHandlers. Nil members disable their routes.
type APIDependencies struct {
	Partners  PartnerService
	Cascades  CascadeRunner
	Matcher   Matcher
	Results   store.Store
	Annotator annotation.Fetcher
}

// NewAPIHandlers constructs an APIHandlers instance.
func NewAPIHandlers(logger *slog.Logger, deps APIDependencies) *APIHandlers {
	return &APIHandlers{
		logger:    logger,
		partners:  deps.Partners,
		cascades:  deps.Cascades,
		matcher:   deps.Matcher,
		results:   deps.Results,
		annotator: deps.Annotator,
	}
}

func (h *APIHandlers) register(mux *http.ServeMux) {
	if h.partners != nil {
		mux.HandleFunc("GET /neurons/{id}/downstream", h.handlePartners(domain.Downstream))
		mux.HandleFunc("GET /neurons/{id}/upstream", h.handlePartners(domain.Upstream))
		mux.HandleFunc("GET /neurons/{id}/summary", h.handleSummary)
	}
	if h.matcher != nil {
		mux.HandleFunc("GET /neurons/{id}/match", h.handleMatch)
	}
	if h.cascades != nil {
		mux.HandleFunc("POST /cascades", h.handleCreateCascade)
	}
	if h.results != nil {
		mux.HandleFunc("GET /results/{run}/graph", h.handleResultGraph)
		mux.HandleFunc("GET /results/{run}/neurons/{id}", h.handleResult)
	}
}

func (h *APIHandlers) handlePartners(dir domain.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathNeuron(w, r)
		if !ok {
			return
		}
		th, err := parseThresholds(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		top, err := parseTop(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		table, err := h.partners.Partners(r.Context(), id, dir, th)
		if err != nil {
			h.logger.Error("failed to fetch partners", "error", err, "neuron", id, "direction", dir)
			writeError(w, http.StatusBadGateway, "failed to fetch partners")
			return
		}
		table.Rows = service.TopN(table.Rows, top)
		respondJSON(w, http.StatusOK, newPartnerTableResponse(table))
	}
}

func (h *APIHandlers) handleSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathNeuron(w, r)
	if !ok {
		return
	}
	th, err := parseThresholds(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.partners.Summary(r.Context(), id, th)
	if err != nil {
		h.logger.Error("failed to fetch summary", "error", err, "neuron", id)
		writeError(w, http.StatusBadGateway, "failed to fetch connectivity summary")
		return
	}
	respondJSON(w, http.StatusOK, summaryResponse{
		Neuron:     summary.Neuron,
		Upstream:   newPartnerTableResponse(summary.Upstream),
		Downstream: newPartnerTableResponse(summary.Downstream),
	})
}

func (h *APIHandlers) handleMatch(w http.ResponseWriter, r *http.Request) {
	// Sentinel identifiers such as NotAssigned resolve to no match rather than an error.
	id, _ := domain.ParseNeuronID(r.PathValue("id"))
	m := h.matcher.Match(id)
	respondJSON(w, http.StatusOK, matchResponse{
		Query:      m.Query,
		Space:      domain.SpaceOf(id),
		Status:     m.Status.String(),
		Candidates: idStrings(m.Candidates),
		Via:        m.Via,
		Strategy:   m.Strategy,
	})
}

func (h *APIHandlers) handleCreateCascade(w http.ResponseWriter, r *http.Request) {
	var body cascadeRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload: "+err.Error())
		return
	}
	req, err := body.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.cascades.Run(r.Context(), req)
	if err != nil {
		h.logger.Error("cascade failed", "error", err, "start", req.Start, "run", report.Run)
		writeError(w, http.StatusBadGateway, "cascade failed: "+err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, newCascadeResponse(report))
}

func (h *APIHandlers) handleResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathNeuron(w, r)
	if !ok {
		return
	}
	run, ok := pathRun(w, r)
	if !ok {
		return
	}
	table, err := h.results.Read(r.Context(), run, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no result for neuron "+id.String()+" in "+run)
		return
	}
	if err != nil {
		h.logger.Error("failed to read result", "error", err, "run", run, "neuron", id)
		writeError(w, http.StatusInternalServerError, "failed to read result")
		return
	}
	respondJSON(w, http.StatusOK, newPartnerTableResponse(table))
}

// handleResultGraph renders every table of a run as Graphviz DOT. ?group=type contracts
// same-typed neurons and ?combine=sum|mean picks the edge folding rule.
func (h *APIHandlers) handleResultGraph(w http.ResponseWriter, r *http.Request) {
	run, ok := pathRun(w, r)
	if !ok {
		return
	}
	tables, err := store.ReadAll(r.Context(), h.results, run)
	if err != nil {
		h.logger.Error("failed to read results", "error", err, "run", run)
		writeError(w, http.StatusInternalServerError, "failed to read results")
		return
	}
	if len(tables) == 0 {
		writeError(w, http.StatusNotFound, "no results for "+run)
		return
	}

	var idx *annotation.Index
	if h.annotator != nil {
		idx, err = annotation.Build(r.Context(), h.annotator, network.Neurons(tables))
		if err != nil {
			h.logger.Warn("annotation lookup failed; rendering untyped", "error", err, "run", run)
		}
	}
	g := network.Build(tables, idx)

	query := r.URL.Query()
	switch query.Get("group") {
	case "":
	case "type":
		combine, err := network.CombineByName(query.Get("combine"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		g = network.Contract(g, network.ByType, combine)
	default:
		writeError(w, http.StatusBadRequest, "group must be empty or type")
		return
	}

	w.Header().Set("Content-Type", "text/vnd.graphviz")
	if err := network.WriteDOT(w, run, g); err != nil {
		h.logger.Error("failed to write graph", "error", err, "run", run)
	}
}

func pathNeuron(w http.ResponseWriter, r *http.Request) (domain.NeuronID, bool) {
	id, err := domain.ParseNeuronID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid neuron ID")
		return 0, false
	}
	return id, true
}

func pathRun(w http.ResponseWriter, r *http.Request) (string, bool) {
	run := r.PathValue("run")
	if err := store.CheckRun(run); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return run, true
}

func parseThresholds(r *http.Request) (service.Thresholds, error) {
	th := service.DefaultThresholds()
	q := r.URL.Query()
	if v := q.Get("minWeight"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return th, errors.New("minWeight must be a non-negative integer")
		}
		th.MinWeight = n
	}
	if v := q.Get("minPercent"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return th, errors.New("minPercent must be a non-negative number")
		}
		th.MinPercent = f
	}
	return th, nil
}

// parseTop reads ?top=N, the number of strongest partners to return. Zero means all.
func parseTop(r *http.Request) (int, error) {
	v := r.URL.Query().Get("top")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("top must be a non-negative integer")
	}
	return n, nil
}

type partnerResponse struct {
	BodyID  domain.NeuronID `json:"bodyId,string"`
	Weight  int64           `json:"weight"`
	Percent float64         `json:"percent"`
	Type    string          `json:"type"`
}

type partnerTableResponse struct {
	Neuron    domain.NeuronID   `json:"neuron,string"`
	Direction domain.Direction  `json:"direction"`
	Partners  []partnerResponse `json:"partners"`
}

func newPartnerTableResponse(t domain.PartnerTable) partnerTableResponse {
	resp := partnerTableResponse{Neuron: t.Neuron, Direction: t.Direction, Partners: []partnerResponse{}}
	for _, row := range t.Rows {
		resp.Partners = append(resp.Partners, partnerResponse{
			BodyID:  row.Partner,
			Weight:  row.Weight,
			Percent: row.Percent,
			Type:    row.Type,
		})
	}
	return resp
}

type summaryResponse struct {
	Neuron     domain.NeuronID      `json:"neuron,string"`
	Upstream   partnerTableResponse `json:"upstream"`
	Downstream partnerTableResponse `json:"downstream"`
}

type matchResponse struct {
	Query      domain.NeuronID `json:"query,string"`
	Space      domain.Space    `json:"space"`
	Status     string          `json:"status"`
	Candidates []string        `json:"candidates"`
	Via        string          `json:"via,omitempty"`
	Strategy   string          `json:"strategy"`
}

type cascadeRequest struct {
	Start               string   `json:"start"`
	ConnectionThreshold *int64   `json:"connectionThreshold"`
	PercentageThreshold *float64 `json:"percentageThreshold"`
	MaxLayers           *int     `json:"maxLayers"`
}

func (req cascadeRequest) toRequest() (cascade.Request, error) {
	start, err := domain.ParseNeuronID(strings.TrimSpace(req.Start))
	if err != nil {
		return cascade.Request{}, errors.New("start must be a valid neuron ID")
	}
	out := cascade.NewRequest(start)
	if req.ConnectionThreshold != nil {
		out.ConnectionThreshold = *req.ConnectionThreshold
	}
	if req.PercentageThreshold != nil {
		out.PercentageThreshold = *req.PercentageThreshold
	}
	if req.MaxLayers != nil {
		out.MaxLayers = *req.MaxLayers
	}
	return out, nil
}

type cascadeResponse struct {
	RunID               string     `json:"runId"`
	Run                 string     `json:"run"`
	Start               string     `json:"start"`
	ConnectionThreshold int64      `json:"connectionThreshold"`
	PercentageThreshold float64    `json:"percentageThreshold"`
	MaxLayers           int        `json:"maxLayers"`
	Layers              [][]string `json:"layers"`
	Frontier            []string   `json:"frontier"`
	Queried             int        `json:"queried"`
	Written             int        `json:"written"`
	Skipped             int        `json:"skipped"`
	Leaves              int        `json:"leaves"`
}

func newCascadeResponse(r cascade.Report) cascadeResponse {
	resp := cascadeResponse{
		RunID:               r.RunID,
		Run:                 r.Run,
		Start:               r.Request.Start.String(),
		ConnectionThreshold: r.Request.ConnectionThreshold,
		PercentageThreshold: r.Request.PercentageThreshold,
		MaxLayers:           r.Request.MaxLayers,
		Layers:              [][]string{},
		Frontier:            idStrings(r.Frontier),
		Queried:             r.Queried,
		Written:             r.Written,
		Skipped:             r.Skipped,
		Leaves:              r.Leaves,
	}
	for _, layer := range r.Layers {
		resp.Layers = append(resp.Layers, idStrings(layer))
	}
	return resp
}

func idStrings(ids []domain.NeuronID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
	})
}
