package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/careclaim/claimledger/internal/domain"
	"github.com/careclaim/claimledger/internal/engine"
	"github.com/careclaim/claimledger/internal/ledger"
	"github.com/careclaim/claimledger/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claims_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "claims_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
	}, []string{"method", "endpoint"})
)

// ClaimService is the engine surface the HTTP layer needs. Kept as an
// interface so handler tests can substitute a mock.
type ClaimService interface {
	CreateDraft(ctx context.Context, actor, policyID uuid.UUID, inc domain.Incident) (*domain.Claim, error)
	UpdateDraft(ctx context.Context, claimID, actor uuid.UUID, patch domain.IncidentPatch) (*domain.Claim, error)
	Submit(ctx context.Context, claimID, actor uuid.UUID) (*domain.TransitionResult, error)
	Acknowledge(ctx context.Context, claimID, actor uuid.UUID, referenceNumber string, file *domain.FileMeta) (*domain.TransitionResult, error)
	Advance(ctx context.Context, claimID, actor uuid.UUID, target domain.ClaimStatus) (*domain.TransitionResult, error)
	AttachDocument(ctx context.Context, claimID, actor uuid.UUID, docType string, file domain.FileMeta) (*domain.Document, error)
	Get(ctx context.Context, claimID, actor uuid.UUID) (*domain.ClaimView, error)
	List(ctx context.Context, actor uuid.UUID) ([]domain.Claim, error)
}

var _ ClaimService = (*engine.Engine)(nil)

type Handler struct {
	service ClaimService
}

func NewHandler(svc ClaimService) *Handler {
	return &Handler{service: svc}
}

// NewRouter wires the full HTTP surface minus /metrics, which the caller
// mounts so the handler stays usable in tests without prometheus.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/claims", h.CreateClaim).Methods("POST")
	v1.HandleFunc("/claims", h.ListClaims).Methods("GET")
	v1.HandleFunc("/claims/{id}", h.GetClaim).Methods("GET")
	v1.HandleFunc("/claims/{id}", h.UpdateDraft).Methods("PATCH")
	v1.HandleFunc("/claims/{id}/submit", h.SubmitClaim).Methods("POST")
	v1.HandleFunc("/claims/{id}/ack", h.AcknowledgeClaim).Methods("POST")
	v1.HandleFunc("/claims/{id}/status", h.AdvanceClaim).Methods("POST")
	v1.HandleFunc("/claims/{id}/documents", h.AttachDocument).Methods("POST")
	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

func (h *Handler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/claims"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	actor, ok := actorID(w, r, endpoint)
	if !ok {
		return
	}

	var req createClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", "POST", endpoint)
		return
	}
	policyID, err := uuid.Parse(req.PolicyID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_failed", "Invalid policy id", "POST", endpoint)
		return
	}
	inc, err := req.Incident.toDomain()
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_failed", err.Error(), "POST", endpoint)
		return
	}

	claim, err := h.service.CreateDraft(r.Context(), actor, policyID, inc)
	if err != nil {
		respondServiceError(w, err, "POST", endpoint)
		return
	}
	respondJSON(w, http.StatusCreated, claim, "POST", endpoint)
}

func (h *Handler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/claims/{id}"
	actor, ok := actorID(w, r, endpoint)
	if !ok {
		return
	}
	claimID, ok := pathClaimID(w, r, "PATCH", endpoint)
	if !ok {
		return
	}

	var req updateDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", "PATCH", endpoint)
		return
	}
	patch, err := req.toDomain()
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_failed", err.Error(), "PATCH", endpoint)
		return
	}

	claim, err := h.service.UpdateDraft(r.Context(), claimID, actor, patch)
	if err != nil {
		respondServiceError(w, err, "PATCH", endpoint)
		return
	}
	respondJSON(w, http.StatusOK, claim, "PATCH", endpoint)
}

func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/claims/{id}/submit"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	actor, ok := actorID(w, r, endpoint)
	if !ok {
		return
	}
	claimID, ok := pathClaimID(w, r, "POST", endpoint)
	if !ok {
		return
	}

	res, err := h.service.Submit(r.Context(), claimID, actor)
	if err != nil {
		respondServiceError(w, err, "POST", endpoint)
		return
	}
	respondJSON(w, http.StatusOK, res, "POST", endpoint)
}

func (h *Handler) AcknowledgeClaim(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/claims/{id}/ack"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	actor, ok := actorID(w, r, endpoint)
	if !ok {
		return
	}
	claimID, ok := pathClaimID(w, r, "POST", endpoint)
	if !ok {
		return
	}

	var req acknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", "POST", endpoint)
		return
	}

	var file *domain.FileMeta
	if req.File != nil {
		file = &domain.FileMeta{FileName: req.File.FileName, Size: req.File.Size, Checksum: req.File.Checksum}
	}

	res, err := h.service.Acknowledge(r.Context(), claimID, actor, req.ReferenceNumber, file)
	if err != nil {
		respondServiceError(w, err, "POST", endpoint)
		return
	}
	respondJSON(w, http.StatusOK, res, "POST", endpoint)
}

func (h *Handler) AdvanceClaim(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/claims/{id}/status"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	actor, ok := actorID(w, r, endpoint)
	if !ok {
		return
	}
	claimID, ok := pathClaimID(w, r, "POST", endpoint)
	if !ok {
		return
	}

	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", "POST", endpoint)
		return
	}

	res, err := h.service.Advance(r.Context(), claimID, actor, domain.ClaimStatus(req.NewStatus))
	if err != nil {
		respondServiceError(w, err, "POST", endpoint)
		return
	}
	respondJSON(w, http.StatusOK, res, "POST", endpoint)
}

func (h *Handler) AttachDocument(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/claims/{id}/documents"
	actor, ok := actorID(w, r, endpoint)
	if !ok {
		return
	}
	claimID, ok := pathClaimID(w, r, "POST", endpoint)
	if !ok {
		return
	}

	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", "POST", endpoint)
		return
	}

	doc, err := h.service.AttachDocument(r.Context(), claimID, actor, req.Type,
		domain.FileMeta{FileName: req.FileName, Size: req.Size, Checksum: req.Checksum})
	if err != nil {
		respondServiceError(w, err, "POST", endpoint)
		return
	}
	respondJSON(w, http.StatusCreated, doc, "POST", endpoint)
}

func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/claims/{id}"
	actor, ok := actorID(w, r, endpoint)
	if !ok {
		return
	}
	claimID, ok := pathClaimID(w, r, "GET", endpoint)
	if !ok {
		return
	}

	view, err := h.service.Get(r.Context(), claimID, actor)
	if err != nil {
		respondServiceError(w, err, "GET", endpoint)
		return
	}
	respondJSON(w, http.StatusOK, view, "GET", endpoint)
}

func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/claims"
	actor, ok := actorID(w, r, endpoint)
	if !ok {
		return
	}

	claims, err := h.service.List(r.Context(), actor)
	if err != nil {
		respondServiceError(w, err, "GET", endpoint)
		return
	}
	if claims == nil {
		claims = []domain.Claim{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": claims}, "GET", endpoint)
}

// actorID reads the authenticated caller identity. Authentication itself is
// upstream; this service trusts the header it is handed.
func actorID(w http.ResponseWriter, r *http.Request, endpoint string) (uuid.UUID, bool) {
	raw := r.Header.Get("X-Actor-ID")
	if raw == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing X-Actor-ID", r.Method, endpoint)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Invalid X-Actor-ID", r.Method, endpoint)
		return uuid.Nil, false
	}
	return id, true
}

func pathClaimID(w http.ResponseWriter, r *http.Request, method, endpoint string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", "Claim not found", method, endpoint)
		return uuid.Nil, false
	}
	return id, true
}

// respondServiceError maps the engine/store/ledger error taxonomy onto HTTP.
// The code field tells clients apart "try again" (ledger_submission,
// confirmation_timeout, conflict) from "this claim cannot do that"
// (validation_failed, illegal_transition) from "contact support"
// (reconciliation_required).
func respondServiceError(w http.ResponseWriter, err error, method, endpoint string) {
	var recErr *engine.ReconciliationError
	switch {
	case errors.As(err, &recErr):
		respondError(w, http.StatusInternalServerError, "reconciliation_required",
			"Ledger confirmed but local record update failed; contact support", method, endpoint)
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "Claim not found", method, endpoint)
	case errors.Is(err, store.ErrStaleUpdate):
		respondError(w, http.StatusConflict, "conflict", "Claim was modified concurrently; re-read and retry", method, endpoint)
	case errors.Is(err, engine.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation_failed", err.Error(), method, endpoint)
	case errors.Is(err, engine.ErrAlreadySubmitted):
		respondError(w, http.StatusConflict, "already_submitted", "Claim is no longer a draft", method, endpoint)
	case errors.Is(err, engine.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "illegal_transition", err.Error(), method, endpoint)
	case errors.Is(err, ledger.ErrSubmission):
		respondError(w, http.StatusBadGateway, "ledger_submission", "Ledger unavailable; retry the operation", method, endpoint)
	case errors.Is(err, ledger.ErrConfirmationTimeout):
		respondError(w, http.StatusGatewayTimeout, "confirmation_timeout",
			"Ledger confirmation timed out; verify transaction state before retrying", method, endpoint)
	case errors.Is(err, ledger.ErrUnknownClaimIdentity), errors.Is(err, engine.ErrAnchorMissing):
		respondError(w, http.StatusInternalServerError, "anchor_inconsistent",
			"Claim anchor state is inconsistent; contact support", method, endpoint)
	default:
		respondError(w, http.StatusInternalServerError, "internal", "Internal error", method, endpoint)
	}
}

func respondJSON(w http.ResponseWriter, code int, payload any, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, code int, errCode, msg, method, endpoint string) {
	respondJSON(w, code, map[string]string{"error": msg, "code": errCode}, method, endpoint)
}

// incident dates arrive either as bare dates or full RFC 3339 instants.
func parseIncidentDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.New("invalid incident date")
	}
	return t.UTC(), nil
}
