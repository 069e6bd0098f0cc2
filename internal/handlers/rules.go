package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jmartinez0/quantity-breaks/internal/platform/auth"
	"github.com/jmartinez0/quantity-breaks/internal/platform/httpx"
	"github.com/jmartinez0/quantity-breaks/internal/platform/observability"
	"github.com/jmartinez0/quantity-breaks/internal/repositories"
	"github.com/jmartinez0/quantity-breaks/internal/services"
)

const maxRuleBodySize = 256 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

// RuleHandlers exposes the rule management endpoints backing the admin UI.
type RuleHandlers struct {
	authn       *auth.Authenticator
	rules       services.RulesService
	catalog     services.CatalogService
	limiter     *RequestLimiter
	idempotency func(http.Handler) http.Handler
}

// RuleOption customises the rule handlers.
type RuleOption func(*RuleHandlers)

// WithRuleRateLimiter throttles rule routes with the supplied limiter.
func WithRuleRateLimiter(limiter *RequestLimiter) RuleOption {
	return func(h *RuleHandlers) {
		h.limiter = limiter
	}
}

// WithRuleIdempotency guards the create endpoint with the supplied idempotency middleware.
func WithRuleIdempotency(mw func(http.Handler) http.Handler) RuleOption {
	return func(h *RuleHandlers) {
		h.idempotency = mw
	}
}

// NewRuleHandlers constructs a new RuleHandlers instance.
func NewRuleHandlers(authn *auth.Authenticator, rules services.RulesService, catalog services.CatalogService, opts ...RuleOption) *RuleHandlers {
	h := &RuleHandlers{
		authn:   authn,
		rules:   rules,
		catalog: catalog,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /rules endpoints.
func (h *RuleHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireSession())
	}
	if h.limiter != nil {
		r.Use(h.limiter.Middleware())
	}
	r.Get("/", h.listRules)
	r.Get("/{slug}", h.getRule)
	r.Put("/{slug}", h.updateRule)
	r.Delete("/{slug}", h.deleteRule)
	if h.idempotency != nil {
		r.With(h.idempotency).Post("/", h.createRule)
		return
	}
	r.Post("/", h.createRule)
}

func (h *RuleHandlers) listRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rules == nil {
		httpx.WriteError(ctx, w, httpx.NewError("rules_service_unavailable", "rules service unavailable", http.StatusServiceUnavailable))
		return
	}

	summaries, err := h.rules.ListRules(ctx)
	if err != nil {
		writeRuleReadError(ctx, w, err)
		return
	}
	if summaries == nil {
		summaries = []services.RuleSummary{}
	}

	writeJSONResponse(w, http.StatusOK, listRulesResponse{Rules: summaries})
}

func (h *RuleHandlers) getRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rules == nil {
		httpx.WriteError(ctx, w, httpx.NewError("rules_service_unavailable", "rules service unavailable", http.StatusServiceUnavailable))
		return
	}

	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	if slug == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "rule slug is required", http.StatusBadRequest))
		return
	}

	rule, err := h.rules.GetRule(ctx, slug)
	if err != nil {
		writeRuleReadError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, getRuleResponse{
		Rule:     rule,
		Products: h.productSummaries(ctx, rule.Products),
	})
}

func (h *RuleHandlers) createRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rules == nil {
		httpx.WriteError(ctx, w, httpx.NewError("rules_service_unavailable", "rules service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var req createRuleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cmd := services.CreateRuleCommand{
		Title:            strings.TrimSpace(req.Title),
		DiscountTitle:    strings.TrimSpace(req.DiscountTitle),
		MinimumQuantity:  req.MinimumQuantity,
		PercentOff:       req.PercentOff,
		SelectedProducts: req.SelectedProducts,
	}

	result, err := h.rules.CreateRule(ctx, cmd)
	if err != nil {
		writeRuleMutationFailure(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, mutationResponse(result))
}

func (h *RuleHandlers) updateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rules == nil {
		httpx.WriteError(ctx, w, httpx.NewError("rules_service_unavailable", "rules service unavailable", http.StatusServiceUnavailable))
		return
	}

	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	if slug == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "rule slug is required", http.StatusBadRequest))
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var rule services.Rule
	if err := json.Unmarshal(body, &rule); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	result, err := h.rules.UpdateRule(ctx, slug, services.UpdateRuleCommand{Rule: rule})
	if err != nil {
		writeRuleMutationFailure(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, mutationResponse(result))
}

func (h *RuleHandlers) deleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rules == nil {
		httpx.WriteError(ctx, w, httpx.NewError("rules_service_unavailable", "rules service unavailable", http.StatusServiceUnavailable))
		return
	}

	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	if slug == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "rule slug is required", http.StatusBadRequest))
		return
	}

	result, err := h.rules.DeleteRule(ctx, slug)
	if err != nil {
		writeRuleMutationFailure(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, ruleMutationResponse{
		OK:     true,
		Errors: result.ProjectionErrors,
	})
}

// productSummaries resolves display data for the rule's products, degrading to
// identifier echoes when the catalog is unreachable so the rule itself still renders.
func (h *RuleHandlers) productSummaries(ctx context.Context, ids []services.ProductID) []services.ProductSummary {
	if len(ids) == 0 {
		return []services.ProductSummary{}
	}

	if h.catalog != nil {
		raw := make([]string, 0, len(ids))
		for _, id := range ids {
			raw = append(raw, id.String())
		}
		summaries, err := h.catalog.ProductSummaries(ctx, raw)
		if err == nil {
			return summaries
		}
		observability.FromContext(ctx).Warn("product summaries unavailable", zap.Error(err))
	}

	fallback := make([]services.ProductSummary, 0, len(ids))
	for _, id := range ids {
		fallback = append(fallback, services.ProductSummary{ID: id, Title: id.String()})
	}
	return fallback
}

func (h *RuleHandlers) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxRuleBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return nil, false
	}
	return body, true
}

type createRuleRequest struct {
	Title            string   `json:"title"`
	DiscountTitle    string   `json:"discount_title"`
	MinimumQuantity  int      `json:"minimum_quantity"`
	PercentOff       int      `json:"percent_off"`
	SelectedProducts []string `json:"selected_products"`
}

type listRulesResponse struct {
	Rules []services.RuleSummary `json:"rules"`
}

type getRuleResponse struct {
	Rule     services.Rule             `json:"rule"`
	Products []services.ProductSummary `json:"products"`
}

// ruleMutationResponse reports the outcome of a rule mutation. OK true with a
// non-empty Errors list means the edit committed but some per-product
// projection rewrites failed.
type ruleMutationResponse struct {
	OK     bool           `json:"ok"`
	Slug   string         `json:"slug,omitempty"`
	Rule   *services.Rule `json:"rule,omitempty"`
	Errors []string       `json:"errors,omitempty"`
}

func mutationResponse(result services.RuleMutationResult) ruleMutationResponse {
	rule := result.Rule
	return ruleMutationResponse{
		OK:     true,
		Slug:   result.Slug,
		Rule:   &rule,
		Errors: result.ProjectionErrors,
	}
}

func writeRuleReadError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrRuleNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("rule_not_found", "rule not found", http.StatusNotFound))
	case errors.Is(err, services.ErrRulePersistence):
		httpx.WriteError(ctx, w, httpx.NewError("rule_storage_error", "failed to read rule configuration", http.StatusInternalServerError))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("rule_error", "failed to process rule request", http.StatusInternalServerError))
	}
}

// writeRuleMutationFailure answers failed mutations with the same envelope the
// success path uses, carrying the user-facing message list.
func writeRuleMutationFailure(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	writeJSONResponse(w, mutationFailureStatus(err), ruleMutationResponse{
		OK:     false,
		Errors: mutationFailureMessages(err),
	})
}

func mutationFailureStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrRuleValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrRemoteMutation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mutationFailureMessages(err error) []string {
	var userErrs *repositories.UserErrorList
	if errors.As(err, &userErrs) {
		if messages := userErrs.Messages(); len(messages) > 0 {
			return messages
		}
	}
	return []string{err.Error()}
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxRuleBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
