package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jmartinez0/quantity-breaks/internal/platform/auth"
	"github.com/jmartinez0/quantity-breaks/internal/repositories"
	"github.com/jmartinez0/quantity-breaks/internal/services"
)

func ruleTestIdentity() *auth.Identity {
	return &auth.Identity{ShopDomain: "demo-shop.myshopify.com", UserID: "42"}
}

func newRuleRequest(method, target string, body string) *http.Request {
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBuffer(nil)
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(auth.WithIdentity(req.Context(), ruleTestIdentity()))
}

func TestRuleHandlersListSuccess(t *testing.T) {
	service := &stubRulesService{
		listFunc: func(ctx context.Context) ([]services.RuleSummary, error) {
			return []services.RuleSummary{
				{Slug: "bulk-tea", Title: "Bulk Tea", Status: services.RuleStatus("active"), TierCount: 2, ProductCount: 3},
				{Slug: "mugs", Title: "Mugs", Status: services.RuleStatus("inactive"), TierCount: 1, ProductCount: 1},
			}, nil
		},
	}

	router := NewRouter(WithRuleRoutes(NewRuleHandlers(nil, service, nil).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newRuleRequest(http.MethodGet, "/api/v1/rules", ""))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var payload listRulesResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(payload.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(payload.Rules))
	}
	if payload.Rules[0].Slug != "bulk-tea" || payload.Rules[0].TierCount != 2 {
		t.Fatalf("unexpected first summary: %+v", payload.Rules[0])
	}
}

func TestRuleHandlersListEmpty(t *testing.T) {
	service := &stubRulesService{
		listFunc: func(ctx context.Context) ([]services.RuleSummary, error) {
			return nil, nil
		},
	}

	router := NewRouter(WithRuleRoutes(NewRuleHandlers(nil, service, nil).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newRuleRequest(http.MethodGet, "/api/v1/rules", ""))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if body := strings.TrimSpace(resp.Body.String()); body != `{"rules":[]}` {
		t.Fatalf("expected empty rules array, got %s", body)
	}
}

func TestRuleHandlersGetResolvesSummaries(t *testing.T) {
	rule := services.Rule{
		Title:    "Bulk Tea",
		Status:   services.RuleStatus("active"),
		Products: []services.ProductID{"gid://shopify/Product/1", "gid://shopify/Product/2"},
		Tiers:    []services.Tier{{Title: "10+ boxes", MinQuantity: 10, PercentOff: 15, DiscountID: "gid://shopify/DiscountAutomaticNode/9"}},
	}

	service := &stubRulesService{
		getFunc: func(ctx context.Context, slug string) (services.Rule, error) {
			if slug != "bulk-tea" {
				t.Fatalf("unexpected slug %s", slug)
			}
			return rule, nil
		},
	}
	catalog := &stubCatalogService{
		summariesFunc: func(ctx context.Context, ids []string) ([]services.ProductSummary, error) {
			if len(ids) != 2 {
				t.Fatalf("expected 2 ids, got %v", ids)
			}
			return []services.ProductSummary{
				{ID: "gid://shopify/Product/1", Title: "Green Tea", ImageURL: "https://cdn/img1.png"},
				{ID: "gid://shopify/Product/2", Title: "Black Tea", ImageURL: ""},
			}, nil
		},
	}

	router := NewRouter(WithRuleRoutes(NewRuleHandlers(nil, service, catalog).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newRuleRequest(http.MethodGet, "/api/v1/rules/bulk-tea", ""))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var payload getRuleResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Rule.Title != "Bulk Tea" {
		t.Fatalf("expected rule title, got %s", payload.Rule.Title)
	}
	if len(payload.Products) != 2 || payload.Products[0].Title != "Green Tea" {
		t.Fatalf("unexpected products payload: %+v", payload.Products)
	}
}

func TestRuleHandlersGetDegradesWhenCatalogFails(t *testing.T) {
	service := &stubRulesService{
		getFunc: func(ctx context.Context, slug string) (services.Rule, error) {
			return services.Rule{
				Title:    "Bulk Tea",
				Status:   services.RuleStatus("active"),
				Products: []services.ProductID{"gid://shopify/Product/1"},
			}, nil
		},
	}
	catalog := &stubCatalogService{
		summariesFunc: func(ctx context.Context, ids []string) ([]services.ProductSummary, error) {
			return nil, fmt.Errorf("catalog offline")
		},
	}

	router := NewRouter(WithRuleRoutes(NewRuleHandlers(nil, service, catalog).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newRuleRequest(http.MethodGet, "/api/v1/rules/bulk-tea", ""))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 despite catalog failure, got %d", resp.Code)
	}

	var payload getRuleResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(payload.Products) != 1 {
		t.Fatalf("expected identifier fallback, got %+v", payload.Products)
	}
	if payload.Products[0].Title != "gid://shopify/Product/1" {
		t.Fatalf("expected identifier echoed as title, got %s", payload.Products[0].Title)
	}
}

func TestRuleHandlersGetNotFound(t *testing.T) {
	service := &stubRulesService{
		getFunc: func(ctx context.Context, slug string) (services.Rule, error) {
			return services.Rule{}, fmt.Errorf("%w: %s", services.ErrRuleNotFound, slug)
		},
	}

	router := NewRouter(WithRuleRoutes(NewRuleHandlers(nil, service, nil).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newRuleRequest(http.MethodGet, "/api/v1/rules/missing", ""))

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["error"] != "rule_not_found" {
		t.Fatalf("expected rule_not_found error, got %v", body["error"])
	}
}

func TestRuleHandlersCreateSuccess(t *testing.T) {
	var captured services.CreateRuleCommand
	service := &stubRulesService{
		createFunc: func(ctx context.Context, cmd services.CreateRuleCommand) (services.RuleMutationResult, error) {
			captured = cmd
			return services.RuleMutationResult{
				Rule: services.Rule{
					Title:    "Bulk Tea",
					Status:   services.RuleStatus("active"),
					Products: []services.ProductID{"gid://shopify/Product/1"},
					Tiers:    []services.Tier{{Title: "10+ boxes", MinQuantity: 10, PercentOff: 15}},
				},
				Slug: "bulk-tea",
			}, nil
		},
	}

	router := NewRouter(WithRuleRoutes(NewRuleHandlers(nil, service, nil).Routes))

	body := `{"title":" Bulk Tea ","discount_title":" 10+ boxes ","minimum_quantity":10,"percent_off":15,"selected_products":["gid://shopify/Product/1"]}`
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newRuleRequest(http.MethodPost, "/api/v1/rules", body))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}
	if captured.Title != "Bulk Tea" || captured.DiscountTitle != "10+ boxes" {
		t.Fatalf("expected trimmed titles, got %+v", captured)
	}
	if captured.MinimumQuantity != 10 || captured.PercentOff != 15 {
		t.Fatalf("unexpected tier values: %+v", captured)
	}

	var payload ruleMutationResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !payload.OK {
		t.Fatalf("expected ok response, got %+v", payload)
	}
	if payload.Slug != "bulk-tea" {
		t.Fatalf("expected slug bulk-tea, got %s", payload.Slug)
	}
	if payload.Rule == nil || payload.Rule.Title != "Bulk Tea" {
		t.Fatalf("expected rule payload, got %+v", payload.Rule)
	}
	if len(payload.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", payload.Errors)
	}
}

func TestRuleHandlersCreateSurfacesPlatformRejections(t *testing.T) {
	service := &stubRulesService{
		createFunc: func(ctx context.Context, cmd services.CreateRuleCommand) (services.RuleMutationResult, error) {
			userErrs := &repositories.UserErrorList{
				Op: "discountAutomaticBasicCreate",
				Errors: []repositories.UserError{
					{Field: []string{"title"}, Message: "has already been taken"},
					{Message: "discount limit reached"},
				},
			}
			return services.RuleMutationResult{}, fmt.Errorf("%w: discountAutomaticBasicCreate: %w", services.ErrRemoteMutation, userErrs)
		},
	}

	router := NewRouter(WithRuleRoutes(NewRuleHandlers(nil, service, nil).Routes))

	body := `{"title":"Bulk Tea","discount_title":"10+","minimum_quantity":10,"percent_off":15,"selected_products":["gid://shopify/Product/1"]}`
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newRuleRequest(http.MethodPost, "/api/v1/rules", body))

	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", resp.Code)
	}

	var payload ruleMutationResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.OK {
		t.Fatalf("expected ok=false, got %+v", payload)
	}
	expected := []string{"title: has already been taken", "discount limit reached"}
	if len(payload.Errors) != len(expected) {
		t.Fatalf("expected %d errors, got %v", len(expected), payload.Errors)
	}
	for i, msg := range expected {
		if payload.Errors[i] != msg {
			t.Fatalf("expected error %q, got %q", msg, payload.Errors[i])
		}
	}
}

func TestRuleHandlersUpdateSuccessWithProjectionFailures(t *testing.T) {
	var capturedSlug string
	var captured services.UpdateRuleCommand
	service := &stubRulesService{
		updateFunc: func(ctx context.Context, slug string, cmd services.UpdateRuleCommand) (services.RuleMutationResult, error) {
			capturedSlug = slug
			captured = cmd
			return services.RuleMutationResult{
				Rule:             cmd.Rule,
				Slug:             slug,
				ProjectionErrors: []string{"batch of 3 products: metafieldsSet failed"},
			}, nil
		},
	}

	router := NewRouter(WithRuleRoutes(NewRuleHandlers(nil, service, nil).Routes))

	body := `{"title":"Bulk Tea","status":"inactive","products":["gid://shopify/Product/1"],"tiers":[{"title":"10+ boxes","min_quantity":10,"percent_off":15,"discount_id":"gid://shopify/DiscountAutomaticNode/9"}]}`
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newRuleRequest(http.MethodPut, "/api/v1/rules/bulk-tea", body))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if capturedSlug != "bulk-tea" {
		t.Fatalf("expected slug bulk-tea, got %s", capturedSlug)
	}
	if captured.Rule.Title != "Bulk Tea" || len(captured.Rule.Tiers) != 1 {
		t.Fatalf("unexpected decoded rule: %+v", captured.Rule)
	}
	if captured.Rule.Tiers[0].DiscountID != "gid://shopify/DiscountAutomaticNode/9" {
		t.Fatalf("expected discount id preserved, got %+v", captured.Rule.Tiers[0])
	}

	var payload ruleMutationResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !payload.OK {
		t.Fatalf("expected ok=true for committed edit, got %+v", payload)
	}
	if len(payload.Errors) != 1 || !strings.Contains(payload.Errors[0], "metafieldsSet failed") {
		t.Fatalf("expected projection failure surfaced, got %v", payload.Errors)
	}
}

func TestRuleHandlersUpdateDropsUnprefixedProducts(t *testing.T) {
	var captured services.UpdateRuleCommand
	service := &stubRulesService{
		updateFunc: func(ctx context.Context, slug string, cmd services.UpdateRuleCommand) (services.RuleMutationResult, error) {
			captured = cmd
			return services.RuleMutationResult{Rule: cmd.Rule, Slug: slug}, nil
		},
	}

	router := NewRouter(WithRuleRoutes(NewRuleHandlers(nil, service, nil).Routes))

	body := `{"title":"Bulk Tea","status":"active","products":["gid://shopify/Product/1","12345"," "],"tiers":[{"title":"10+","min_quantity":10,"percent_off":15}]}`
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newRuleRequest(http.MethodPut, "/api/v1/rules/bulk-tea", body))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if len(captured.Rule.Products) != 1 || captured.Rule.Products[0] != "gid://shopify/Product/1" {
		t.Fatalf("expected unprefixed products dropped at decode time, got %v", captured.Rule.Products)
	}
}

func TestRuleHandlersMutationErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "validation", err: fmt.Errorf("%w: title is required", services.ErrRuleValidation), expected: http.StatusUnprocessableEntity},
		{name: "not found", err: fmt.Errorf("%w: bulk-tea", services.ErrRuleNotFound), expected: http.StatusNotFound},
		{name: "remote mutation", err: fmt.Errorf("%w: discountAutomaticBasicUpdate: boom", services.ErrRemoteMutation), expected: http.StatusBadGateway},
		{name: "persistence", err: fmt.Errorf("%w: write configuration: boom", services.ErrRulePersistence), expected: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &stubRulesService{
				updateFunc: func(ctx context.Context, slug string, cmd services.UpdateRuleCommand) (services.RuleMutationResult, error) {
					return services.RuleMutationResult{}, tt.err
				},
			}

			router := NewRouter(WithRuleRoutes(NewRuleHandlers(nil, service, nil).Routes))

			body := `{"title":"Bulk Tea","status":"active","products":["gid://shopify/Product/1"],"tiers":[{"title":"10+","min_quantity":10,"percent_off":15}]}`
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, newRuleRequest(http.MethodPut, "/api/v1/rules/bulk-tea", body))

			if resp.Code != tt.expected {
				t.Fatalf("expected status %d, got %d", tt.expected, resp.Code)
			}

			var payload ruleMutationResponse
			if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if payload.OK {
				t.Fatalf("expected ok=false, got %+v", payload)
			}
			if len(payload.Errors) != 1 || payload.Errors[0] != tt.err.Error() {
				t.Fatalf("expected single error %q, got %v", tt.err.Error(), payload.Errors)
			}
		})
	}
}

func TestRuleHandlersDeleteSuccess(t *testing.T) {
	var capturedSlug string
	service := &stubRulesService{
		deleteFunc: func(ctx context.Context, slug string) (services.DeleteRuleResult, error) {
			capturedSlug = slug
			return services.DeleteRuleResult{}, nil
		},
	}

	router := NewRouter(WithRuleRoutes(NewRuleHandlers(nil, service, nil).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newRuleRequest(http.MethodDelete, "/api/v1/rules/bulk-tea", ""))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if capturedSlug != "bulk-tea" {
		t.Fatalf("expected slug bulk-tea, got %s", capturedSlug)
	}
	if body := strings.TrimSpace(resp.Body.String()); body != `{"ok":true}` {
		t.Fatalf("expected bare ok response, got %s", body)
	}
}

func TestRuleHandlersDeleteReportsProjectionFailures(t *testing.T) {
	service := &stubRulesService{
		deleteFunc: func(ctx context.Context, slug string) (services.DeleteRuleResult, error) {
			return services.DeleteRuleResult{ProjectionErrors: []string{"batch of 2 products: metafieldsSet failed"}}, nil
		},
	}

	router := NewRouter(WithRuleRoutes(NewRuleHandlers(nil, service, nil).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newRuleRequest(http.MethodDelete, "/api/v1/rules/bulk-tea", ""))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var payload ruleMutationResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !payload.OK || len(payload.Errors) != 1 {
		t.Fatalf("expected committed delete with one projection failure, got %+v", payload)
	}
}

func TestRuleHandlersInvalidJSON(t *testing.T) {
	router := NewRouter(WithRuleRoutes(NewRuleHandlers(nil, &stubRulesService{}, nil).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newRuleRequest(http.MethodPost, "/api/v1/rules", "{bad json}"))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestRuleHandlersEmptyBody(t *testing.T) {
	router := NewRouter(WithRuleRoutes(NewRuleHandlers(nil, &stubRulesService{}, nil).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newRuleRequest(http.MethodPost, "/api/v1/rules", ""))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestRuleHandlersServiceUnavailable(t *testing.T) {
	router := NewRouter(WithRuleRoutes(NewRuleHandlers(nil, nil, nil).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newRuleRequest(http.MethodGet, "/api/v1/rules", ""))

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", resp.Code)
	}
}

func TestRuleHandlersRequireSession(t *testing.T) {
	authn := auth.NewAuthenticator(nil)
	router := NewRouter(WithRuleRoutes(NewRuleHandlers(authn, &stubRulesService{}, nil).Routes))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without session token, got %d", resp.Code)
	}
}

type stubRulesService struct {
	listFunc   func(ctx context.Context) ([]services.RuleSummary, error)
	getFunc    func(ctx context.Context, slug string) (services.Rule, error)
	createFunc func(ctx context.Context, cmd services.CreateRuleCommand) (services.RuleMutationResult, error)
	updateFunc func(ctx context.Context, slug string, cmd services.UpdateRuleCommand) (services.RuleMutationResult, error)
	deleteFunc func(ctx context.Context, slug string) (services.DeleteRuleResult, error)
}

func (s *stubRulesService) ListRules(ctx context.Context) ([]services.RuleSummary, error) {
	if s == nil || s.listFunc == nil {
		return nil, nil
	}
	return s.listFunc(ctx)
}

func (s *stubRulesService) GetRule(ctx context.Context, slug string) (services.Rule, error) {
	if s == nil || s.getFunc == nil {
		return services.Rule{}, nil
	}
	return s.getFunc(ctx, slug)
}

func (s *stubRulesService) CreateRule(ctx context.Context, cmd services.CreateRuleCommand) (services.RuleMutationResult, error) {
	if s == nil || s.createFunc == nil {
		return services.RuleMutationResult{}, nil
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubRulesService) UpdateRule(ctx context.Context, slug string, cmd services.UpdateRuleCommand) (services.RuleMutationResult, error) {
	if s == nil || s.updateFunc == nil {
		return services.RuleMutationResult{}, nil
	}
	return s.updateFunc(ctx, slug, cmd)
}

func (s *stubRulesService) DeleteRule(ctx context.Context, slug string) (services.DeleteRuleResult, error) {
	if s == nil || s.deleteFunc == nil {
		return services.DeleteRuleResult{}, nil
	}
	return s.deleteFunc(ctx, slug)
}

type stubCatalogService struct {
	summariesFunc func(ctx context.Context, ids []string) ([]services.ProductSummary, error)
	searchFunc    func(ctx context.Context, filter services.ProductSearchFilter) (services.ProductSearchPage, error)
}

func (s *stubCatalogService) ProductSummaries(ctx context.Context, ids []string) ([]services.ProductSummary, error) {
	if s == nil || s.summariesFunc == nil {
		return nil, nil
	}
	return s.summariesFunc(ctx, ids)
}

func (s *stubCatalogService) SearchProducts(ctx context.Context, filter services.ProductSearchFilter) (services.ProductSearchPage, error) {
	if s == nil || s.searchFunc == nil {
		return services.ProductSearchPage{}, nil
	}
	return s.searchFunc(ctx, filter)
}
