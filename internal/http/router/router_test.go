package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/prontocasa-backend/internal/app"
	"github.com/ignatzorin/prontocasa-backend/internal/config"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/http/router"
	"github.com/ignatzorin/prontocasa-backend/internal/infrastructure/memory"
	"github.com/ignatzorin/prontocasa-backend/internal/interface/http/handler"
	"github.com/ignatzorin/prontocasa-backend/internal/service"
	"github.com/ignatzorin/prontocasa-backend/internal/testutil"
	"github.com/ignatzorin/prontocasa-backend/internal/ws"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type server struct {
	engine *gin.Engine
	store  *memory.Store
	tokens *service.TokenManager
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := memory.NewStore()
	hub := ws.NewHub(ctx)
	go hub.Run()
	services := app.NewServices(app.Deps{
		Store:      store,
		Estimator:  testutil.NewEstimator(),
		Notifier:   ws.NewNotifier(hub),
		Processor:  testutil.NewProcessor(),
		Signatures: testutil.NewSignatures(),
	}, testutil.Rules())

	cfg := &config.Config{
		Env:             "test",
		StoreDriver:     "memory",
		AllowedOrigins:  []string{"http://localhost:3000"},
		RateLimitLimit:  100,
		RateLimitPeriod: time.Minute,
	}
	tokens := service.NewTokenManager("test-secret", time.Hour)
	engine := router.SetupRouter(cfg, router.Handlers{
		Health:     handler.NewHealthHandler(nil, cfg.StoreDriver),
		WS:         handler.NewWSHandler(hub, tokens, cfg.AllowedOrigins),
		Request:    handler.NewRequestHandler(services.Requests, services.Dispatcher),
		Quote:      handler.NewQuoteHandler(services.Quotes),
		Payment:    handler.NewPaymentHandler(services.Escrow),
		Technician: handler.NewTechnicianHandler(services.Technicians, services.Dispatcher, services.Jobs),
		Audit:      handler.NewAuditHandler(services.Audit),
	}, tokens, services.Technicians)

	return &server{engine: engine, store: store, tokens: tokens}
}

func (s *server) token(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	tok, _, err := s.tokens.Issue(userID, role, 0)
	require.NoError(t, err)
	return tok
}

// do выполняет запрос и возвращает код ответа и поле data.
func (s *server) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   map[string]any  `json:"error"`
	}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	if resp.Error != nil {
		return w.Code, resp.Error
	}
	var data map[string]any
	if bytes.HasPrefix(resp.Data, []byte("{")) {
		require.NoError(t, json.Unmarshal(resp.Data, &data))
	}
	return w.Code, data
}

func createBody() map[string]any {
	return map[string]any{
		"category":    "plumbing",
		"title":       "Протекает труба под раковиной",
		"description": "Под раковиной на кухне течёт вода из соединения трубы",
		"media_urls":  []string{"https://cdn.example.com/leak.jpg"},
		"latitude":    45.4642,
		"longitude":   9.19,
		"address":     "Via Torino 5, Milano",
	}
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)
}

func TestRouter_AuthAndRoles(t *testing.T) {
	s := newServer(t)

	code, errBody := s.do(t, http.MethodPost, "/api/v1/requests", "", createBody())
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", errBody["code"])

	code, _ = s.do(t, http.MethodPost, "/api/v1/requests", "not-a-token", createBody())
	assert.Equal(t, http.StatusUnauthorized, code)

	techToken := s.token(t, uuid.New(), service.RoleTechnician)
	code, errBody = s.do(t, http.MethodPost, "/api/v1/requests", techToken, createBody())
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", errBody["code"])

	clientToken := s.token(t, uuid.New(), service.RoleClient)
	code, _ = s.do(t, http.MethodGet, "/api/v1/requests/not-a-uuid", clientToken, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodGet, "/api/v1/audit", clientToken, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, http.MethodGet, "/api/v1/technicians/me", techToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestRouter_CreateValidation(t *testing.T) {
	s := newServer(t)
	clientToken := s.token(t, uuid.New(), service.RoleClient)

	body := createBody()
	delete(body, "latitude")
	code, _ := s.do(t, http.MethodPost, "/api/v1/requests", clientToken, body)
	assert.Equal(t, http.StatusBadRequest, code)

	body = createBody()
	body["category"] = "gardening"
	code, errBody := s.do(t, http.MethodPost, "/api/v1/requests", clientToken, body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", errBody["code"])
}

func TestRouter_RequestLifecycle(t *testing.T) {
	s := newServer(t)
	first := testutil.SeedTechnician(t, s.store, "plumbing", testutil.WithRating(4.9, 10))
	second := testutil.SeedTechnician(t, s.store, "plumbing", testutil.WithRating(4.2, 3))

	clientID := uuid.New()
	clientToken := s.token(t, clientID, service.RoleClient)
	firstToken := s.token(t, first.UserID, service.RoleTechnician)
	secondToken := s.token(t, second.UserID, service.RoleTechnician)
	adminToken := s.token(t, uuid.New(), service.RoleAdmin)

	code, data := s.do(t, http.MethodPost, "/api/v1/requests", clientToken, createBody())
	require.Equal(t, http.StatusCreated, code, data)
	created := data["request"].(map[string]any)
	requestID := created["id"].(string)
	assert.Equal(t, "dispatching", created["status"])
	assert.Regexp(t, `^REQ-\d{8}-[A-Z]{4}$`, created["reference_code"])
	assert.EqualValues(t, 25000, data["quote"].(map[string]any)["initial_max_cents"])

	code, data = s.do(t, http.MethodGet, "/api/v1/technicians/me/offers", secondToken, nil)
	assert.Equal(t, http.StatusOK, code, data)

	code, _ = s.do(t, http.MethodPost, "/api/v1/requests/"+requestID+"/accept", firstToken, map[string]any{"eta_minutes": 2})
	assert.Equal(t, http.StatusBadRequest, code)

	code, data = s.do(t, http.MethodPost, "/api/v1/requests/"+requestID+"/accept", firstToken, map[string]any{"eta_minutes": 30})
	require.Equal(t, http.StatusOK, code, data)
	assert.Equal(t, "accepted", data["status"])
	assert.Equal(t, first.ID.String(), data["technician_id"])

	code, data = s.do(t, http.MethodPost, "/api/v1/requests/"+requestID+"/accept", secondToken, map[string]any{"eta_minutes": 15})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFLICT", data["code"])

	strangerToken := s.token(t, uuid.New(), service.RoleClient)
	code, _ = s.do(t, http.MethodGet, "/api/v1/requests/"+requestID, strangerToken, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, data = s.do(t, http.MethodGet, "/api/v1/requests/"+requestID, firstToken, nil)
	require.Equal(t, http.StatusOK, code, data)

	code, data = s.do(t, http.MethodPost, "/api/v1/requests/"+requestID+"/payment", clientToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code, data)
	assert.Equal(t, "INVALID_TRANSITION", data["code"])

	code, data = s.do(t, http.MethodPost, "/api/v1/requests/"+requestID+"/quote/decision", clientToken, map[string]any{"approve": true})
	require.Equal(t, http.StatusOK, code, data)

	code, data = s.do(t, http.MethodPost, "/api/v1/requests/"+requestID+"/payment", clientToken, nil)
	require.Equal(t, http.StatusCreated, code, data)
	assert.Equal(t, "pending", data["status"])
	assert.EqualValues(t, 25000, data["amount_cents"])
	paymentID := data["id"].(string)

	code, data = s.do(t, http.MethodPost, "/api/v1/payments/"+paymentID+"/confirm", clientToken, nil)
	require.Equal(t, http.StatusOK, code, data)
	assert.Equal(t, "held", data["status"])

	code, data = s.do(t, http.MethodPost, "/api/v1/requests/"+requestID+"/cancel", clientToken, map[string]any{"reason": "передумал"})
	require.Equal(t, http.StatusOK, code, data)
	assert.Equal(t, "cancelled", data["request"].(map[string]any)["status"])
	penalty := data["penalty"].(map[string]any)
	assert.EqualValues(t, 5000, penalty["total_cents"])
	assert.EqualValues(t, 1250, penalty["to_platform_cents"])
	assert.EqualValues(t, 3750, penalty["to_technician_cents"])
	assert.EqualValues(t, 20000, penalty["refund_cents"])
	refunded := data["payment"].(map[string]any)
	assert.Equal(t, "partial_refund", refunded["status"])
	assert.EqualValues(t, 20000, refunded["refunded_amount_cents"])

	code, data = s.do(t, http.MethodGet, "/api/v1/audit?entity_type=request&entity_id="+requestID, adminToken, nil)
	require.Equal(t, http.StatusOK, code, data)

	code, data = s.do(t, http.MethodGet, "/api/v1/audit?entity_type=invoice", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, code, data)
}

func TestRouter_ManualDispatch(t *testing.T) {
	s := newServer(t)
	tech := testutil.SeedTechnician(t, s.store, "plumbing")

	clientID := uuid.New()
	now := time.Now().UTC()
	params := testutil.RequestParams(clientID, "plumbing")
	params.ReferenceCode = "REQ-20261018-DSPT"
	req, err := entity.NewRequest(params, now)
	require.NoError(t, err)
	require.NoError(t, req.ApplyAssessment(valueobject.Assessment{
		Severity:   valueobject.SeverityMedium,
		Confidence: 70,
		PriceRange: valueobject.PriceRange{Min: 8000, Max: 25000},
	}, now))
	require.NoError(t, s.store.Requests().Create(context.Background(), req))
	path := "/api/v1/requests/" + req.ID.String() + "/dispatch"

	code, _ := s.do(t, http.MethodPost, path, s.token(t, uuid.New(), service.RoleClient), nil)
	assert.Equal(t, http.StatusNotFound, code)

	clientToken := s.token(t, clientID, service.RoleClient)
	code, data := s.do(t, http.MethodPost, path, clientToken, nil)
	require.Equal(t, http.StatusOK, code, data)
	assert.Equal(t, "dispatching", data["request"].(map[string]any)["status"])
	round := data["dispatch_round"].(map[string]any)
	assert.EqualValues(t, 1, round["number"])
	assert.Equal(t, []any{tech.ID.String()}, round["technician_ids"])

	code, data = s.do(t, http.MethodPost, path, clientToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code, data)
	assert.Equal(t, "INVALID_TRANSITION", data["code"])
}

func TestRouter_AuditPagination(t *testing.T) {
	s := newServer(t)
	adminToken := s.token(t, uuid.New(), service.RoleAdmin)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.store.Audit().Append(context.Background(), &entity.AuditEntry{
			ID:         uuid.New(),
			Action:     entity.AuditRequestCreated,
			EntityType: entity.AuditEntityRequest,
			EntityID:   uuid.New(),
			CreatedAt:  time.Now().UTC(),
		}))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit?limit=2", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data       []map[string]any `json:"data"`
		Pagination struct {
			Total   int  `json:"total"`
			Limit   int  `json:"limit"`
			HasMore bool `json:"has_more"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
	assert.Equal(t, 3, resp.Pagination.Total)
	assert.Equal(t, 2, resp.Pagination.Limit)
	assert.True(t, resp.Pagination.HasMore)
}
