package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/boqledger/internal/authorization"
	"github.com/smallbiznis/boqledger/internal/config"
	"github.com/smallbiznis/boqledger/internal/observability"
	"github.com/smallbiznis/boqledger/internal/ratelimit"
	"github.com/smallbiznis/boqledger/internal/testutil/fixture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type envelope struct {
	Data     json.RawMessage `json:"data"`
	PageInfo json.RawMessage `json:"page_info"`
	Error    errorPayload    `json:"error"`
}

type testServer struct {
	f      *fixture.Fixture
	engine *gin.Engine
	authz  authorization.Service
}

func newTestServer(t *testing.T, authz bool) *testServer {
	t.Helper()
	return newTestServerWithLimiter(t, authz, nil)
}

func newTestServerWithLimiter(t *testing.T, authz bool, limiter *ratelimit.WriteLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := fixture.New(t)
	cfg := config.Config{
		DefaultOrgID:     fixture.OrgID,
		AuthzEnabled:     authz,
		AuthzDefaultRole: authorization.RoleViewer,
	}

	enforcer, err := authorization.NewEnforcer(f.DB)
	require.NoError(t, err)
	authzSvc := authorization.NewService(authorization.Params{
		DB:       f.DB,
		Log:      f.Log,
		Cfg:      cfg,
		Enforcer: enforcer,
		AuditSvc: f.Audit,
	})

	engine := NewEngine(observability.Config{})
	NewServer(ServerParams{
		Gin:            engine,
		Cfg:            cfg,
		Log:            f.Log,
		AuthzSvc:       authzSvc,
		AuditSvc:       f.Audit,
		BoqSvc:         f.Boq,
		CertificateSvc: f.Certificates,
		VariationSvc:   f.Variations,
		AdvanceSvc:     f.AdvancePayments,
		MarginSvc:      f.Margins,
		SubcontractSvc: f.Subcontracts,
		ProductSvc:     f.Products,
		PartnerSvc:     f.Partners,
		Orders:         f.Integration,
		Invoices:       f.Integration,
		Purchases:      f.Integration,
		WriteLimiter:   limiter,
	})
	return &testServer{f: f, engine: engine, authz: authzSvc}
}

func (ts *testServer) do(t *testing.T, method, path, actor string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderOrg, strconv.Itoa(fixture.OrgID))
	if actor != "" {
		req.Header.Set(HeaderActor, actor)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" || rec.Header().Get("Content-Type") == "application/json" {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, false)
	rec, _ := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBoqLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, false)
	customer := ts.f.Customer(t, "PT Maju")
	concrete := ts.f.Product(t, "CON", "Concrete", 100)

	rec, env := ts.do(t, http.MethodPost, "/api/boqs", "", map[string]any{
		"customer_id":    customer.String(),
		"margin_percent": 20,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var boq struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &boq))
	assert.Equal(t, "BOQ/00001", boq.Name)

	rec, env = ts.do(t, http.MethodPost, "/api/boqs/"+boq.ID+"/activities", "", map[string]any{"name": "Structure"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var activity struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &activity))

	rec, _ = ts.do(t, http.MethodPost, "/api/activities/"+activity.ID+"/sub-activities", "", map[string]any{
		"product_id": concrete.ID.String(),
		"master_qty": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env = ts.do(t, http.MethodGet, "/api/boqs", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, env.PageInfo)

	rec, _ = ts.do(t, http.MethodGet, "/api/boqs/"+boq.ID+"/export", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())

	rec, _ = ts.do(t, http.MethodPost, "/api/boqs/"+boq.ID+"/submit", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, false)
	customer := ts.f.Customer(t, "PT Maju")
	boq := ts.f.DraftBoq(t, customer)

	rec, env := ts.do(t, http.MethodGet, "/api/boqs/not-an-id", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Type)

	rec, env = ts.do(t, http.MethodGet, "/api/boqs/12345", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Type)

	rec, env = ts.do(t, http.MethodPost, "/api/boqs/"+boq.ID.String()+"/margin", "", map[string]any{
		"margin_percent": 150,
		"apply_to":       "all",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Type)
	assert.Equal(t, "margin_out_of_range", env.Error.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRejectedTransitionIsConflict(t *testing.T) {
	ts := newTestServer(t, false)
	customer := ts.f.Customer(t, "PT Maju")
	boq := ts.f.DraftBoq(t, customer)

	rec, env := ts.do(t, http.MethodPost, "/api/variations", "", map[string]any{
		"boq_id":      boq.ID.String(),
		"description": "Extra slab",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var variation struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &variation))

	rec, env = ts.do(t, http.MethodPost, "/api/variations/"+variation.ID+"/submit", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "user_error", env.Error.Type)
	assert.Equal(t, "no_changes", env.Error.Code)

	rec, env = ts.do(t, http.MethodPost, "/api/variations/"+variation.ID+"/approve", "u-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", env.Error.Code)
}

func TestAuthorization(t *testing.T) {
	ts := newTestServer(t, true)

	rec, env := ts.do(t, http.MethodGet, "/api/boqs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", env.Error.Type)

	rec, _ = ts.do(t, http.MethodGet, "/api/boqs", "u-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = ts.do(t, http.MethodPost, "/api/products", "u-1", map[string]any{"code": "CON", "name": "Concrete"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", env.Error.Type)

	rec, _ = ts.do(t, http.MethodPut, "/api/roles/u-1", "u-1", map[string]any{"role": "owner"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	owner := "u-owner"
	require.NoError(t, ts.authz.AssignRole(ts.f.Ctx, "user:"+owner, strconv.Itoa(fixture.OrgID), authorization.RoleOwner))

	rec, _ = ts.do(t, http.MethodPut, "/api/roles/u-1", owner, map[string]any{"role": "estimator"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = ts.do(t, http.MethodGet, "/api/roles/me", "u-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var role struct {
		Role string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &role))
	assert.Equal(t, authorization.RoleEstimator, role.Role)

	rec, _ = ts.do(t, http.MethodPost, "/api/products", "u-1", map[string]any{"code": "CON", "name": "Concrete"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

type exhaustedBucket struct{}

func (exhaustedBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*ratelimit.Result, error) {
	return &ratelimit.Result{Allowed: false, Limit: burst, RetryAfter: 1500 * time.Millisecond}, nil
}

func TestWriteRateLimit(t *testing.T) {
	limiter := ratelimit.NewLimiter(exhaustedBucket{}, 1, 5, zap.NewNop())
	ts := newTestServerWithLimiter(t, false, limiter)

	rec, _ := ts.do(t, http.MethodGet, "/api/boqs", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := ts.do(t, http.MethodPost, "/api/products", "", map[string]any{"code": "CON", "name": "Concrete"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "too_many_requests", env.Error.Type)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
}
