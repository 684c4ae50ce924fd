package routes_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/settlement-service/controllers"
	"github.com/yashrajoria/settlement-service/models"
	"github.com/yashrajoria/settlement-service/providers"
	"github.com/yashrajoria/settlement-service/repository"
	"github.com/yashrajoria/settlement-service/routes"
	"github.com/yashrajoria/settlement-service/services"
	"github.com/yashrajoria/settlement-service/testutil"
	"go.uber.org/zap"
)

const jwtSecret = "routes-test-secret"

type noopVerifier struct{}

func (noopVerifier) Confirm(context.Context, string, string) (*models.Order, services.Outcome, error) {
	return &models.Order{RefCode: "ORD-1"}, services.OutcomeDuplicate, nil
}

func setup(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	logger := zap.NewNop()
	store := repository.NewStore(db)
	dispatcher := services.NewDispatcher(store, services.NewLedgerEngine(logger), services.SideEffects{}, nil, services.FeePolicyNone, logger)
	registry := providers.NewRegistry(providers.NewPaystackProvider("sk_test", "", time.Second))

	return routes.NewRouter(routes.Handlers{
		Payments:   controllers.NewPaymentController(registry, dispatcher, noopVerifier{}, logger),
		Settlement: controllers.NewSettlementController(services.NewQueryService(store, nil, nil, logger)),
		Health:     controllers.NewHealthController(db),
	}, routes.Options{
		Logger:              logger,
		JWTSecret:           jwtSecret,
		VerifyRatePerSecond: 0.001,
		VerifyRateBurst:     1,
	})
}

func adminToken(t *testing.T) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"typ":  "access",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return s
}

func TestReadRoutesRequireJWT(t *testing.T) {
	r := setup(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ledger/audit", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/ledger/audit", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"balanced":true,"imbalances":[]}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestWebhookRouteIsPublicButSigned(t *testing.T) {
	r := setup(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/paystack", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "authentication_failure")
}

func TestVerifyRouteIsRateLimited(t *testing.T) {
	r := setup(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/payments/paystack/verify?reference=trx_1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/payments/paystack/verify?reference=trx_1", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestHealthRoute(t *testing.T) {
	w := httptest.NewRecorder()
	setup(t).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
