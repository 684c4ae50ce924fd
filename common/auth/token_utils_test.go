package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "jwt-test-secret"

func signToken(t *testing.T, claims jwt.MapClaims, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestParseAndValidateToken(t *testing.T) {
	valid := signToken(t, jwt.MapClaims{"typ": "access", "store_id": "s1", "exp": time.Now().Add(time.Hour).Unix()}, jwt.SigningMethodHS256, []byte(testSecret))
	claims, err := ParseAndValidateToken(valid, []byte(testSecret), "access")
	require.NoError(t, err)
	assert.Equal(t, "s1", claims["store_id"])

	_, err = ParseAndValidateToken(valid, []byte("other"), "access")
	assert.Error(t, err)

	_, err = ParseAndValidateToken(valid, []byte(testSecret), "refresh")
	assert.Error(t, err)

	expired := signToken(t, jwt.MapClaims{"typ": "access", "exp": time.Now().Add(-time.Hour).Unix()}, jwt.SigningMethodHS256, []byte(testSecret))
	_, err = ParseAndValidateToken(expired, []byte(testSecret), "access")
	assert.Error(t, err)

	_, err = ParseAndValidateToken(valid, nil, "")
	assert.Error(t, err)
}

func TestRequireJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/orders/:ref", RequireJWT(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"own": CanReadStore(c, "s1"), "other": CanReadStore(c, "s2")})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/ORD-1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := signToken(t, jwt.MapClaims{"typ": "access", "store_id": "s1", "exp": time.Now().Add(time.Hour).Unix()}, jwt.SigningMethodHS256, []byte(testSecret))
	req := httptest.NewRequest(http.MethodGet, "/orders/ORD-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"own":true,"other":false}`, w.Body.String())
}
