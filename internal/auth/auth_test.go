package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-key"
	testIssuer = "school-portal"
)

func TestIssueParse(t *testing.T) {
	token, exp, err := Issue("teacher-1", RoleTeacher, testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := Parse(token, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", claims.Subject)
	assert.Equal(t, RoleTeacher, claims.Role)
}

func TestParseRejects(t *testing.T) {
	valid, _, err := Issue("s-1", RoleStudent, testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	expired, _, err := Issue("s-1", RoleStudent, testIssuer, testKey, -time.Minute)
	require.NoError(t, err)
	otherIssuer, _, err := Issue("s-1", RoleStudent, "elsewhere", testKey, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Subject: "s-1", Role: RoleTeacher}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		key   string
	}{
		{name: "wrong key", token: valid, key: "other"},
		{name: "expired", token: expired, key: testKey},
		{name: "issuer mismatch", token: otherIssuer, key: testKey},
		{name: "alg none", token: none, key: testKey},
		{name: "garbage", token: "a.b.c", key: testKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.token, tt.key, testIssuer)
			assert.Error(t, err)
		})
	}
}

func TestIssueRequiresSubjectAndRole(t *testing.T) {
	_, _, err := Issue("", RoleStudent, testIssuer, testKey, time.Hour)
	assert.Error(t, err)
	_, _, err = Issue("s-1", "", testIssuer, testKey, time.Hour)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/teacher", Authenticate(testKey, testIssuer), RequireRole(RoleTeacher), func(c *gin.Context) {
		p, _ := CurrentPrincipal(c)
		c.String(http.StatusOK, p.ID)
	})

	teacher, _, err := Issue("teacher-1", RoleTeacher, testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	student, _, err := Issue("student-1", RoleStudent, testIssuer, testKey, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantBody string
	}{
		{name: "teacher", header: "Bearer " + teacher, wantCode: http.StatusOK, wantBody: "teacher-1"},
		{name: "lowercase scheme", header: "bearer " + teacher, wantCode: http.StatusOK, wantBody: "teacher-1"},
		{name: "wrong role", header: "Bearer " + student, wantCode: http.StatusUnauthorized},
		{name: "missing", header: "", wantCode: http.StatusUnauthorized},
		{name: "basic auth", header: "Basic abc", wantCode: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", wantCode: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/teacher", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestRequireRoleWithoutAuthenticate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", RequireRole(RoleTeacher), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
