package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

func login(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLoginHandler(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	a := NewAuthService("test-secret")
	h := LoginHandler(a, AdminCredentials{User: "root", PassHash: string(hash)})

	cases := []struct {
		name string
		body string
		code int
		role string
	}{
		{"teacher dev login", `{"username":"tch-1","password":"tch-1","role":"teacher"}`, http.StatusOK, "teacher"},
		{"student dev login", `{"username":"stu-1","password":"stu-1","role":"student"}`, http.StatusOK, "student"},
		{"wrong password", `{"username":"stu-1","password":"nope","role":"student"}`, http.StatusUnauthorized, ""},
		{"cannot self-assign admin", `{"username":"x","password":"x","role":"admin"}`, http.StatusUnauthorized, ""},
		{"admin with hash", `{"username":"root","password":"s3cret"}`, http.StatusOK, "admin"},
		{"admin bad password", `{"username":"root","password":"root","role":"teacher"}`, http.StatusUnauthorized, ""},
		{"bad json", `{`, http.StatusBadRequest, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := login(t, h, c.body)
			require.Equal(t, c.code, rec.Code)
			if c.code != http.StatusOK {
				return
			}
			var out map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			claims, err := a.Parse(out["access_token"])
			require.NoError(t, err)
			assert.Equal(t, c.role, claims.Role)
		})
	}
}

func TestJWTMiddleware(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewAuthService("test-secret", WithTTL(time.Hour), WithClock(func() time.Time { return now }))

	var gotSub, gotRole string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = SubjectFromContext(r.Context())
		gotRole = rbac.RoleFromContext(r.Context())
	}))
	call := func(header string) int {
		req := httptest.NewRequest(http.MethodGet, "/attempts", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	tok, err := a.IssueJWT("stu-1", "student")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, call("Bearer "+tok))
	assert.Equal(t, "stu-1", gotSub)
	assert.Equal(t, "student", gotRole)

	assert.Equal(t, http.StatusUnauthorized, call(""))
	assert.Equal(t, http.StatusUnauthorized, call("Bearer garbage"))

	forged, err := NewAuthService("other-secret").IssueJWT("stu-1", "admin")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+forged))

	now = now.Add(2 * time.Hour)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+tok), "expired")
}
