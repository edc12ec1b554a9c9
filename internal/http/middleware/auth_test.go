package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/internal/http/middleware"
)

const secret = "test-secret"

func signedToken(t *testing.T, subject string, expires time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": expires.Unix(),
	})

	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	return s
}

func TestAuthenticated(t *testing.T) {
	userID := uuid.New()

	var gotUserID uuid.UUID

	handler := middleware.Authenticated(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = middleware.UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	type testCase struct {
		name       string
		authHeader string
		wantStatus int
	}

	tests := []testCase{
		{
			name:       "ValidToken",
			authHeader: "Bearer " + signedToken(t, userID.String(), time.Now().Add(time.Hour)),
			wantStatus: http.StatusOK,
		},
		{
			name:       "MissingHeader",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "NotBearer",
			authHeader: "Basic abc",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "ExpiredToken",
			authHeader: "Bearer " + signedToken(t, userID.String(), time.Now().Add(-time.Hour)),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "NonUUIDSubject",
			authHeader: "Bearer " + signedToken(t, "alice", time.Now().Add(time.Hour)),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "GarbageToken",
			authHeader: "Bearer not.a.token",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gotUserID = uuid.Nil

			req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)

			if tc.wantStatus == http.StatusOK {
				assert.Equal(t, userID, gotUserID)
			} else {
				assert.Equal(t, uuid.Nil, gotUserID, "handler must not run without a valid token")
			}
		})
	}
}
