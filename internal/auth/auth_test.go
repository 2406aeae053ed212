package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/userapi/internal/models"
	"github.com/patric-chuzhbe/userapi/internal/token"
)

type panickingVerifier struct{}

func (panickingVerifier) Verify(string) token.Result {
	panic("key store exploded")
}

func TestAuthenticate(t *testing.T) {
	issuer := token.New([]byte("test-secret"), time.Hour)
	validToken, err := issuer.Issue(token.Identity{UserID: "u-1", Email: "a@example.com", Name: "Alice"}, 0)
	require.NoError(t, err)

	otherIssuer := token.New([]byte("other-secret"), time.Hour)
	foreignToken, err := otherIssuer.Issue(token.Identity{UserID: "u-1"}, 0)
	require.NoError(t, err)

	type tTestCase struct {
		name        string
		gate        *Gate
		header      string
		wantStatus  int
		wantMessage string
	}
	testCases := []tTestCase{
		{
			name:        "missing header",
			gate:        New(issuer),
			wantStatus:  http.StatusUnauthorized,
			wantMessage: MessageMissingHeader,
		},
		{
			name:        "wrong scheme",
			gate:        New(issuer),
			header:      "Basic " + validToken,
			wantStatus:  http.StatusUnauthorized,
			wantMessage: MessageBadFormat,
		},
		{
			name:        "too many parts",
			gate:        New(issuer),
			header:      "Bearer " + validToken + " extra",
			wantStatus:  http.StatusUnauthorized,
			wantMessage: MessageBadFormat,
		},
		{
			name:        "token without scheme",
			gate:        New(issuer),
			header:      validToken,
			wantStatus:  http.StatusUnauthorized,
			wantMessage: MessageBadFormat,
		},
		{
			name:        "empty token",
			gate:        New(issuer),
			header:      "Bearer ",
			wantStatus:  http.StatusUnauthorized,
			wantMessage: MessageInvalidToken,
		},
		{
			name:        "signed with another secret",
			gate:        New(issuer),
			header:      "Bearer " + foreignToken,
			wantStatus:  http.StatusUnauthorized,
			wantMessage: MessageInvalidToken,
		},
		{
			name:        "verifier panics",
			gate:        New(panickingVerifier{}),
			header:      "Bearer " + validToken,
			wantStatus:  http.StatusUnauthorized,
			wantMessage: MessageFailed,
		},
		{
			name:       "valid token",
			gate:       New(issuer),
			header:     "Bearer " + validToken,
			wantStatus: http.StatusOK,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			var seenUserID string
			handler := test.gate.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seenUserID = UserIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			request := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
			if test.header != "" {
				request.Header.Set("Authorization", test.header)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			assert.Equal(t, test.wantStatus, recorder.Code)
			if test.wantStatus == http.StatusOK {
				assert.Equal(t, "u-1", seenUserID)
				return
			}

			assert.Empty(t, seenUserID, "the protected handler must not run")
			var envelope models.Envelope
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
			assert.True(t, envelope.Error)
			assert.Equal(t, test.wantMessage, envelope.Message)
			assert.Nil(t, envelope.Data)
		})
	}
}

func TestFromContextOutsideGate(t *testing.T) {
	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "", UserIDFromContext(context.Background()))
}
