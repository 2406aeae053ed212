package ipchecker

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	checker, err := New("")
	require.NoError(t, err)
	assert.True(t, checker.IsTrustedSubnetEmpty())
	assert.False(t, checker.Check(net.ParseIP("127.0.0.1")))

	_, err = New("not-a-cidr")
	assert.Error(t, err)
}

func TestClientIP(t *testing.T) {
	type tTestCase struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
		wantErr    bool
	}
	testCases := []tTestCase{
		{
			name:       "x-real-ip is ignored",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Real-IP": "192.168.1.10"},
			want:       "10.0.0.1",
		},
		{
			name:       "x-forwarded-for is ignored",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "172.16.0.1, 10.0.0.2"},
			want:       "10.0.0.1",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "10.0.0.7",
			want:       "10.0.0.7",
		},
		{
			name:       "nothing usable",
			remoteAddr: "pipe",
			wantErr:    true,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/", nil)
			request.RemoteAddr = test.remoteAddr
			for key, value := range test.headers {
				request.Header.Set(key, value)
			}

			ip, err := ClientIP(request)
			if test.wantErr {
				assert.ErrorIs(t, err, ErrNoClientIP)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, ip.String())
		})
	}
}

func TestTrustedSubnetOnly(t *testing.T) {
	type tTestCase struct {
		name       string
		subnet     string
		remoteAddr string
		realIP     string
		wantStatus int
	}
	testCases := []tTestCase{
		{name: "inside subnet", subnet: "192.168.1.0/24", remoteAddr: "192.168.1.50:4000", wantStatus: http.StatusOK},
		{name: "outside subnet", subnet: "192.168.1.0/24", remoteAddr: "10.1.1.1:4000", wantStatus: http.StatusForbidden},
		{name: "spoofed x-real-ip", subnet: "192.168.1.0/24", remoteAddr: "10.1.1.1:4000", realIP: "192.168.1.50", wantStatus: http.StatusForbidden},
		{name: "no subnet configured", subnet: "", remoteAddr: "192.168.1.50:4000", wantStatus: http.StatusForbidden},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			checker, err := New(test.subnet)
			require.NoError(t, err)

			handler := checker.TrustedSubnetOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			request := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			request.RemoteAddr = test.remoteAddr
			if test.realIP != "" {
				request.Header.Set("X-Real-IP", test.realIP)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			assert.Equal(t, test.wantStatus, recorder.Code)
			if test.wantStatus == http.StatusForbidden {
				assert.JSONEq(t, `{"error":true,"message":"Forbidden","data":null}`, recorder.Body.String())
			}
		})
	}
}
