// Package ipchecker extracts the client IP of a request and guards routes
// that only a trusted subnet may reach.
package ipchecker

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/patric-chuzhbe/userapi/internal/logger"
	"github.com/patric-chuzhbe/userapi/internal/models"
)

// ErrNoClientIP is returned when no usable address is found in the request.
var ErrNoClientIP = errors.New("cannot determine client IP")

// IPChecker holds the trusted subnet. The zero subnet trusts nobody.
type IPChecker struct {
	trustedSubnet *net.IPNet
}

// New parses trustedSubnet in CIDR notation; an empty string disables the
// subnet so every Check fails.
func New(trustedSubnet string) (*IPChecker, error) {
	if trustedSubnet == "" {
		return &IPChecker{}, nil
	}

	_, allowedNet, err := net.ParseCIDR(trustedSubnet)
	if err != nil {
		return nil, fmt.Errorf("in internal/ipchecker/ipchecker.go/New(): error while `net.ParseCIDR()` calling: %w", err)
	}

	return &IPChecker{
		trustedSubnet: allowedNet,
	}, nil
}

// Check reports whether clientIP lies in the trusted subnet.
func (checker *IPChecker) Check(clientIP net.IP) bool {
	return checker.trustedSubnet != nil && clientIP != nil && checker.trustedSubnet.Contains(clientIP)
}

// GetClientIP returns the address of RemoteAddr. Forwarding headers are
// never read here; behind a trusted proxy the router's RealIP middleware
// copies them into RemoteAddr first.
func (checker *IPChecker) GetClientIP(request *http.Request) (net.IP, error) {
	return ClientIP(request)
}

// ClientIP is GetClientIP without a checker.
func ClientIP(request *http.Request) (net.IP, error) {
	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		host = request.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("in internal/ipchecker/ipchecker.go/ClientIP(): %w: %q", ErrNoClientIP, request.RemoteAddr)
	}

	return ip, nil
}

// IsTrustedSubnetEmpty reports whether no trusted subnet is configured.
func (checker *IPChecker) IsTrustedSubnetEmpty() bool {
	return checker.trustedSubnet == nil
}

// TrustedSubnetOnly answers 403 unless the client is inside the trusted
// subnet.
func (checker *IPChecker) TrustedSubnetOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		if checker.IsTrustedSubnetEmpty() {
			models.WriteError(response, http.StatusForbidden, "Forbidden")
			return
		}

		clientIP, err := checker.GetClientIP(request)
		if err != nil {
			logger.Log.Debugln("Error calling the `checker.GetClientIP()`: ", err)
			models.WriteError(response, http.StatusForbidden, "Forbidden")
			return
		}

		if !checker.Check(clientIP) {
			models.WriteError(response, http.StatusForbidden, "Forbidden")
			return
		}

		next.ServeHTTP(response, request)
	})
}
