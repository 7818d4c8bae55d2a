package floodgate

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// KeyExtractor extracts the source identity from an HTTP request. The
// engine treats the result as an opaque key (IP, API key, user ID).
type KeyExtractor func(*http.Request) (string, error)

// ExtractIP returns a KeyExtractor that uses the client's IP address from
// RemoteAddr.
func ExtractIP() KeyExtractor {
	return func(r *http.Request) (string, error) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			// RemoteAddr might not carry a port in some edge cases
			ip = r.RemoteAddr
		}
		if ip == "" {
			return "", fmt.Errorf("%w: empty IP address", ErrKeyExtractionFailed)
		}
		return ip, nil
	}
}

// ExtractIPWithProxy returns a KeyExtractor that considers proxy headers.
// It checks X-Forwarded-For and X-Real-IP before falling back to RemoteAddr,
// which matters behind a reverse proxy or load balancer.
func ExtractIPWithProxy() KeyExtractor {
	return func(r *http.Request) (string, error) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// The first entry in the comma-separated list is the
			// original client.
			ips := strings.Split(xff, ",")
			if ip := strings.TrimSpace(ips[0]); ip != "" {
				return ip, nil
			}
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri, nil
		}

		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if ip == "" {
			return "", fmt.Errorf("%w: empty IP address", ErrKeyExtractionFailed)
		}
		return ip, nil
	}
}

// ExtractHeader returns a KeyExtractor that uses a specific HTTP header.
// Example: ExtractHeader("X-API-Key").
func ExtractHeader(headerName string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		value := r.Header.Get(headerName)
		if value == "" {
			return "", fmt.Errorf("%w: header %s not found or empty", ErrKeyExtractionFailed, headerName)
		}
		return value, nil
	}
}

// ExtractBearer returns a KeyExtractor that uses the Bearer token from the
// Authorization header.
func ExtractBearer() KeyExtractor {
	return func(r *http.Request) (string, error) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			return "", fmt.Errorf("%w: Authorization header not found", ErrKeyExtractionFailed)
		}
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) {
			return "", fmt.Errorf("%w: Authorization header is not a Bearer token", ErrKeyExtractionFailed)
		}
		token := strings.TrimSpace(auth[len(prefix):])
		if token == "" {
			return "", fmt.Errorf("%w: empty Bearer token", ErrKeyExtractionFailed)
		}
		return token, nil
	}
}

// ExtractComposite returns a KeyExtractor that tries each extractor in
// order and uses the first that succeeds.
func ExtractComposite(extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) (string, error) {
		for _, extract := range extractors {
			if key, err := extract(r); err == nil {
				return key, nil
			}
		}
		return "", fmt.Errorf("%w: no extractor produced a key", ErrKeyExtractionFailed)
	}
}
