package server

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/teranos/samplegen/errors"
)

// checkOrigin reports whether origin matches one of the allowed prefixes.
// Prefix matching allows any port number.
func checkOrigin(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return strings.HasPrefix(origin, "http://localhost") ||
			strings.HasPrefix(origin, "http://127.0.0.1")
	}
	for _, prefix := range allowed {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// isPortAvailable checks if a port is available for binding
func isPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = listener.Close() // Best-effort check, the real bind may still race
	return true
}

// findAvailablePort tries the requested port, then up to 10 ports after it
func findAvailablePort(requestedPort int) (int, error) {
	for port := requestedPort; port <= requestedPort+10; port++ {
		if isPortAvailable(port) {
			return port, nil
		}
	}
	return 0, errors.Newf("no available port in range %d-%d", requestedPort, requestedPort+10)
}

func itoa(n int) string { return strconv.Itoa(n) }
