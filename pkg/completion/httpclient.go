package completion

import (
	"net"
	"net/http"
	"time"
)

// Default network bounds for generation calls.
const (
	DefaultConnectTimeout  = 10 * time.Second
	DefaultResponseTimeout = 30 * time.Second
)

// NewHTTPClient returns the client shared by every provider SDK.
// connect bounds dialing and the TLS handshake; response bounds the wait for
// response headers. A timeout surfaces as an ordinary error and is retried.
func NewHTTPClient(connect, response time.Duration) *http.Client {
	if connect <= 0 {
		connect = DefaultConnectTimeout
	}
	if response <= 0 {
		response = DefaultResponseTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connect,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = connect
	transport.ResponseHeaderTimeout = response

	return &http.Client{Transport: transport}
}
