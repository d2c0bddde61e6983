package observability

import (
	"net"
	"net/http"
	"strings"
)

// ClientMeta carries the request-scoped identity attached to websocket
// connections and published events.
type ClientMeta struct {
	DeviceID  string
	IP        string
	RequestID string
}

// ClientMetaFromRequest extracts device id, client ip and request id from the
// handshake request. The first hop of X-Forwarded-For wins over RemoteAddr.
func ClientMetaFromRequest(r *http.Request) ClientMeta {
	return ClientMeta{
		DeviceID:  r.Header.Get("X-Device-Id"),
		IP:        clientIP(r),
		RequestID: r.Header.Get("X-Request-Id"),
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
