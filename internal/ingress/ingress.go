// Package ingress implements the always-on HTTP front-end: the
// connection gate, protocol pipeline, request validator/enricher, and
// the lifecycle that ties them to the route table in package route.
package ingress

import (
	"net"
	"net/http"
	"strconv"
	"time"
)

// ProtocolVersion is a recognized value of the VERSION header.
type ProtocolVersion string

const (
	V1 ProtocolVersion = "V1"
	V2 ProtocolVersion = "V2"
)

var knownVersions = map[ProtocolVersion]struct{}{
	V1: {},
	V2: {},
}

// enrich stamps the ingress timestamp, default protocol version, remote
// IP, and server IP headers onto r, in that order, before validation
// runs.
func enrich(r *http.Request, serverIP string) {
	r.Header.Set("REQ_C2EVENTMESH_TIMESTAMP", strconv.FormatInt(time.Now().UnixMilli(), 10))
	if r.Header.Get("VERSION") == "" {
		r.Header.Set("VERSION", string(V1))
	}
	r.Header.Set("IP", remoteIP(r))
	r.Header.Set("REQ_SEND_EVENTMESH_IP", serverIP)
}

// remoteIP parses the host portion out of r.RemoteAddr, falling back to
// the raw value if it isn't a host:port pair.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// validate returns the HTTP status for the validator's three rejection
// cases (not started, method, version) and whether the request may
// proceed to decoding/dispatch. Malformed HTTP never reaches it: net/http
// answers that with 400 before the handler runs.
func validate(r *http.Request, started bool) (status int, ok bool) {
	if !started {
		return http.StatusServiceUnavailable, false
	}
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		return http.StatusMethodNotAllowed, false
	}
	if _, known := knownVersions[ProtocolVersion(r.Header.Get("VERSION"))]; !known {
		return http.StatusBadRequest, false
	}
	return http.StatusOK, true
}

func statusMessage(status int) string {
	switch status {
	case http.StatusServiceUnavailable:
		return "server not started"
	case http.StatusMethodNotAllowed:
		return "method not allowed"
	case http.StatusBadRequest:
		return "bad request"
	default:
		return http.StatusText(status)
	}
}
