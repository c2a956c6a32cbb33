// Package respond converts dispatch outcomes into well-formed HTTP
// responses: JSON envelopes for the code and URI paths, and plain-text
// status-only bodies for the four validator failures.
package respond

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
)

// Result codes for the mesh-level envelope. Zero is success; non-zero
// values are the taxonomy named in the ingress error design.
const (
	CodeOK                 = 0
	CodeRequestCodeInvalid = 1001
	CodeRuntimeErr         = 1002
	CodeRejectByProcessor  = 1003
	CodeOverload           = 1004
)

var retMsg = map[int]string{
	CodeOK:                 "SUCCESS",
	CodeRequestCodeInvalid: "REQUESTCODE_INVALID",
	CodeRuntimeErr:         "RUNTIME_ERR",
	CodeRejectByProcessor:  "REJECT_BY_PROCESSOR_ERROR",
	CodeOverload:           "OVERLOAD",
}

// RetMsg returns the canonical message for a result code.
func RetMsg(code int) string {
	if m, ok := retMsg[code]; ok {
		return m
	}
	return "UNKNOWN"
}

// Envelope is the JSON document returned to clients on both the code and
// URI paths.
type Envelope struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Body    any    `json:"body,omitempty"`
}

// Write marshals env as the response body with status 200 — mesh-level
// errors (overload, invalid code, runtime error) are always reported
// with HTTP 200 plus a non-zero RetCode; HTTP error statuses are
// reserved for the validator's four failure cases (see PlainText). A
// failed write is logged and the connection is closed.
func Write(w http.ResponseWriter, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Warn("respond: write failed", "error", err)
		hijackAndClose(w)
	}
}

// Error builds and writes an Envelope for a non-success result code.
func Error(w http.ResponseWriter, code int) {
	Write(w, Envelope{RetCode: code, RetMsg: RetMsg(code)})
}

// PlainText writes a status-only, Content-Type text/plain response for
// the validator's rejection paths, then closes the connection once the
// write completes — hijacking it when possible so the TCP connection is
// torn down immediately rather than left for net/http to reuse.
func PlainText(w http.ResponseWriter, status int, msg, charset string) {
	w.Header().Set("Content-Type", "text/plain; charset="+charset)
	w.Header().Set("Connection", "close")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(msg)); err != nil {
		slog.Warn("respond: plaintext write failed", "error", err)
	}
	hijackAndClose(w)
}

// hijackAndClose closes the underlying TCP connection immediately after
// the response has been flushed, when the ResponseWriter supports
// hijacking. httptest.ResponseRecorder does not, so tests fall back to
// the Connection: close header already set above and let net/http close
// the connection once the handler returns.
func hijackAndClose(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetLinger(0)
	}
	_ = conn.Close()
}
