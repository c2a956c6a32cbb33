package ingress

import (
	"net/http"
	"time"

	"github.com/eugener/gandalf/internal/ingress/decode"
	"github.com/eugener/gandalf/internal/ingress/respond"
	"github.com/eugener/gandalf/internal/ingress/route"
)

// ServeHTTP implements the full request path: enrich, validate, decode,
// dispatch. It never sees partial messages — net/http already hands the
// handler a fully-parsed request with headers decoded and the body
// ready to read in full.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	enrich(r, s.cfg.ServerIP)

	if status, ok := validate(r, s.started.Load()); !ok {
		s.respondValidationFailure(w, r, status)
		return
	}

	reqTime := time.Now().UnixMilli()

	decodeStart := time.Now()
	body, err := decode.Decode(w, r, decode.Options{MaxBodyBytes: s.cfg.maxBodyBytes()})
	s.metrics.DecodeDuration.Observe(float64(time.Since(decodeStart).Microseconds()) / 1000)
	if err != nil {
		respond.Error(w, respond.CodeRuntimeErr)
		return
	}

	s.table.Dispatch(r.Context(), w, r, body, reqTime, route.Deps{
		Completer: s.completer,
		Metrics:   s.metrics,
		Tracer:    s.tracer,
	})
}

// respondValidationFailure handles the three validate rejection cases: a
// span is created from a header snapshot captured before the plain-text
// response is written (not from the live *http.Request, which net/http
// may mutate or reuse once the handler returns), then finished with the
// failure as its error, matching the corrected span-timing ordering.
func (s *Server) respondValidationFailure(w http.ResponseWriter, r *http.Request, status int) {
	snap := snapshotRequestHeaders(r)
	_, span := startValidationSpan(r.Context(), s.tracer, snap)
	msg := statusMessage(status)
	respond.PlainText(w, status, msg, s.cfg.charset())
	endValidationSpan(span, msg)
}
