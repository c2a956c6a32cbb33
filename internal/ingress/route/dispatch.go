package route

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eugener/gandalf/internal/ingress/async"
	"github.com/eugener/gandalf/internal/ingress/pool"
	"github.com/eugener/gandalf/internal/ingress/respond"
	"github.com/eugener/gandalf/internal/telemetry"
)

// Deps bundles the dispatcher's cross-cutting collaborators.
type Deps struct {
	Completer *pool.Pool
	Metrics   *telemetry.Metrics
	Tracer    trace.Tracer
}

// Dispatch classifies the request by URI prefix first, falling back to
// the request-code path, and submits it to the matching route's pool.
// It writes the HTTP response itself once the work completes.
func (t *Table) Dispatch(ctx context.Context, w http.ResponseWriter, r *http.Request, body map[string]any, reqTime int64, deps Deps) {
	if entry, ok := t.MatchURI(r.URL.Path); ok {
		t.dispatchURI(ctx, w, r, entry, body, reqTime, deps)
		return
	}
	t.dispatchCode(ctx, w, r, body, reqTime, deps)
}

func startSpan(ctx context.Context, tracer trace.Tracer, method, flavor, url string) (context.Context, trace.Span) {
	spanCtx, span := tracer.Start(ctx, "ingress.dispatch")
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.flavor", flavor),
		attribute.String("http.url", url),
	)
	return spanCtx, span
}

func endSpanErr(span trace.Span, msg string) {
	span.SetStatus(codes.Error, msg)
	span.End()
}

func endSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
	span.End()
}

func snapshotHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func recordLatency(m *telemetry.Metrics, kind string, reqTime int64) {
	ms := float64(time.Now().UnixMilli() - reqTime)
	if ms < 0 {
		ms = 0
	}
	m.ReqResDuration.WithLabelValues(kind).Observe(ms)
}

// --- URI path ---

func (t *Table) dispatchURI(ctx context.Context, w http.ResponseWriter, r *http.Request, entry URIEntry, body map[string]any, reqTime int64, deps Deps) {
	spanCtx, span := startSpan(ctx, deps.Tracer, r.Method, r.Proto, r.URL.String())

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		endSpanErr(span, err.Error())
		respond.Error(w, respond.CodeRuntimeErr)
		return
	}

	ew := &EventWrapper{
		HTTPVersion: r.Proto,
		RequestURI:  r.URL.Path,
		HeaderMap:   snapshotHeader(r.Header),
		BodyBytes:   bodyBytes,
		ReqTime:     reqTime,
	}
	actx := async.New(ew, deps.Completer)

	submitErr := entry.Pool.Submit(func() {
		runURITask(spanCtx, actx, entry.Processor, deps)
	})
	if submitErr != nil {
		actx.Complete(&EventWrapper{ResponseCode: respond.CodeOverload, ResponseMsg: respond.RetMsg(respond.CodeOverload)})
		deps.Metrics.HTTPDiscards.WithLabelValues("uri", "pool_full").Inc()
		recordLatency(deps.Metrics, "uri", reqTime)
		resp, _ := actx.Response()
		respond.Write(w, envelopeFromEvent(resp))
		endSpanErr(span, "pool rejected: queue full")
		return
	}
	deps.Metrics.HTTPRequests.WithLabelValues("uri").Inc()

	<-actx.Done()
	resp, _ := actx.Response()
	recordLatency(deps.Metrics, "uri", reqTime)
	respond.Write(w, envelopeFromEvent(resp))
	if resp.ResponseCode == respond.CodeOK {
		endSpanOK(span)
	} else {
		endSpanErr(span, resp.ResponseMsg)
	}
}

func runURITask(ctx context.Context, actx *async.Context[*EventWrapper], p EventProcessor, deps Deps) {
	defer func() {
		if r := recover(); r != nil {
			slog.LogAttrs(ctx, slog.LevelError, "uri processor panicked",
				slog.Any("recover", r),
			)
			actx.Complete(&EventWrapper{ResponseCode: respond.CodeRuntimeErr, ResponseMsg: respond.RetMsg(respond.CodeRuntimeErr)})
		}
	}()

	if p.RejectRequest(ctx) {
		actx.Complete(&EventWrapper{ResponseCode: respond.CodeRejectByProcessor, ResponseMsg: respond.RetMsg(respond.CodeRejectByProcessor)})
		return
	}

	if err := p.ProcessRequest(ctx, actx); err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "uri processor error", slog.String("error", err.Error()))
		actx.Complete(&EventWrapper{ResponseCode: respond.CodeRuntimeErr, ResponseMsg: respond.RetMsg(respond.CodeRuntimeErr)})
	}
}

func envelopeFromEvent(ew *EventWrapper) respond.Envelope {
	if ew == nil {
		return respond.Envelope{RetCode: respond.CodeRuntimeErr, RetMsg: respond.RetMsg(respond.CodeRuntimeErr)}
	}
	msg := ew.ResponseMsg
	if msg == "" {
		msg = respond.RetMsg(ew.ResponseCode)
	}
	return respond.Envelope{RetCode: ew.ResponseCode, RetMsg: msg, Body: ew.ResponseBody}
}

// --- Code path ---

func (t *Table) dispatchCode(ctx context.Context, w http.ResponseWriter, r *http.Request, body map[string]any, reqTime int64, deps Deps) {
	spanCtx, span := startSpan(ctx, deps.Tracer, r.Method, r.Proto, r.URL.String())

	code := requestCode(r, body)
	if code == "" || !t.KnownCode(code) {
		deps.Metrics.HTTPDiscards.WithLabelValues("code", "invalid_code").Inc()
		recordLatency(deps.Metrics, "code", reqTime)
		respond.Error(w, respond.CodeRequestCodeInvalid)
		endSpanErr(span, "requestcode invalid: "+code)
		return
	}

	entry, ok := t.CodeEntry(code)
	if !ok {
		// Known enum member but no processor registered for it yet.
		recordLatency(deps.Metrics, "code", reqTime)
		respond.Error(w, respond.CodeRequestCodeInvalid)
		endSpanErr(span, "requestcode has no registered processor: "+code)
		return
	}

	headerMap := snapshotHeader(r.Header)
	builtHeader, err := entry.Processor.BuildHeader(code, headerMap)
	if err != nil {
		recordLatency(deps.Metrics, "code", reqTime)
		respond.Error(w, respond.CodeRuntimeErr)
		endSpanErr(span, "build header: "+err.Error())
		return
	}
	builtBody, err := entry.Processor.BuildBody(code, body)
	if err != nil {
		recordLatency(deps.Metrics, "code", reqTime)
		respond.Error(w, respond.CodeRuntimeErr)
		endSpanErr(span, "build body: "+err.Error())
		return
	}

	cmd := &CodeCommand{
		HTTPMethod:  r.Method,
		HTTPVersion: r.Proto,
		RequestCode: code,
		Header:      builtHeader,
		Body:        builtBody,
		ReqTime:     reqTime,
	}
	actx := async.New(cmd, deps.Completer)

	submitErr := entry.Pool.Submit(func() {
		runCodeTask(spanCtx, actx, entry.Processor, deps)
	})
	if submitErr != nil {
		actx.Complete(&CodeCommand{ResponseCode: respond.CodeOverload, ResponseMsg: respond.RetMsg(respond.CodeOverload)})
		deps.Metrics.HTTPDiscards.WithLabelValues("code", "pool_full").Inc()
		recordLatency(deps.Metrics, "code", reqTime)
		resp, _ := actx.Response()
		respond.Write(w, envelopeFromCode(resp))
		endSpanErr(span, "pool rejected: queue full")
		return
	}
	deps.Metrics.HTTPRequests.WithLabelValues("code").Inc()

	<-actx.Done()
	resp, _ := actx.Response()
	recordLatency(deps.Metrics, "code", reqTime)
	respond.Write(w, envelopeFromCode(resp))
	if resp.ResponseCode == respond.CodeOK {
		endSpanOK(span)
	} else {
		endSpanErr(span, resp.ResponseMsg)
	}
}

func runCodeTask(ctx context.Context, actx *async.Context[*CodeCommand], p CodeProcessor, deps Deps) {
	defer func() {
		if r := recover(); r != nil {
			slog.LogAttrs(ctx, slog.LevelError, "code processor panicked",
				slog.Any("recover", r),
			)
			actx.Complete(&CodeCommand{ResponseCode: respond.CodeRuntimeErr, ResponseMsg: respond.RetMsg(respond.CodeRuntimeErr)})
		}
	}()

	if p.RejectRequest(ctx) {
		actx.Complete(&CodeCommand{ResponseCode: respond.CodeRejectByProcessor, ResponseMsg: respond.RetMsg(respond.CodeRejectByProcessor)})
		return
	}

	if err := p.ProcessRequest(ctx, actx); err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "code processor error", slog.String("error", err.Error()))
		actx.Complete(&CodeCommand{ResponseCode: respond.CodeRuntimeErr, ResponseMsg: respond.RetMsg(respond.CodeRuntimeErr)})
	}
}

func envelopeFromCode(cmd *CodeCommand) respond.Envelope {
	if cmd == nil {
		return respond.Envelope{RetCode: respond.CodeRuntimeErr, RetMsg: respond.RetMsg(respond.CodeRuntimeErr)}
	}
	msg := cmd.ResponseMsg
	if msg == "" {
		msg = respond.RetMsg(cmd.ResponseCode)
	}
	return respond.Envelope{RetCode: cmd.ResponseCode, RetMsg: msg, Body: cmd.ResponseBody}
}

// requestCode extracts the request code from the POST header or, for
// GET, the lower-cased "requestcode" body key.
func requestCode(r *http.Request, body map[string]any) string {
	if r.Method == http.MethodPost {
		return strings.TrimSpace(r.Header.Get("REQUEST_CODE"))
	}
	v, ok := body["requestcode"]
	if !ok {
		return ""
	}
	switch c := v.(type) {
	case string:
		return strings.TrimSpace(c)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	default:
		return ""
	}
}
