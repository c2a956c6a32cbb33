// Package decode implements the ingress body decoder (C4): GET query
// strings, POST JSON bodies, and POST form/multipart bodies, all folded
// into a single string-keyed attribute map.
package decode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// ErrDecode wraps any failure to interpret a request body under its
// declared content type.
var ErrDecode = errors.New("decode: body decode failed")

// MaxBodyBytes bounds how much of a request body the decoder will read,
// the Go-native analogue of the aggregator's "unbounded, up to MAX_INT
// bytes" ceiling — a real 2 GiB limit is impractical to exercise in
// tests, so it is configurable via Options.MaxBodyBytes.
const MaxBodyBytes = math.MaxInt32

var bodyPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Options controls decoder limits, primarily so tests can shrink
// MaxBodyBytes to something they can actually saturate.
type Options struct {
	MaxBodyBytes int64
}

func (o Options) maxBodyBytes() int64 {
	if o.MaxBodyBytes <= 0 {
		return MaxBodyBytes
	}
	return o.MaxBodyBytes
}

// Decode decodes r's parameters into a string-keyed attribute map: GET
// uses the query string, POST uses JSON or form/multipart depending on
// Content-Type. w bounds the body reader via http.MaxBytesReader.
func Decode(w http.ResponseWriter, r *http.Request, opts Options) (map[string]any, error) {
	if r.Method == http.MethodGet {
		return decodeQuery(r), nil
	}
	return decodePost(w, r, opts)
}

func decodeQuery(r *http.Request) map[string]any {
	q := r.URL.Query()
	out := make(map[string]any, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func decodePost(w http.ResponseWriter, r *http.Request, opts Options) (map[string]any, error) {
	ct := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil && ct != "" {
		return nil, fmt.Errorf("%w: parse content-type: %v", ErrDecode, err)
	}

	if strings.Contains(mediaType, "application/json") {
		return decodeJSON(w, r, opts)
	}
	return decodeForm(w, r, opts)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, opts Options) (map[string]any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, opts.maxBodyBytes())

	buf := bodyPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bodyPool.Put(buf)

	if _, err := buf.ReadFrom(r.Body); err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrDecode, err)
	}

	if buf.Len() == 0 {
		return map[string]any{}, nil
	}

	// Peek the legacy requestcode field with gjson before paying for a
	// full json.Unmarshal; the peeked value is only logged at debug level.
	if code := gjson.GetBytes(buf.Bytes(), "requestcode"); code.Exists() {
		slog.Debug("decode: peeked requestcode", "code", code.String())
	}

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("%w: unmarshal json: %v", ErrDecode, err)
	}
	return out, nil
}

func decodeForm(w http.ResponseWriter, r *http.Request, opts Options) (map[string]any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, opts.maxBodyBytes())

	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "multipart/form-data") {
		// Caller owns cleanup of any temp files written by
		// ParseMultipartForm; we deliberately do not call RemoveAll.
		if err := r.ParseMultipartForm(opts.maxBodyBytes()); err != nil {
			return nil, fmt.Errorf("%w: parse multipart: %v", ErrDecode, err)
		}
		out := make(map[string]any, len(r.MultipartForm.Value))
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				out[k] = v[0]
			}
		}
		return out, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: parse form: %v", ErrDecode, err)
	}
	out := make(map[string]any, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out, nil
}

// CanonicalJSON re-serializes a decoded body map to canonical JSON bytes
// for EventWrapper.BodyBytes. encoding/json sorts map keys on marshal,
// which is what makes this deterministic.
func CanonicalJSON(body map[string]any) ([]byte, error) {
	return json.Marshal(body)
}
