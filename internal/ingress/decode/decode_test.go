package decode

import (
	"errors"
	"mime/multipart"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestDecode_GetUsesQueryString(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest("GET", "/?code=200&name=gandalf", nil)
	w := httptest.NewRecorder()

	out, err := Decode(w, r, Options{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["code"] != "200" || out["name"] != "gandalf" {
		t.Fatalf("out = %+v", out)
	}
}

func TestDecode_PostJSON(t *testing.T) {
	t.Parallel()
	body := `{"requestcode":"200","payload":"hi"}`
	r := httptest.NewRequest("POST", "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	out, err := Decode(w, r, Options{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["requestcode"] != "200" || out["payload"] != "hi" {
		t.Fatalf("out = %+v", out)
	}
}

func TestDecode_PostJSONEmptyBody(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest("POST", "/", strings.NewReader(""))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	out, err := Decode(w, r, Options{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("out = %+v, want empty map", out)
	}
}

func TestDecode_PostJSONMalformedReturnsErrDecode(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest("POST", "/", strings.NewReader("{not json"))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	_, err := Decode(w, r, Options{})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode for malformed JSON", err)
	}
}

func TestDecode_PostFormURLEncoded(t *testing.T) {
	t.Parallel()
	form := url.Values{"code": {"200"}, "name": {"gandalf"}}
	r := httptest.NewRequest("POST", "/", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	out, err := Decode(w, r, Options{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["code"] != "200" || out["name"] != "gandalf" {
		t.Fatalf("out = %+v", out)
	}
}

func TestDecode_PostMultipartForm(t *testing.T) {
	t.Parallel()
	var buf strings.Builder
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("code", "200"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	r := httptest.NewRequest("POST", "/", strings.NewReader(buf.String()))
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()

	out, err := Decode(w, r, Options{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["code"] != "200" {
		t.Fatalf("out = %+v", out)
	}
}

func TestDecode_BodyExceedingMaxBodyBytesFails(t *testing.T) {
	t.Parallel()
	body := `{"payload":"` + strings.Repeat("x", 100) + `"}`
	r := httptest.NewRequest("POST", "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	_, err := Decode(w, r, Options{MaxBodyBytes: 10})
	if err == nil {
		t.Fatal("expected an error when the body exceeds MaxBodyBytes")
	}
}

func TestCanonicalJSON_SortsMapKeys(t *testing.T) {
	t.Parallel()
	body := map[string]any{"b": 1, "a": 2}
	got, err := CanonicalJSON(body)
	if err != nil {
		t.Fatalf("canonicaljson: %v", err)
	}
	if string(got) != `{"a":2,"b":1}` {
		t.Fatalf("got %s", got)
	}
}
