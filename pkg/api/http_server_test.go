package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// echoTranslator returns its input, so standardize/unstandardize round trips
// are visible end to end.
type echoTranslator struct{}

func (echoTranslator) Translate(_ context.Context, text string) (string, error) {
	return text, nil
}

type failingTranslator struct{}

func (failingTranslator) Translate(context.Context, string) (string, error) {
	return "", errors.New("decoder unavailable")
}

// recordingTranslator captures what the model actually receives.
type recordingTranslator struct {
	seen []string
}

func (r *recordingTranslator) Translate(_ context.Context, text string) (string, error) {
	r.seen = append(r.seen, text)
	return text, nil
}

func decodeTranslateResponse(t *testing.T, rec *httptest.ResponseRecorder) (sources, translations []string) {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Source      []string `json:"source"`
		Translation []string `json:"translation"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body.Source, body.Translation
}

func TestTranslateGet(t *testing.T) {
	h := NewServer(echoTranslator{}, 0).Handler()
	req := httptest.NewRequest(http.MethodGet, "/translate?source="+url.QueryEscape("foo ( bar )"), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	sources, translations := decodeTranslateResponse(t, rec)
	if len(sources) != 1 || sources[0] != "foo ( bar )" {
		t.Errorf("sources: %v", sources)
	}
	if len(translations) != 1 || translations[0] != "foo ( bar )" {
		t.Errorf("remap round trip broken: %v", translations)
	}
}

func TestTranslatePostJSONList(t *testing.T) {
	h := NewServer(echoTranslator{}, 0).Handler()
	body := `{"source": ["x + y", "a * b"]}`
	req := httptest.NewRequest(http.MethodPost, "/translate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	_, translations := decodeTranslateResponse(t, rec)
	if len(translations) != 2 || translations[0] != "x + y" || translations[1] != "a * b" {
		t.Errorf("got %v", translations)
	}
}

func TestTranslatePostJSONString(t *testing.T) {
	h := NewServer(echoTranslator{}, 0).Handler()
	req := httptest.NewRequest(http.MethodPost, "/translate", strings.NewReader(`{"source": "foo"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	_, translations := decodeTranslateResponse(t, rec)
	if len(translations) != 1 || translations[0] != "foo" {
		t.Errorf("got %v", translations)
	}
}

func TestTranslatePostForm(t *testing.T) {
	h := NewServer(echoTranslator{}, 0).Handler()
	form := url.Values{"source": {"foo bar"}}
	req := httptest.NewRequest(http.MethodPost, "/translate", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	_, translations := decodeTranslateResponse(t, rec)
	if len(translations) != 1 || translations[0] != "foo bar" {
		t.Errorf("got %v", translations)
	}
}

func TestTranslateStandardizesInput(t *testing.T) {
	tr := &recordingTranslator{}
	h := NewServer(tr, 0).Handler()
	req := httptest.NewRequest(http.MethodGet, "/translate?source="+url.QueryEscape("foo ( bar foo )"), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if len(tr.seen) != 1 || tr.seen[0] != "a_0 ( a_1 a_0 )" {
		t.Errorf("model saw %v, want remapped tokens with operators untouched", tr.seen)
	}
}

func TestTranslatePrepOff(t *testing.T) {
	tr := &recordingTranslator{}
	h := NewServer(tr, 0).Handler()
	req := httptest.NewRequest(http.MethodGet, "/translate?prep=false&source="+url.QueryEscape("foo bar"), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if len(tr.seen) != 1 || tr.seen[0] != "foo bar" {
		t.Errorf("model saw %v, want raw input", tr.seen)
	}
}

func TestTranslateTruncatesLongInput(t *testing.T) {
	tr := &recordingTranslator{}
	h := NewServer(tr, 3).Handler()
	req := httptest.NewRequest(http.MethodGet, "/translate?prep=false&source="+url.QueryEscape("1 2 3 4 5"), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if tr.seen[0] != "1 2 3" {
		t.Errorf("model saw %q, want truncation to 3 tokens", tr.seen[0])
	}
}

func TestTranslateRejectsMissingSource(t *testing.T) {
	h := NewServer(echoTranslator{}, 0).Handler()
	req := httptest.NewRequest(http.MethodGet, "/translate", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestTranslateRejectsNonASCII(t *testing.T) {
	h := NewServer(echoTranslator{}, 0).Handler()
	req := httptest.NewRequest(http.MethodGet, "/translate?source="+url.QueryEscape("héllo"), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestTranslateBackendFailure(t *testing.T) {
	h := NewServer(failingTranslator{}, 0).Handler()
	req := httptest.NewRequest(http.MethodGet, "/translate?source=foo", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status: got %d, want 502", rec.Code)
	}
}

func TestHealthAndStats(t *testing.T) {
	srv := NewServer(echoTranslator{}, 0)
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("health: %d %q", rec.Code, rec.Body.String())
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/translate?source=foo", nil))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	var stats map[string]uint64
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats["requests"] != 1 || stats["failures"] != 0 {
		t.Errorf("stats: %v", stats)
	}
}

func TestStandardizeRoundTrip(t *testing.T) {
	text, remap := standardize("alpha + beta * alpha")
	if text != "a_0 + a_1 * a_0" {
		t.Fatalf("standardize: got %q", text)
	}
	if got := unstandardize(text, remap); got != "alpha + beta * alpha" {
		t.Errorf("unstandardize: got %q", got)
	}
}
