package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/katyfelkner/fairseq-server/pkg/api"
)

type echoTranslator struct{}

func (echoTranslator) Translate(_ context.Context, text string) (string, error) {
	return text, nil
}

func TestClientTranslate(t *testing.T) {
	srv := httptest.NewServer(api.NewServer(echoTranslator{}, 0).Handler())
	defer srv.Close()

	c := New(srv.URL)
	got, err := c.Translate(context.Background(), []string{"x + y", "foo bar"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"x + y", "foo bar"}) {
		t.Errorf("got %v", got)
	}
}

func TestClientTranslateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := New(srv.URL).Translate(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected error from a 500 response")
	}
}

func TestClientTranslateCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"source": ["a", "b"], "translation": ["only one"]}`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL).Translate(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error for a short translation list")
	}
}

func TestClientHealth(t *testing.T) {
	srv := httptest.NewServer(api.NewServer(echoTranslator{}, 0).Handler())
	defer srv.Close()

	c := New(srv.URL + "/")
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("health: %v", err)
	}

	down := New("http://127.0.0.1:1")
	if err := down.Health(context.Background()); err == nil {
		t.Error("expected error against an unreachable server")
	}
}
