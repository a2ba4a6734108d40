// Package api is the thin HTTP serving wrapper around a pretrained-model
// collaborator, consumed only as a translate(text) -> text capability.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode"
)

// Translator is the collaborator boundary: everything behind it (checkpoint
// loading, decoding) is external to this repository.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Operator tokens left untouched by the variable-remapping prep step.
var literalTokens = map[string]bool{
	"(": true, ")": true, "*": true, "+": true, "-": true, "/": true,
	"-1": true, "[": true, "]": true, "{": true, "}": true,
}

type Server struct {
	translator Translator
	maxSrcLen  int // inputs longer than this many tokens are truncated

	requests uint64
	failures uint64
}

func NewServer(translator Translator, maxSrcLen int) *Server {
	if maxSrcLen <= 0 {
		maxSrcLen = 250
	}
	return &Server{translator: translator, maxSrcLen: maxSrcLen}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/translate", s.handleTranslate)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	slog.Info("serving translation API", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	sources, ok := readSources(r)
	if !ok {
		http.Error(w, "GET and POST are supported", http.StatusBadRequest)
		return
	}
	if len(sources) == 0 {
		http.Error(w, "Please submit 'source' parameter", http.StatusBadRequest)
		return
	}
	for _, src := range sources {
		if !isASCII(src) {
			http.Error(w, "Only ASCII characters are accepted", http.StatusBadRequest)
			return
		}
	}
	prep := truthy(r.URL.Query().Get("prep"), true)

	atomic.AddUint64(&s.requests, 1)
	translations := make([]string, 0, len(sources))
	for _, src := range sources {
		text, remap := src, map[string]string{}
		if prep {
			text, remap = standardize(src)
		}
		text = truncateTokens(text, s.maxSrcLen)
		out, err := s.translator.Translate(r.Context(), text)
		if err != nil {
			atomic.AddUint64(&s.failures, 1)
			slog.Error("translate failed", "error", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if prep {
			out = unstandardize(out, remap)
		}
		translations = append(translations, out)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"source":      sources,
		"translation": translations,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"requests": atomic.LoadUint64(&s.requests),
		"failures": atomic.LoadUint64(&s.failures),
	})
}

// readSources accepts GET query params, a JSON body or form values, in that
// order. The JSON "source" field may be a string or a list of strings.
func readSources(r *http.Request) ([]string, bool) {
	switch r.Method {
	case http.MethodGet:
		return r.URL.Query()["source"], true
	case http.MethodPost:
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			var body struct {
				Source any `json:"source"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				return nil, true
			}
			switch v := body.Source.(type) {
			case string:
				return []string{v}, true
			case []any:
				out := make([]string, 0, len(v))
				for _, item := range v {
					if str, ok := item.(string); ok {
						out = append(out, str)
					}
				}
				return out, true
			}
			return nil, true
		}
		r.ParseForm()
		return r.PostForm["source"], true
	default:
		return nil, false
	}
}

// standardize whitespace-tokenizes the input and renames every
// non-literal token to a_0, a_1, ... so the model sees a normalized
// vocabulary. Returns the remapped text and the original->standard map.
func standardize(src string) (string, map[string]string) {
	tokens := strings.Fields(src)
	remap := make(map[string]string)
	counter := 0
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		if literalTokens[tok] {
			out[i] = tok
			continue
		}
		std, ok := remap[tok]
		if !ok {
			std = "a_" + strconv.Itoa(counter)
			counter++
			remap[tok] = std
		}
		out[i] = std
	}
	return strings.Join(out, " "), remap
}

// unstandardize reverses the remapping on the model output.
func unstandardize(text string, remap map[string]string) string {
	unremap := make(map[string]string, len(remap))
	for orig, std := range remap {
		unremap[std] = orig
	}
	tokens := strings.Fields(text)
	for i, tok := range tokens {
		if orig, ok := unremap[tok]; ok {
			tokens[i] = orig
		}
	}
	return strings.Join(tokens, " ")
}

func truncateTokens(text string, maxTokens int) string {
	tokens := strings.Fields(text)
	if len(tokens) <= maxTokens {
		return text
	}
	return strings.Join(tokens[:maxTokens], " ")
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func truthy(v string, def bool) bool {
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "true", "yes", "y", "t", "1":
		return true
	default:
		return false
	}
}
