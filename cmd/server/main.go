package main

import (
	"context"
	"flag"
	"log"

	"github.com/katyfelkner/fairseq-server/pkg/api"
	"github.com/katyfelkner/fairseq-server/pkg/client"
	"github.com/katyfelkner/fairseq-server/pkg/config"
)

// backendTranslator proxies the translate capability to an external
// pretrained-model process that speaks the same /translate contract.
type backendTranslator struct {
	cli *client.Client
}

func (t *backendTranslator) Translate(ctx context.Context, text string) (string, error) {
	out, err := t.cli.Translate(ctx, []string{text})
	if err != nil {
		return "", err
	}
	return out[0], nil
}

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	addr := flag.String("addr", "", "listen address (overrides config)")
	backend := flag.String("backend", "", "model backend base URL (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *backend != "" {
		cfg.Server.BackendURL = *backend
	}
	if cfg.Server.BackendURL == "" {
		log.Fatal("no model backend configured; set -backend or server.backend_url")
	}

	translator := &backendTranslator{cli: client.New(cfg.Server.BackendURL)}
	srv := api.NewServer(translator, cfg.Server.MaxSrcLen)
	if err := srv.Start(cfg.Server.Addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
