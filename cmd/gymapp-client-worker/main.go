//go:build js && wasm

package main

import (
	"context"
	"time"

	"github.com/dvcrn/gymapp-client/internal/client"
	"github.com/dvcrn/gymapp-client/internal/credentials"
	"github.com/dvcrn/gymapp-client/internal/env"
	serverhttp "github.com/dvcrn/gymapp-client/internal/http"
	"github.com/dvcrn/gymapp-client/internal/logger"
	"github.com/dvcrn/gymapp-client/internal/proxy"
	"github.com/syumai/workers"
)

var srv *proxy.Server

func init() {
	baseURL, ok := env.Get("API_BASE_URL")
	if !ok {
		logger.Get().Error().Msg("API_BASE_URL is not set, every forwarded request will fail")
	}

	timeout, err := env.Duration("API_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Get().Warn().Err(err).Msg("Falling back to a 10s timeout")
		timeout = 10 * time.Second
	}

	var store credentials.Store
	kvStore, err := credentials.NewKVStore(env.GetOrDefault("CREDENTIALS_KV_BINDING", "GYMAPP_KV"))
	if err != nil {
		logger.Get().Error().Err(err).Msg("Failed to open KV namespace, credentials will not persist")
		store = credentials.NewMemoryStore()
	} else {
		store = kvStore
	}

	c := client.New(client.Options{
		BaseURL:     baseURL,
		RefreshPath: env.GetOrDefault("API_REFRESH_PATH", "/sessions/refresh-token"),
	}, serverhttp.NewHTTPClient(timeout), store)

	srv = proxy.NewServer(c)

	if _, err := c.LoadStoredCredential(context.Background()); err != nil {
		logger.Get().Error().Err(err).Msg("Failed to load stored credentials")
		logger.Get().Warn().Msg("The proxy will run but requests will fail until you sign in")
	}
}

func main() {
	workers.Serve(srv)
}
