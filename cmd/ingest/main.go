// cmd/ingest/main.go
package main

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/replenlabs/supplyengine/internal/config"
	"github.com/replenlabs/supplyengine/internal/ingest"
	"github.com/replenlabs/supplyengine/internal/store"
	"github.com/replenlabs/supplyengine/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger.SetLevel(cfg.Server.Mode)

	kv, err := store.Open(cfg.Store)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to open record store")
	}
	catalog := store.NewCatalog(kv)

	r := mux.NewRouter()

	handler := ingest.NewHandler(catalog)
	handler.RegisterRoutes(r)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	logger.Log.Info().Str("addr", addr).Msg("Ingest sidecar starting")
	logger.Log.Fatal().Err(http.ListenAndServe(addr, r)).Msg("Ingest sidecar stopped")
}
