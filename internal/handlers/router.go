package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(syncHandler *SyncHandler, streamHandler *StreamHandler, verifier TokenVerifier) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	// Health check endpoints
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Route("/sync", func(r chi.Router) {
		r.Use(OwnerMiddleware(verifier))
		r.Get("/stream", streamHandler.ServeSSE)
		r.Get("/ws", streamHandler.ServeWS)
		syncHandler.Routes(r)
	})

	return router
}
