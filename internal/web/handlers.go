package web

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"fablecast/server/internal/config"
	"fablecast/server/internal/engine"
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

type Handlers struct {
	config *config.Config
	hub    *ProgressHub
}

func NewHandlers(cfg *config.Config, hub *ProgressHub) *Handlers {
	return &Handlers{
		config: cfg,
		hub:    hub,
	}
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "fablecast",
	})
}

// SubscribeEpisode upgrades the connection and joins the episode's event room
func (h *Handlers) SubscribeEpisode(w http.ResponseWriter, r *http.Request) {
	episodeID := chi.URLParam(r, "episode_id")
	if episodeID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Web] WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		ID:        newClientID(),
		EpisodeID: episodeID,
		Conn:      conn,
		Send:      make(chan []byte, 64),
		Hub:       h.hub,
	}
	h.hub.register <- client
	go client.readPump()
}

func newClientID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// CORS middleware
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "300")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func NewRouter(cfg *config.Config, orchestrator *engine.Orchestrator, store EpisodeStore, hub *ProgressHub) *chi.Mux {
	r := chi.NewRouter()

	// Request logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("REQUEST: %s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	})

	r.Use(corsMiddleware)

	handlers := NewHandlers(cfg, hub)
	episodes := NewEpisodeHandlers(orchestrator, store)

	// Synthesized audio assets
	assetServer := http.StripPrefix("/assets/", http.FileServer(http.Dir(cfg.Assets.Dir)))

	r.Get("/health", handlers.HealthCheck)
	r.Mount("/assets", assetServer)
	r.Get("/ws/episodes/{episode_id}", handlers.SubscribeEpisode)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/episodes", func(r chi.Router) {
			r.Post("/", episodes.StartEpisode)
			r.Route("/{episode_id}", func(r chi.Router) {
				r.Get("/", episodes.GetEpisode)
				r.Get("/audio", episodes.GetEpisodeAudio)
				r.Post("/choice", episodes.SubmitChoice)
				r.Post("/finish", episodes.FinishEpisode)
				r.Post("/abandon", episodes.AbandonEpisode)
				r.Post("/pregenerate", episodes.PregenerateBranches)
			})
		})
	})

	return r
}
