package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/zeusync/hephaestus/internal/core/observability/log"
	"github.com/zeusync/hephaestus/internal/core/view"
	"github.com/zeusync/hephaestus/internal/transport/websocket"
	"github.com/zeusync/hephaestus/pkg/concurrent"
)

// ViewInfo is an entry of the /views listing.
type ViewInfo struct {
	ID       string     `json:"id"`
	Model    string     `json:"model"`
	Location [3]float32 `json:"location"`
	Scale    float32    `json:"scale"`
	Viewers  int        `json:"viewers"`
	Bones    []string   `json:"bones"`
}

// Handler returns the HTTP routes: the WebSocket endpoint, the view listing
// and a health probe.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", websocket.NewHandler(s.config.QueueSize, s.logger, func(ctx context.Context, c *websocket.Conn) {
		s.serveSession(ctx, c)
	}))
	mux.HandleFunc("/views", s.handleViews)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) handleViews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// viewer sets are read under each view's sync lock, so fan out
	infos := concurrent.Map(s.registry.Views(), s.config.Workers, func(v *view.View) ViewInfo {
		return ViewInfo{
			ID:       v.ID().String(),
			Model:    v.Model().Name(),
			Location: [3]float32(v.Location()),
			Scale:    v.Scale(),
			Viewers:  len(v.Viewers()),
			Bones:    v.Model().BoneNames(),
		}
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(infos); err != nil {
		s.logger.Warn("Failed to encode view listing", log.Error(err))
	}
}
