package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gestaozabele/laudoia/internal/config"
	httpmiddleware "github.com/gestaozabele/laudoia/internal/http/middleware"
)

type Handler struct {
	relay     Analyzer
	maxUpload int64
}

// NewRouter devolve roteador configurado.
func NewRouter(cfg *config.Config, relay Analyzer) http.Handler {
	h := &Handler{
		relay:     relay,
		maxUpload: cfg.MaxUploadBytes,
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))

	r.Get("/health", h.Health)
	r.Post("/analyze-image/", h.AnalyzeImage)
	r.Post("/analyze-image", h.AnalyzeImage)

	return r
}

// Health responde sem tocar no provedor externo.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
