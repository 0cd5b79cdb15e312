package server

import (
	"net/http"

	"imggen/internal/handler"
	"imggen/internal/middleware"
)

func NewMux(
	imageHandler *handler.ImageHandler,
	vibesHandler *handler.VibesHandler,
	watchHandler *handler.WatchHandler,
	liveHandler *handler.LiveHandler,
) http.Handler {
	mux := http.NewServeMux()

	// Image documents
	mux.HandleFunc("/api/images", imageHandler.HandleImages)
	mux.HandleFunc("/api/images/", imageHandler.HandleImageByID)

	// HTML rewrite helper
	mux.HandleFunc("/api/vibes/rewrite", vibesHandler.HandleRewrite)

	// Progress streaming
	mux.HandleFunc("/api/watch/", watchHandler.HandleWatchSSE)
	mux.HandleFunc("/api/status", watchHandler.HandleStatus)

	// Live document feed
	mux.HandleFunc("/api/live", liveHandler.HandleLiveWS)

	// Middleware
	return middleware.CORS(mux)
}
