package internal

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
)

// bannerText 非升級請求的回應
const bannerText = "WebSocket server is running.\n"

// Handler HTTP 請求處理器
type Handler struct {
	relay  *Relay
	hub    *WebSocketHub
	cfg    *Config
	logger *slog.Logger
}

// NewHandler 創建 HTTP 處理器
func NewHandler(relay *Relay, hub *WebSocketHub, cfg *Config, logger *slog.Logger) *Handler {
	return &Handler{
		relay:  relay,
		hub:    hub,
		cfg:    cfg,
		logger: logger,
	}
}

// Routes 設定路由
//
// 任何路徑上的升級請求都進入 WebSocket；其餘請求走一般 HTTP。
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))
	mux.Handle("GET /metrics", h.relay.Metrics().Handler())
	mux.HandleFunc("/", wrap(h.root))

	api := cors.New(cors.Options{
		AllowedOrigins: h.cfg.WebSocket.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(mux)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 升級請求不經過 CORS 與 ServeMux 路由（來源由 upgrader 檢查）
		if websocket.IsWebSocketUpgrade(r) {
			h.hub.ServeWS(w, r)
			return
		}
		api.ServeHTTP(w, r)
	})
}

// root 純 HTTP 請求回應固定文字
func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, bannerText); err != nil {
		h.logger.Debug("寫入回應失敗", "error", err)
	}
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.relay.Stats()
	stats["websocket_connections"] = h.hub.ConnectionCount()
	h.jsonResponse(w, stats, http.StatusOK)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"error": message,
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 包裝 ResponseWriter 以獲取狀態碼
		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Debug("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
