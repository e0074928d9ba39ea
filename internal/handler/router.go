package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jononovo/sendclaw/internal/middleware"
)

// HealthChecker はヘルスチェック用のDB疎通確認インターフェース。
// *sql.DBがそのまま実装している。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// トークンアクセスのバッチ操作
	BatchStateService BatchStateServiceInterface

	// 認証済みユーザー向け
	TriggerService     TriggerServiceInterface
	StatsService       StatsServiceInterface
	PreferencesService PreferencesServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → (Session → CSRF → RateLimit)
//
// バッチトークンのルート（/api/daily-outreach/batch/*）はトークン自体が認可のため、
// セッション系ミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルート共通のミドルウェア
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	batchHandler := NewBatchHandler(deps.BatchStateService)
	outreachHandler := NewOutreachHandler(deps.TriggerService, deps.StatsService, deps.PreferencesService)

	// --- 認証不要のルート ---

	// ヘルスチェック（DB疎通を含む）
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
				return
			}
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// CSRFトークン取得
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// バッチトークンのルート: トークンが認可そのもの
	r.Route("/api/daily-outreach/batch/{token}", func(r chi.Router) {
		r.Get("/", batchHandler.GetBatch)

		r.Route("/item/{itemID}", func(r chi.Router) {
			r.Put("/", batchHandler.UpdateItem)
			r.Post("/sent", batchHandler.MarkSent)
			r.Post("/skip", batchHandler.MarkSkipped)
		})
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/daily-outreach", func(r chi.Router) {
			// POST /api/daily-outreach/trigger - バッチトリガー（専用レート制限を追加）
			r.With(deps.RateLimiter.TriggerMiddleware()).Post("/trigger", outreachHandler.Trigger)

			// ストリーク統計
			r.Get("/streak-stats", outreachHandler.GetStats)

			// アウトリーチ設定
			r.Get("/preferences", outreachHandler.GetPreferences)
			r.Put("/preferences", outreachHandler.UpdatePreferences)
			r.Put("/vacation", outreachHandler.SetVacation)
		})
	})

	return r
}
