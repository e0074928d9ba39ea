// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/jononovo/sendclaw/internal/batch"
	"github.com/jononovo/sendclaw/internal/composer"
	"github.com/jononovo/sendclaw/internal/config"
	"github.com/jononovo/sendclaw/internal/database"
	"github.com/jononovo/sendclaw/internal/handler"
	"github.com/jononovo/sendclaw/internal/logger"
	"github.com/jononovo/sendclaw/internal/metrics"
	"github.com/jononovo/sendclaw/internal/middleware"
	"github.com/jononovo/sendclaw/internal/preferences"
	"github.com/jononovo/sendclaw/internal/repository"
	"github.com/jononovo/sendclaw/internal/security"
	"github.com/jononovo/sendclaw/internal/stats"
	"github.com/jononovo/sendclaw/internal/worker/expire"
	"github.com/jononovo/sendclaw/internal/worker/generate"
)

// Init はアプリケーションの初期化を行う。
// .envファイル（存在する場合）と環境変数からConfigを読み込み、
// JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envファイルの読み込み（ローカル開発用、なければ環境変数のみ）
	_ = godotenv.Load()

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)
	batchRepo := repository.NewPostgresBatchRepo(db)
	itemRepo := repository.NewPostgresOutreachItemRepo(db)
	contactRepo := repository.NewPostgresContactRepo(db)
	prefsRepo := repository.NewPostgresPreferencesRepo(db)
	statsRepo := repository.NewPostgresStatsRepo(db)

	// 3. セキュリティ・メトリクスの初期化
	sanitizer := security.NewContentSanitizer()
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. コンポーザークライアントの初期化
	composerClient := composer.NewClient(
		&http.Client{Timeout: cfg.ComposerTimeout},
		slog.Default(), cfg.ComposerEndpoint, cfg.ComposerAPIKey,
	)

	// 5. ドメインサービスの初期化
	generator := batch.NewBatchGenerator(
		batchRepo, itemRepo, contactRepo, prefsRepo,
		composerClient, sanitizer, collector, slog.Default(),
		cfg.DefaultBatchSize, cfg.BatchTTL, cfg.LookbackDays,
	)
	stateService := batch.NewBatchStateService(
		batchRepo, itemRepo, sanitizer, collector, slog.Default(),
	)
	statsService := stats.NewStatsService(statsRepo, prefsRepo, slog.Default())
	prefsService := preferences.NewPreferencesService(prefsRepo, userRepo, slog.Default())

	// 6. ハンドラーアダプタの構築
	batchStateAdapter := handler.NewBatchStateServiceAdapter(stateService, contactRepo)
	triggerAdapter := handler.NewTriggerServiceAdapter(generator, prefsRepo)
	statsAdapter := handler.NewStatsServiceAdapter(statsService)
	prefsAdapter := handler.NewPreferencesServiceAdapter(prefsService)

	// 7. ルーターの構築
	// configのレート値はreq/min単位なのでreq/secに変換する
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.TriggerRate = rate.Limit(float64(cfg.RateLimitTrigger) / 60.0)
	rateLimiterCfg.TriggerBurst = cfg.RateLimitTrigger

	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		HealthChecker:     db,
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		BatchStateService: batchStateAdapter,

		TriggerService:     triggerAdapter,
		StatsService:       statsAdapter,
		PreferencesService: prefsAdapter,
	}

	router := handler.NewRouter(deps)

	// 8. メトリクスサーバーの起動（Prometheusスクレイプ用の別ポート）
	metricsServer := startMetricsServer(cfg.MetricsPort, registry)
	defer metricsServer.Close()

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、生成スケジューラと失効ジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	batchRepo := repository.NewPostgresBatchRepo(db)
	itemRepo := repository.NewPostgresOutreachItemRepo(db)
	contactRepo := repository.NewPostgresContactRepo(db)
	prefsRepo := repository.NewPostgresPreferencesRepo(db)

	// 3. セキュリティ・メトリクスの初期化
	sanitizer := security.NewContentSanitizer()
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. バッチ生成サービスの初期化
	composerClient := composer.NewClient(
		&http.Client{Timeout: cfg.ComposerTimeout},
		slog.Default(), cfg.ComposerEndpoint, cfg.ComposerAPIKey,
	)
	generator := batch.NewBatchGenerator(
		batchRepo, itemRepo, contactRepo, prefsRepo,
		composerClient, sanitizer, collector, slog.Default(),
		cfg.DefaultBatchSize, cfg.BatchTTL, cfg.LookbackDays,
	)

	// 5. スケジューラと失効ジョブの初期化
	scheduler := generate.NewScheduler(
		prefsRepo, generator, slog.Default(), cfg.GenerateMaxConcurrent,
	)
	expireJob := expire.NewExpireJob(batchRepo, collector, slog.Default())

	// 6. メトリクスサーバーの起動
	metricsServer := startMetricsServer(cfg.MetricsPort, registry)
	defer metricsServer.Close()

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("generate_interval", cfg.GenerateInterval),
		slog.Duration("expire_interval", cfg.ExpireInterval),
		slog.Int("max_concurrent", cfg.GenerateMaxConcurrent),
	)

	// 失効ジョブをバックグラウンドで起動
	go expireJob.Start(ctx, cfg.ExpireInterval)

	// 生成スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.GenerateInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// startMetricsServer は/metricsエンドポイントを提供するHTTPサーバーを起動する。
func startMetricsServer(port string, gatherer prometheus.Gatherer) *http.Server {
	server := &http.Server{
		Addr:    ":" + port,
		Handler: metrics.SetupMetricsRoute(gatherer),
	}

	go func() {
		slog.Info("metrics server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	return server
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
