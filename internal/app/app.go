package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/threadflat/internal/archive"
	"github.com/hitoshi/threadflat/internal/config"
	"github.com/hitoshi/threadflat/internal/database"
	"github.com/hitoshi/threadflat/internal/handler"
	"github.com/hitoshi/threadflat/internal/logger"
	"github.com/hitoshi/threadflat/internal/metrics"
	"github.com/hitoshi/threadflat/internal/middleware"
	"github.com/hitoshi/threadflat/internal/repository"
	"github.com/hitoshi/threadflat/internal/security"
	"github.com/hitoshi/threadflat/internal/thread"
	"github.com/hitoshi/threadflat/internal/worker/cleanup"
	"github.com/hitoshi/threadflat/internal/worker/ingest"
	"github.com/hitoshi/threadflat/internal/worker/threads"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
// SIGINTまたはSIGTERMを受信するとコンテキストをキャンセルし、各コマンドは処理中の単位を終えて返る。
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

	if cmd == CommandUnknown {
		return fmt.Errorf("unknown command %q\n%s", args[0], Usage())
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rest := CommandArgs(args)

	switch cmd {
	case CommandExtract:
		return runExtract(ctx, cfg, rest)
	case CommandLoad:
		return runLoad(ctx, cfg, rest)
	case CommandThreads:
		return runThreads(ctx, cfg, rest)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// runExtract は.zstダンプを.jsonlに展開する。データベースは使わない。
func runExtract(ctx context.Context, cfg *config.Config, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("extract: no input files\n%s", Usage())
	}

	extractor := ingest.NewExtractor(slog.Default(), cfg.ProgressEvery, cfg.ExtractRecursive)
	sum, err := extractor.Run(ctx, paths)
	if sum != nil {
		slog.Info("extract finished",
			slog.Int("files", sum.Files),
			slog.Int("skipped", sum.Skipped),
			slog.Int("records", sum.Records),
			slog.Int("bad_lines", sum.BadLines),
		)
	}
	if err != nil {
		return fmt.Errorf("extract failed: %w", err)
	}
	return nil
}

// runLoad はダンプをデータベースに取り込む。
// スキーマが未作成の場合に備えて、先にマイグレーションを適用する。
func runLoad(ctx context.Context, cfg *config.Config, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("load: no input files\n%s", Usage())
	}

	db, dialect, err := openStore(cfg, true)
	if err != nil {
		return err
	}
	defer db.Close()

	reg, collector := newMetrics()
	stopMetrics := startMetricsServer(cfg.MetricsAddr, reg)
	defer stopMetrics()

	loader := ingest.NewLoader(
		repository.NewSQLSubmissionRepo(db, dialect),
		repository.NewSQLReplyRepo(db, dialect),
		collector, slog.Default(),
		cfg.IngestBatchSize, cfg.IngestMaxConcurrent, cfg.ProgressEvery,
		cfg.ExtractRecursive,
	)

	if _, err := loader.Run(ctx, paths); err != nil {
		return fmt.Errorf("load failed: %w", err)
	}
	return nil
}

// runThreads は取り込み済みの投稿をスレッド文書に平坦化する。
// 出力パスが指定された場合はJSONLファイル、省略した場合はthread_documentsテーブルに出力する。
func runThreads(ctx context.Context, cfg *config.Config, rest []string) error {
	if cfg.ThreadsTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ThreadsTimeout)
		defer cancel()
	}

	db, dialect, err := openStore(cfg, true)
	if err != nil {
		return err
	}
	defer db.Close()

	reg, collector := newMetrics()
	stopMetrics := startMetricsServer(cfg.MetricsAddr, reg)
	defer stopMetrics()

	subRepo := repository.NewSQLSubmissionRepo(db, dialect)
	replyRepo := repository.NewSQLReplyRepo(db, dialect)
	flattener := newFlattener(cfg, replyRepo, collector)

	var (
		sink threads.Sink
		out  *archive.Writer
	)
	if len(rest) > 0 {
		out, err = archive.Create(rest[0])
		if err != nil {
			return err
		}
		sink = threads.NewJSONLSink(out)
		slog.Info("writing documents to file", slog.String("path", rest[0]))
	} else {
		sink = threads.NewRepositorySink(repository.NewSQLThreadDocumentRepo(db, dialect))
		slog.Info("writing documents to database")
	}

	scheduler := threads.NewScheduler(subRepo, flattener, sink, collector, slog.Default(), threads.Options{
		MaxConcurrency: cfg.ThreadsMaxConcurrent,
		PageSize:       cfg.ThreadsPageSize,
		MinComments:    cfg.ThreadsMinComments,
		MinSelfText:    cfg.ThreadsMinSelfText,
		ProgressEvery:  cfg.ProgressEvery,
	})

	sum, runErr := scheduler.Run(ctx)

	if out != nil {
		if err := out.Close(); err != nil && runErr == nil {
			runErr = fmt.Errorf("failed to close output file: %w", err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("threads failed: %w", runErr)
	}

	if out == nil && cfg.ThreadsPruneStale {
		// 失敗した投稿の前回の文書を消さないよう、全件成功した場合のみ削除する
		if sum.Failed > 0 {
			slog.Warn("skipping prune of stale documents",
				slog.String("run_id", sum.RunID),
				slog.Int("failed", sum.Failed),
			)
			return nil
		}
		job := cleanup.NewPruneJob(db, dialect, slog.Default())
		if _, err := job.Run(ctx, sum.RunID); err != nil {
			return fmt.Errorf("prune failed: %w", err)
		}
	}

	return nil
}

// runServe は読み取りAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, dialect, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリとメトリクスの初期化
	reg, collector := newMetrics()
	subRepo := repository.NewSQLSubmissionRepo(db, dialect)
	replyRepo := repository.NewSQLReplyRepo(db, dialect)

	// 3. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitPerMinute))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:        slog.Default(),
		RateLimiter:   rateLimiter,
		Metrics:       collector,
		HealthChecker: db,
		Gatherer:      reg,
		Submissions:   subRepo,
		Assembler:     newFlattener(cfg, replyRepo, collector),
	})

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
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
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// openStore はデータベース接続を開いて疎通を確認する。
// migrateがtrueの場合は接続前に未適用のマイグレーションを適用する。
func openStore(cfg *config.Config, migrate bool) (*sql.DB, database.Dialect, error) {
	if migrate {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, "", fmt.Errorf("migration failed: %w", err)
		}
	}

	db, dialect, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established", slog.String("dialect", string(dialect)))
	return db, dialect, nil
}

// newFlattener は設定に従ってサニタイズと本文除外を組み込んだFlattenerを生成する。
func newFlattener(cfg *config.Config, replyRepo repository.ReplyRepository, m metrics.MetricsCollector) *threads.Flattener {
	var sanitizer security.BodySanitizer
	if cfg.ThreadsSanitizeHTML {
		sanitizer = security.NewBodySanitizer()
	}

	var keep thread.KeepFunc = thread.KeepBody
	if len(cfg.ThreadsSkipBodies) > 0 {
		keep = thread.SkipBodies(cfg.ThreadsSkipBodies...)
	}

	return threads.NewFlattener(replyRepo, sanitizer, keep, cfg.ThreadsMaxReplies, m, slog.Default())
}

// newMetrics はプロセス専用のレジストリとCollectorを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// startMetricsServer はバッチ実行中のスクレイプ用に/metricsサーバーを起動し、停止関数を返す。
// addrが空の場合は何もしない。
func startMetricsServer(addr string, gatherer prometheus.Gatherer) func() {
	if addr == "" {
		return func() {}
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           metrics.SetupMetricsRoute(gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics server starting", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	return func() { stopMetricsServer(server, 5*time.Second) }
}

// stopMetricsServer はtimeout以内にサーバーを停止する。失敗は警告としてログに残す。
func stopMetricsServer(server *http.Server, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Warn("metrics server shutdown failed", slog.String("error", err.Error()))
	}
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "***"
	}
	if u.User == nil {
		return raw
	}
	return u.Redacted()
}
