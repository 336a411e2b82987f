// Package main はコールバック受信サーバーのエントリポイント。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"callback-service/config"
	"callback-service/internal/handler"
	"callback-service/internal/infra"
	"callback-service/internal/repository"
	"callback-service/internal/usecase"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg)

	// DB初期化
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is not set")
		os.Exit(1)
	}
	db, err := infra.NewDB(cfg.DatabaseURL, cfg)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}

	// KMSクライアント初期化（KMS_KEY_NAMEが設定されている場合のみ）
	var resolver *usecase.SecretResolver
	if cfg.KMSKeyName != "" {
		kmsClient, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
		if err != nil {
			slog.Error("failed to init KMS client", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := kmsClient.Close(); closeErr != nil {
				slog.Error("failed to close KMS client", "error", closeErr)
			}
		}()
		resolver = usecase.NewSecretResolver(kmsClient)
	} else {
		resolver = usecase.NewSecretResolver(nil)
	}

	crypt, err := usecase.OpenMsgCrypt(ctx, resolver, usecase.CryptSettings{
		Token:          cfg.CallbackToken,
		EncodingAESKey: cfg.CallbackEncodingAESKey,
		ReceiveID:      cfg.CallbackReceiveID,
		Format:         cfg.CallbackFormat,
	})
	if err != nil {
		slog.Error("failed to init callback crypto", "error", err)
		os.Exit(1)
	}

	replyMode, err := usecase.ParseReplyMode(cfg.CallbackReplyMode)
	if err != nil {
		slog.Error("invalid callback reply mode", "error", err)
		os.Exit(1)
	}

	// DI
	messageRepo := repository.NewMessageRepository(db)
	nonceRepo := repository.NewNonceRepository(db)
	service := usecase.NewCallbackService(crypt, messageRepo, nonceRepo, usecase.CallbackOptions{
		TimestampTolerance: cfg.CallbackTimestampTolerance,
		ReplyMode:          replyMode,
	})
	h := handler.NewCallbackHandler(service, cfg.CallbackReceiveID)
	router := handler.NewRouter(h, cfg)

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting server",
		"port", cfg.Port,
		"receive_id", cfg.CallbackReceiveID,
		"format", service.Format(),
		"reply_mode", replyMode,
	)

	// SIGTERM/SIGINTでキャンセルされるコンテキスト
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	g, gCtx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// 受信済みnonceの定期削除
	if cfg.CallbackNonceRetention > 0 {
		g.Go(func() error {
			service.RunNoncePurger(gCtx, time.Hour, cfg.CallbackNonceRetention)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
