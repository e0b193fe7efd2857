package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/chatrelay/internal/commander"
)

// secretHeader carries the secret configured with setWebhook.
const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

type updateProcessor interface {
	Process(ctx context.Context, u commander.Update) error
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Telegram webhook over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
				cfg.ListenAddr = addr
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			gin.SetMode(gin.ReleaseMode)
			srv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           newRouter(a.processor, cfg.TelegramWebhookSecret, logger),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("relay_listening", "addr", cfg.ListenAddr, "store", cfg.StoreBackend, "provider", cfg.ModelProvider)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().String("listen", "", "Listen address (overrides LISTEN_ADDR).")
	return cmd
}

// newRouter serves POST /webhook and GET /healthz. Authenticated updates are
// always acknowledged with 200 so Telegram does not redeliver failed turns.
func newRouter(p updateProcessor, secret string, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/webhook", func(c *gin.Context) {
		if !secretMatches(c.GetHeader(secretHeader), secret) {
			logger.Warn("webhook_secret_mismatch", "remote", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid secret token"})
			return
		}
		var update commander.Update
		if err := c.ShouldBindJSON(&update); err != nil {
			logger.Warn("webhook_decode_failed", "error", err)
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		// The turn outlives a client disconnect.
		ctx := context.WithoutCancel(c.Request.Context())
		if err := p.Process(ctx, update); err != nil {
			logger.Error("update_failed", "update_id", update.UpdateID, "error", err)
			c.JSON(http.StatusOK, gin.H{"status": "error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

// secretMatches reports whether got carries the configured webhook secret.
// An empty secret disables the check.
func secretMatches(got, secret string) bool {
	return secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}
