package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"campus-market/internal/transport/httpapi"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address, overrides MARKET_HTTP_ADDR"},
		},
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}
	if log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer eng.close()

	router := httpapi.NewRouter(httpapi.Deps{
		Orders:      eng.orders,
		Tasks:       eng.tasks,
		Points:      eng.points,
		Trust:       eng.trust,
		Audit:       eng.audit,
		Health:      eng.health,
		CORSOrigins: cfg.CORSOrigins,
		Log:         log,
	})
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
		WriteTimeout:      30 * time.Second,
	}

	// the dispatcher outlives ctx so queued effects drain after the listener stops
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		eng.dispatcher.Run(context.WithoutCancel(gctx))
		return nil
	})
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down gracefully, press Ctrl+C again to force")
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		eng.dispatcher.Close()
		if err != nil {
			return errors.Wrap(err, "server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server exiting")
	return nil
}
