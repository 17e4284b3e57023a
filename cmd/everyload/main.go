package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	httpAdapter "github.com/elteam/everyload/internal/adapter/http"
	"github.com/elteam/everyload/internal/adapter/notify"
	"github.com/elteam/everyload/internal/adapter/remote"
	"github.com/elteam/everyload/internal/adapter/sqlite"
	"github.com/elteam/everyload/internal/adapter/ytdlp"
	"github.com/elteam/everyload/internal/config"
	"github.com/elteam/everyload/internal/domain"
	"github.com/elteam/everyload/internal/download"
	"github.com/elteam/everyload/internal/portals"
	"github.com/elteam/everyload/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	log.WithFields(logrus.Fields{
		"port":     cfg.Port,
		"database": cfg.DBPath,
		"dir":      cfg.DownloadDir,
	}).Info("starting everyload")

	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	st, err := store.New(sqlite.NewSnapshotRepo(db), log)
	if err != nil {
		log.WithError(err).Fatal("failed to load job snapshot")
	}

	pm, err := portals.NewManager(sqlite.NewPortalRepo(db), log)
	if err != nil {
		log.WithError(err).Fatal("failed to load portals")
	}

	var fetcher domain.Fetcher
	if cfg.Server.URL != "" {
		f := remote.New(cfg.Server.URL, cfg.DownloadDir, log)
		f.SetPollInterval(cfg.Server.PollInterval.Duration())
		fetcher = f
		log.WithField("server", cfg.Server.URL).Info("using remote download server")
	} else {
		fetcher = ytdlp.New(cfg.DownloadDir, log)
	}

	svc := download.NewService(st, fetcher, download.Config{
		MaxConcurrent: cfg.Downloads.MaxConcurrent,
		Policy:        domain.NewPolicy(cfg.Downloads.MaxAttempts),
		Options: domain.FetchOptions{
			Format:         cfg.Downloads.Format,
			Quality:        cfg.Downloads.Quality,
			AllowPlaylists: cfg.Downloads.AllowPlaylists,
		},
		Observer: pm,
	}, log)

	st.Notifier().Register(notify.New(log))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := httpAdapter.NewServer(svc, pm, addr, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.WithField("addr", addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server error")
		}
	}()

	sig := <-sigCh
	log.WithField("signal", sig).Info("shutting down")

	// Abort in-flight fetches; jobs are marked stopped and survive restart.
	svc.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown error")
	}

	log.Info("shutdown complete")
}
