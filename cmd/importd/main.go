package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/mind-engage/mindengage-itembank/internal/api/http"
	"github.com/mind-engage/mindengage-itembank/internal/auth"
	"github.com/mind-engage/mindengage-itembank/internal/bank"
	"github.com/mind-engage/mindengage-itembank/internal/config"
	"github.com/mind-engage/mindengage-itembank/internal/db"
	"github.com/mind-engage/mindengage-itembank/internal/importer"
	"github.com/mind-engage/mindengage-itembank/internal/logger"
	"github.com/mind-engage/mindengage-itembank/internal/rbac"
	"github.com/mind-engage/mindengage-itembank/internal/storage"
)

func main() {
	cfg, err := config.FromEnv()
	log, lerr := logger.New(cfg.LogMode)
	if lerr != nil {
		panic(lerr)
	}
	defer log.Sync()
	if err != nil {
		log.Fatal("config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatal("db open failed", "driver", cfg.DBDriver, "error", err)
	}
	defer dbh.Close()
	store := bank.NewSQLStore(dbh, cfg.DBDriver)

	// --- Blob store ---
	var (
		objects storage.ObjectStore
		assets  storage.Reader
	)
	switch cfg.BlobDriver {
	case "gcs":
		gs, err := storage.NewGCSStore(ctx, storage.GCSConfig{
			Bucket:          cfg.GCSBucket,
			CDNDomain:       cfg.GCSCDNDomain,
			EmulatorHost:    cfg.GCSEmulatorHost,
			CredentialsFile: cfg.GCSCredentialsFile,
		}, log)
		if err != nil {
			log.Fatal("gcs store", "bucket", cfg.GCSBucket, "error", err)
		}
		defer gs.Close()
		objects = gs
	default:
		fs, err := storage.NewFSStore(cfg.BlobBasePath, cfg.BlobPublicURL)
		if err != nil {
			log.Fatal("blob store", "path", cfg.BlobBasePath, "error", err)
		}
		objects, assets = fs, fs
	}

	svc := importer.NewService(cfg, importer.Deps{Uploader: objects, Store: store, Log: log})
	sessions := api.NewSessions(cfg.SessionTTL, cfg.ScratchDir, objects, log)
	go sessions.Arena.Run(ctx, cfg.SessionSweep)

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	router := api.NewRouter(api.RouterDeps{
		Auth: auth.NewAuthService(cfg.AuthHMACSecret),
		Accounts: auth.Accounts{
			AdminUser:     cfg.AdminUser,
			AdminPassHash: cfg.AdminPassHash,
			DevLogins:     cfg.Mode == config.ModeOffline,
		},
		LocalLogin: cfg.EnableLocalAuth,
		Checker:    rbac.NewChecker(nil),
		Importer:   svc,
		Sessions:   sessions,
		Bank:       store,
		Events: func(r *http.Request, limit int) ([]bank.Event, error) {
			return bank.Events(r.Context(), dbh, limit)
		},
		Assets:      assets,
		CORSOrigins: origins,
		MaxUpload:   cfg.Limits.MaxPackageBytes,
		Ready:       func() error { return dbh.PingContext(ctx) },
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown", "error", err)
		}
	}()

	log.Info("listening", "addr", cfg.HTTPAddr, "mode", string(cfg.Mode), "db", cfg.DBDriver, "blob", cfg.BlobDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server", "error", err)
	}
}
