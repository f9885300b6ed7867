package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mind-engage/mindengage-itembank/internal/auth"
	"github.com/mind-engage/mindengage-itembank/internal/bank"
	"github.com/mind-engage/mindengage-itembank/internal/rbac"
	"github.com/mind-engage/mindengage-itembank/internal/storage"
)

type RouterDeps struct {
	Auth         *auth.AuthService
	Accounts     auth.Accounts
	LocalLogin   bool
	Checker      *rbac.Checker
	Importer     Importer
	Sessions     *Sessions
	Bank         bank.Store   // nil: saving and commits answer 503
	Events       EventsSource // nil: no /events route
	Assets       storage.Reader
	CORSOrigins  []string
	MaxUpload    int64
	Ready        func() error
	RequestLimit time.Duration
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Checker == nil {
		d.Checker = rbac.NewChecker(nil)
	}
	if d.RequestLimit <= 0 {
		d.RequestLimit = 5 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(d.RequestLimit))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if d.LocalLogin {
		r.Post("/auth/login", auth.LoginHandler(d.Auth, d.Accounts))
	}
	if d.Assets != nil {
		r.Route("/assets", func(ar chi.Router) {
			MountAssets(ar, d.Assets)
		})
	}

	bankStore := d.Bank
	if bankStore == nil {
		bankStore = unavailableBank{}
	}

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))

		pr.With(d.Checker.Require(rbac.PermImport)).
			Post("/packages/import", ImportPackageHandler(d.Importer, d.Checker, d.MaxUpload))
		pr.With(d.Checker.RequireAny(rbac.PermValidate, rbac.PermImport)).
			Post("/packages/validate", ValidatePackageHandler(d.Importer, d.MaxUpload))

		pr.Route("/imports", func(ir chi.Router) {
			ir.Use(d.Checker.Require(rbac.PermImport))
			ir.Post("/", StageImportHandler(d.Importer, d.Sessions, d.MaxUpload))
			ir.Get("/{id}", PreviewImportHandler(d.Sessions))
			ir.Get("/{id}/source", ImportSourceHandler(d.Sessions))
			ir.With(d.Checker.Require(rbac.PermSave)).
				Post("/{id}/commit", CommitImportHandler(d.Sessions, bankStore))
			ir.Delete("/{id}", DiscardImportHandler(d.Sessions))
		})

		if d.Events != nil {
			pr.With(d.Checker.Require(rbac.PermEvents)).
				Get("/events", ListEventsHandler(d.Events))
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(200)
	})
	return r
}
