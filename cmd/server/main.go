package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/kubilitics/kubilitics-backend/internal/api/middleware"
	"github.com/kubilitics/kubilitics-backend/internal/api/rest"
	"github.com/kubilitics/kubilitics-backend/internal/auth"
	"github.com/kubilitics/kubilitics-backend/internal/authbackend"
	"github.com/kubilitics/kubilitics-backend/internal/config"
	"github.com/kubilitics/kubilitics-backend/internal/historystore"
	"github.com/kubilitics/kubilitics-backend/internal/lookup"
	"github.com/kubilitics/kubilitics-backend/internal/pkg/tracing"
	"github.com/kubilitics/kubilitics-backend/internal/rorconfig"
)

func main() {
	log.Println("🚀 Rule engine backend starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Printf("⚠️  Warning: Failed to load config: %v. Using defaults.", err)
		cfg = &config.Config{
			Port:           8080,
			LogLevel:       "info",
			AllowedOrigins: []string{"*"},
			RuleConfigPath: "./rules.yml",
		}
	}
	log.Printf("📋 Configuration loaded: port=%d, rules=%s", cfg.Port, cfg.RuleConfigPath)

	// Distributed tracing (BE-OBS-001)
	shutdownTracing, err := tracing.Init(cfg.TracingServiceName, cfg.TracingEndpoint, cfg.TracingSamplingRate)
	if err != nil {
		log.Printf("⚠️  Warning: Failed to initialize tracing: %v", err)
		shutdownTracing = func() {}
	}
	defer shutdownTracing()

	// Load and compile the access-control rule document
	log.Println("📜 Loading rule configuration...")
	doc, err := rorconfig.LoadAndValidate(cfg.RuleConfigPath)
	if err != nil {
		log.Fatalf("❌ Failed to load rule configuration: %v", err)
	}
	blocks := doc.Compile()
	log.Printf("✅ Compiled %d block(s) from %s", len(blocks), cfg.RuleConfigPath)

	// Auth backends: basic (bootstrap admin only), proxy-header, JWT. OIDC/SAML/LDAP are
	// wired through their own flows (callback handlers, directory lookups), not this chain.
	log.Println("🔑 Initializing authentication backends...")
	chain := authbackend.Chain{}
	if cfg.AuthAdminUser != "" && cfg.AuthAdminPass != "" {
		hash, err := auth.HashPassword(cfg.AuthAdminPass)
		if err != nil {
			log.Fatalf("❌ Failed to hash bootstrap admin password: %v", err)
		}
		store := authbackend.StaticUserStore{
			cfg.AuthAdminUser: {PasswordHash: hash, Groups: []string{auth.RoleAdmin}},
		}
		chain = append(chain, &authbackend.BasicBackend{Store: store})
		log.Printf("✅ Bootstrap admin user %q registered", cfg.AuthAdminUser)
	}
	chain = append(chain, authbackend.ProxyHeaderBackend{})
	if cfg.AuthJWTSecret != "" {
		chain = append(chain, &authbackend.JWTBackend{Secret: cfg.AuthJWTSecret})
	}

	// Metadata lookup facade (§4.1 cases 3/4, C9): fans a cluster's live index/snapshot/
	// repository/template inventory out to the target cluster, caches it, and coalesces
	// concurrent lookups for the same cluster key.
	log.Println("🔎 Initializing cluster metadata lookup...")
	var lookupFacade *lookup.Facade
	if esURL := os.Getenv("ELASTICSEARCH_URL"); esURL != "" {
		source := lookup.NewESMetadataSource(esURL, os.Getenv("ELASTICSEARCH_USERNAME"), os.Getenv("ELASTICSEARCH_PASSWORD"))
		ttl := time.Duration(cfg.LookupCacheTTLSec) * time.Second
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		lookupFacade, err = lookup.New(source, cfg.LookupCacheSize, ttl)
		if err != nil {
			log.Printf("⚠️  Warning: Failed to initialize metadata lookup: %v", err)
		} else {
			log.Printf("✅ Metadata lookup targeting %s", esURL)
		}
	} else {
		log.Println("📋 ELASTICSEARCH_URL not set — requests that need live cluster metadata (reverse-glob/pattern-intersection matching) will see an empty universe")
	}

	// Evaluation history store (C12): Postgres when a DSN is configured, otherwise a
	// bounded in-memory ring buffer — mirroring the teacher's SQLite-vs-no-DSN pattern.
	log.Println("💾 Initializing evaluation history store...")
	var history historystore.Store
	if cfg.HistoryDSN != "" {
		pg, err := historystore.NewPostgresStore(ctx, cfg.HistoryDSN)
		if err != nil {
			log.Printf("⚠️  Warning: Failed to connect history store, falling back to in-memory: %v", err)
			history = historystore.NewMemoryStore(cfg.HistoryMemoryCap)
		} else {
			history = pg
			log.Println("✅ History store connected to Postgres")
		}
	} else {
		history = historystore.NewMemoryStore(cfg.HistoryMemoryCap)
		log.Println("✅ History store using in-memory ring buffer")
	}
	defer history.Close()

	handler := rest.NewHandler(blocks, chain, lookupFacade, history)

	router := mux.NewRouter()

	var actualPort int

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		body := map[string]interface{}{
			"status":  "healthy",
			"service": "rule-engine-backend",
			"version": "1.0.0",
			"blocks":  len(blocks),
		}
		if actualPort != 0 {
			body["port"] = actualPort
		}
		_ = json.NewEncoder(w).Encode(body)
	}).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.HandleFunc("/api/v1/evaluate", handler.Evaluate).Methods("POST")
	router.Handle("/api/v1/history", middleware.RequireViewer()(http.HandlerFunc(handler.History))).Methods("GET")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Not found"})
	})

	// Enterprise middleware: secure headers, request ID, structured log, tracing, rate
	// limiting, recovery — applied in order, outermost first.
	router.Use(middleware.SecureHeaders)
	router.Use(middleware.RequestID)
	router.Use(middleware.StructuredLog)
	router.Use(middleware.Tracing)
	router.Use(middleware.RateLimit())
	router.Use(middleware.MaxBodySize(middleware.DefaultStandardMaxBodyBytes, middleware.DefaultApplyMaxBodyBytes))
	router.Use(middleware.Auth(cfg))
	router.Use(middleware.MetricsAuth(cfg))
	router.Use(middleware.AuditLog())
	router.Use(recoveryMiddleware)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	handlerWithCORS := c.Handler(router)

	readTimeout := 15 * time.Second
	writeTimeout := 15 * time.Second
	if cfg.RequestTimeoutSec > 0 {
		readTimeout = time.Duration(cfg.RequestTimeoutSec) * time.Second
		writeTimeout = time.Duration(cfg.RequestTimeoutSec) * time.Second
	}
	shutdownTimeout := 10 * time.Second
	if cfg.ShutdownTimeoutSec > 0 {
		shutdownTimeout = time.Duration(cfg.ShutdownTimeoutSec) * time.Second
	}

	// Bind to first available port in [cfg.Port, cfg.Port+99], cap at 8199
	maxPort := cfg.Port + 99
	if maxPort > 8199 {
		maxPort = 8199
	}
	var listener net.Listener
	for port := cfg.Port; port <= maxPort; port++ {
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			var errno *syscall.Errno
			if errors.As(err, &errno) && *errno == syscall.EADDRINUSE {
				continue
			}
			log.Fatalf("❌ Failed to listen: %v", err)
		}
		listener = l
		actualPort = port
		break
	}
	if listener == nil {
		log.Fatalf("❌ No port available in range %d..%d", cfg.Port, maxPort)
	}
	defer listener.Close()

	srv := &http.Server{
		Handler:      handlerWithCORS,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Printf("🌐 Server listening on http://localhost:%d", actualPort)
		log.Printf("📡 Evaluate endpoint at http://localhost:%d/api/v1/evaluate", actualPort)
		log.Printf("❤️  Health check at http://localhost:%d/health", actualPort)
		log.Printf("📊 Metrics at http://localhost:%d/metrics", actualPort)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("")
	log.Println("🛑 Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server exited gracefully")
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("💥 Panic recovered: %v", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
