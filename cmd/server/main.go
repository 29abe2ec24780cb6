package main

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	auditpkg "retroboard/backend/internal/audit"
	auditrepo "retroboard/backend/internal/audit/repository"
	authservice "retroboard/backend/internal/auth"
	boardrepo "retroboard/backend/internal/board/repository"
	boardservice "retroboard/backend/internal/board/service"
	"retroboard/backend/internal/config"
	"retroboard/backend/internal/db"
	"retroboard/backend/internal/hub"
	"retroboard/backend/internal/security"
	"retroboard/backend/internal/server"
	sessionrepo "retroboard/backend/internal/session/repository"
	sessionservice "retroboard/backend/internal/session/service"
	"retroboard/backend/internal/telemetry"
	"retroboard/backend/internal/telemetry/otel"
	"retroboard/backend/internal/telemetry/producer"
	userrepo "retroboard/backend/internal/user/repository"
)

const sweepInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	tokens, err := buildTokenProvider(cfg)
	if err != nil {
		log.Fatalf("jwt keys: %v", err)
	}
	hasher := security.NewHasher(cfg.BcryptCost)

	auditLogger := auditpkg.NewLogger(auditrepo.NewPostgresRepository(conn), auditpkg.RequestIP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "retroboard-server", false)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	var emitter telemetry.EventEmitter
	if brokers := cfg.TelemetryKafkaBrokersList(); len(brokers) > 0 {
		kp, err := producer.NewKafkaProducer(brokers, cfg.TelemetryKafkaTopic)
		if err != nil {
			log.Fatalf("kafka producer: %v", err)
		}
		defer kp.Close()
		emitter = kp
	} else if cfg.OTLPEndpoint != "" {
		emitter = otel.NewEventEmitter(providers.LoggerProvider)
	}

	sessions := sessionservice.New(
		sessionrepo.NewPostgresRepository(conn),
		auditLogger,
		emitter,
		nil,
		cfg.CookieSecurity(),
		cfg.SessionLifetime(),
		cfg.FingerprintWindow(),
		cfg.Production(),
	)

	realtime := hub.New(server.SessionControl{Sessions: sessions})
	sessions.SetConnectionDropper(realtime)

	boards := boardservice.New(boardrepo.NewPostgresRepository(conn), realtime)
	users := userrepo.NewPostgresRepository(conn)
	auth := authservice.New(users, sessions, hasher, tokens)

	srv := server.New(server.Config{
		Addr:           cfg.HTTPAddr,
		CookieDomain:   cfg.CookieDomain,
		Production:     cfg.Production(),
		AllowedOrigins: cfg.AllowedOriginsList(),
	}, auth, sessions, boards, users, tokens, realtime, conn)

	go sweepLoop(ctx, sessions)

	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("serve: %v", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Println("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	realtime.Close()
	// Let in-flight async telemetry emits finish before tearing providers down.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	log.Println("server stopped")
}

// buildTokenProvider parses the configured signing keys. In non-production
// environments with no keys configured it falls back to an ephemeral ECDSA
// key, so sessions do not survive a restart.
func buildTokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	if cfg.JWTPrivateKey != "" {
		priv, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
		if err != nil {
			return nil, err
		}
		var pub crypto.PublicKey
		if cfg.JWTPublicKey != "" {
			pub, err = security.ParsePublicKey(cfg.JWTPublicKey)
			if err != nil {
				return nil, err
			}
		} else {
			pub = priv.Public()
		}
		return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionLifetime()), nil
	}

	log.Println("JWT_PRIVATE_KEY not set; using an ephemeral signing key (dev only)")
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return security.NewTokenProvider(priv, priv.Public(), cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionLifetime()), nil
}

// sweepLoop terminates expired sessions on a fixed interval.
func sweepLoop(ctx context.Context, sessions *sessionservice.Service) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			n, err := sessions.SweepExpired(sweepCtx)
			cancel()
			if err != nil {
				log.Printf("session sweep: %v", err)
			} else if n > 0 {
				log.Printf("session sweep: terminated %d expired sessions", n)
			}
		}
	}
}
