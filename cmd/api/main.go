package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"relay-api/internal/buckets"
	"relay-api/internal/handlers/telemetry"
	"relay-api/internal/middleware"
	"relay-api/internal/ratelimit"
	"relay-api/internal/routers"
	"relay-api/internal/shared"
	"relay-api/internal/upstream"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/joho/godotenv"
	"github.com/manifold-inc/manifold-sdk/lib/eflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Flags / ENV Variables
	debug := flag.Bool("debug", false, "Debug enabled")
	listenAddr := flag.String("listen-addr", ":80", "Address to serve on")
	metricsAPIKey := flag.String("metrics-api-key", "", "Metrics api key")
	redisAddr := flag.String("redis-addr", "", "Redis host:port, in-memory rate limiting when empty")
	redisPassword := flag.String("redis-password", "", "Redis password")
	redisTLS := flag.Bool("redis-tls", false, "Connect to redis over TLS")
	upstreamEndpoint := flag.String("upstream-endpoint", shared.DefaultUpstreamEndpoint, "OpenAI compatible chat completions URL")
	upstreamAPIKey := flag.String("upstream-api-key", "", "Upstream provider API key")
	upstreamModel := flag.String("upstream-model", shared.DefaultUpstreamModel, "Upstream model name")
	systemPrompt := flag.String("system-prompt", "", "System prompt prepended to every conversation")
	telemetryDSN := flag.String("telemetry-dsn", "", "Telemetry mysql DSN, vitals are only exported as metrics when empty")

	// A local .env is optional, real environment variables win
	_ = godotenv.Load()
	err := eflag.SetFlagsFromEnvironment()
	if err != nil {
		panic(err)
	}
	flag.Parse()

	var logger *zap.Logger
	if !*debug {
		logger, err = zap.NewProduction()
		if err != nil {
			panic("Failed init logger")
		}
	}
	if *debug {
		logger, err = zap.NewDevelopment()
		if err != nil {
			panic("Failed init logger")
		}
	}
	log := logger.Sugar()
	defer func() {
		_ = log.Sync()
	}()

	if *upstreamAPIKey == "" {
		log.Warnw("No upstream api key configured, chat requests will be rejected by the provider")
	}

	// Load Redis connection
	var redisClient *redis.Client
	if *redisAddr != "" {
		opts := &redis.Options{
			Addr:     *redisAddr,
			Password: *redisPassword,
			DB:       0,
		}
		if *redisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			panic(fmt.Sprintf("failed ping to redis db: %s", err))
		}
	}
	limiter, stopSweeper := ratelimit.New(redisClient, log)

	// Telemetry db init
	var telemetryDB *sql.DB
	var vitals *buckets.VitalsBuffer
	if *telemetryDSN != "" {
		telemetryDB, err = sql.Open("mysql", *telemetryDSN)
		if err != nil {
			panic(fmt.Sprintf("failed initializing sqlClient: %s", err))
		}
		err = telemetryDB.Ping()
		if err != nil {
			panic(fmt.Sprintf("failed ping to sql db: %s", err))
		}
		vitals = buckets.NewVitalsBuffer(log, telemetryDB)
	}

	defer func() {
		stopSweeper()
		if vitals != nil {
			vitals.Shutdown()
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if telemetryDB != nil {
			_ = telemetryDB.Close()
		}
	}()

	completer := upstream.NewClient(upstream.Config{
		Endpoint:     *upstreamEndpoint,
		APIKey:       *upstreamAPIKey,
		Model:        *upstreamModel,
		SystemPrompt: *systemPrompt,
	}, log)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.NewHTTPErrorHandler(log)
	e.GET(("/ping"), func(c echo.Context) error {
		return c.String(200, "")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.RequireBearer(*metricsAPIKey))

	base := e.Group("")
	base.Use(emw.CORS())
	base.Use(middleware.NewRecoverMiddleware(log))
	base.Use(middleware.NewTrackMiddleware(log))

	// Register routes
	routers.RegisterChatRoutes(base, limiter, completer, log)
	var sink telemetry.Sink
	if vitals != nil {
		sink = vitals
	}
	routers.RegisterTelemetryRoutes(base, limiter, sink, log)

	go func() {
		if err := e.Start(*listenAddr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), shared.DefaultShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Errorw("Failed graceful shutdown", "error", err)
	}
}
