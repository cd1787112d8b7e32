package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/npezzotti/go-teahub/internal/api"
	"github.com/npezzotti/go-teahub/internal/broadcast"
	"github.com/npezzotti/go-teahub/internal/chat"
	"github.com/npezzotti/go-teahub/internal/config"
	"github.com/npezzotti/go-teahub/internal/database"
	"github.com/npezzotti/go-teahub/internal/server"
	"github.com/npezzotti/go-teahub/internal/stats"
	"github.com/redis/go-redis/v9"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr               string
	dbDriver           string
	dsn                string
	signingKey         string
	allowedOrigins     stringSliceFlag
	redisAddr          string
	maxMessageLength   int
	announceMembership bool
)

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func main() {
	// a missing .env file is fine, flags and the environment still apply
	_ = godotenv.Load()

	flag.StringVar(&addr, "addr", envOr("TEAHUB_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dbDriver, "db-driver", envOr("TEAHUB_DB_DRIVER", database.DriverPostgres), "database driver (postgres or sqlite3)")
	flag.StringVar(&dsn, "dsn", envOr("TEAHUB_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&signingKey, "signing-key", envOr("TEAHUB_SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&redisAddr, "redis-addr", envOr("TEAHUB_REDIS_ADDR", ""), "redis address for fan-out across server processes")
	flag.IntVar(&maxMessageLength, "max-message-length", envIntOr("TEAHUB_MAX_MESSAGE_LENGTH", chat.DefaultMaxMessageLength), "maximum message body length in characters")
	flag.BoolVar(&announceMembership, "announce-membership", envBoolOr("TEAHUB_ANNOUNCE_MEMBERSHIP", true), "post system messages when users join or leave rooms")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		if v := os.Getenv("TEAHUB_ALLOWED_ORIGINS"); v != "" {
			allowedOrigins.Set(v)
		}
	}

	logger := log.New(os.Stderr, "[teahub] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dbDriver, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}
	cfg.RedisAddr = redisAddr
	cfg.MaxMessageLength = maxMessageLength
	cfg.AnnounceMembership = announceMembership
	if err := cfg.Validate(); err != nil {
		logger.Fatal("config:", err)
	}

	if err := database.Migrate(cfg.DatabaseDriver, cfg.DatabaseDSN); err != nil {
		logger.Fatal("db migrate:", err)
	}

	dbConn, err := database.NewGoChatRepository(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	chatServer := server.NewChatServer(logger, dbConn, statsUpdater)
	go chatServer.Run()

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()

	var transport broadcast.Transport = chatServer
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal("redis ping:", err)
		}

		transport = broadcast.NewRedisTransport(rdb)
		go func() {
			if err := broadcast.Relay(relayCtx, rdb, chatServer, logger); err != nil {
				logger.Println("redis relay:", err)
			}
		}()
		logger.Printf("broadcasting through redis at %s", cfg.RedisAddr)
	}

	dispatcher := broadcast.NewDispatcher(transport, logger, statsUpdater)
	chatService := chat.NewService(dbConn, dispatcher, logger, statsUpdater, chat.Options{
		MaxMessageLength:   cfg.MaxMessageLength,
		AnnounceMembership: cfg.AnnounceMembership,
	})

	srv := api.NewGoChatApp(mux, logger, chatServer, dbConn, chatService, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	stopRelay()

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
