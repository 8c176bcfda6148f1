package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/pondapp/chat-server/internal/api"
	"github.com/pondapp/chat-server/internal/auth"
	"github.com/pondapp/chat-server/internal/chat"
	"github.com/pondapp/chat-server/internal/config"
	"github.com/pondapp/chat-server/internal/database"
	"github.com/pondapp/chat-server/internal/pubsub"
	"github.com/pondapp/chat-server/internal/server"
	"github.com/pondapp/chat-server/internal/stats"
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
	addr           string
	dsn            string
	signingKey     string
	redisAddr      string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.StringVar(&redisAddr, "redis-addr", "", "redis address for multi-instance fanout (empty runs single-instance)")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[pond-chat] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, redisAddr, allowedOrigins)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	dbConn, err := database.NewPgChatRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close: ", err)
		}
	}()

	if err := dbConn.Migrate(); err != nil {
		logger.Fatal("db migrate: ", err)
	}

	var registry pubsub.Registry
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		registry = pubsub.NewRedisRegistry(client, logger)
	} else {
		registry = pubsub.NewLocalRegistry()
	}
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Println("registry close: ", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	authn := auth.NewJWTAuthenticator(cfg.SigningKey)
	rooms := chat.NewRoomService(logger, dbConn)
	messages, err := chat.NewMessageService(logger, dbConn, rooms)
	if err != nil {
		logger.Fatal("new message service: ", err)
	}

	router := server.NewRouter(logger, rooms, messages, registry, statsUpdater)
	chatServer := server.NewChatServer(logger, router, authn, rooms, registry, statsUpdater)

	srv := api.NewChatApp(mux, logger, chatServer, dbConn, rooms, messages, authn, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

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
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	chatServer.Shutdown()

	logger.Println("shutdown complete")
}
