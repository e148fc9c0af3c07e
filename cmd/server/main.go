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

	"github.com/pingpad/pingpad/internal/api"
	"github.com/pingpad/pingpad/internal/blob"
	"github.com/pingpad/pingpad/internal/chat"
	"github.com/pingpad/pingpad/internal/config"
	"github.com/pingpad/pingpad/internal/database"
	"github.com/pingpad/pingpad/internal/server"
	"github.com/pingpad/pingpad/internal/stats"
)

const defaultSigningKey = "Y2hhbmdlLW1lLWJlZm9yZS1ydW5uaW5nLWluLXByb2Q="

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
	uploadDir      string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.StringVar(&uploadDir, "upload-dir", "./uploads", "directory for attachment storage")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[pingpad] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, uploadDir, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	if err := database.Migrate(cfg.DatabaseDSN); err != nil {
		logger.Fatal("migrate:", err)
	}

	dbConn, err := database.NewPgChatRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	blobs, err := blob.NewFSStore(cfg.UploadDir, "/api/uploads")
	if err != nil {
		logger.Fatal("blob store:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	for _, metric := range []string{
		stats.ActiveConnections,
		stats.MessagesSent,
		stats.EventsFannedOut,
		stats.FanoutErrors,
		stats.DroppedFrames,
	} {
		statsUpdater.RegisterMetric(metric)
	}

	sessions := chat.NewSessionService(logger, dbConn, cfg.SigningKey, cfg.SessionTTL)
	membership := chat.NewMembershipService(logger, dbConn)
	messages := chat.NewMessageService(logger, dbConn, blobs)

	chatServer := server.NewChatServer(logger, membership, messages, statsUpdater)

	srv := api.NewPingpadApp(mux, logger, chatServer, sessions, membership, messages, blobs, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

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

	chatServer.Shutdown()

	logger.Println("shutdown complete")
}
