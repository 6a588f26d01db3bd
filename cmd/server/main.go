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

	"github.com/imap143/go-signaling/internal/api"
	"github.com/imap143/go-signaling/internal/config"
	"github.com/imap143/go-signaling/internal/database"
	"github.com/imap143/go-signaling/internal/room"
	"github.com/imap143/go-signaling/internal/session"
	"github.com/imap143/go-signaling/internal/signaling"
	"github.com/imap143/go-signaling/internal/stats"
	"github.com/imap143/go-signaling/internal/transport"
	_ "github.com/lib/pq"
)

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
	uploadDir      string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&uploadDir, "upload-dir", "./uploads", "directory for uploaded files")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[go-signaling] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, uploadDir, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgSignalRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	for _, metric := range []string{
		stats.LiveSessions,
		stats.ActiveRooms,
		stats.SignalsRelayed,
		stats.MessagesSent,
	} {
		statsUpdater.RegisterMetric(metric)
	}

	registry := session.NewRegistry(logger)
	directory := room.NewDirectory(logger, dbConn)
	hub := transport.NewHub(logger, statsUpdater)
	relay := signaling.NewRelay(logger, registry, directory, hub, statsUpdater)

	srv := api.NewSignalingApp(mux, logger, hub, relay, registry, directory, dbConn, statsUpdater, cfg)

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

	logger.Println("stopping websocket clients...")
	hub.Shutdown()

	logger.Println("shutdown complete")
}
