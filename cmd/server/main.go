// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/gamblevs/minesduel/internal/audit"
	"github.com/gamblevs/minesduel/internal/auth"
	"github.com/gamblevs/minesduel/internal/handlers"
	"github.com/gamblevs/minesduel/internal/middleware"
)

func main() {
	auth.Init()

	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}

	pub, err := audit.Connect()
	if err != nil {
		logger.Warnf("audit trail disabled: %v", err)
		pub = nil
	}

	ms := handlers.NewMatchServer(logger, pub)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ms.StartSweeper(ctx, 5*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/duel/ws", middleware.LogMiddleware(logger)(
		handlers.WSHandler(logger, ms),
	))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
