package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimitrije/snapbook/internal/config"
	"github.com/dimitrije/snapbook/internal/fakeserver"
	"github.com/dimitrije/snapbook/internal/hub"
	"github.com/dimitrije/snapbook/internal/services"
	"github.com/golang/glog"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	flag.Parse()
	defer glog.Flush()

	cfg, err := config.LoadBackend()
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}

	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTAccessExpiry)
	store := fakeserver.NewStore(bcrypt.DefaultCost)

	h := hub.NewHub()
	go h.Run()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           fakeserver.New(store, h, jwtService, cfg.IsProduction()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		glog.Infof("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	glog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		glog.Warningf("Shutdown: %v", err)
	}
}
