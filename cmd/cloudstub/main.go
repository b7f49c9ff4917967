// Command cloudstub serves a local imitation of the cloud backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/timechildgames/cloudrelay/internal/cloudstub"
	"github.com/timechildgames/cloudrelay/internal/log"
)

type userFlags map[string]string

func (u userFlags) String() string { return fmt.Sprintf("%d users", len(u)) }

func (u userFlags) Set(v string) error {
	name, pass, ok := strings.Cut(v, ":")
	if !ok || name == "" {
		return fmt.Errorf("expected user:password, got %q", v)
	}
	u[name] = pass
	return nil
}

func main() {
	users := userFlags{}
	listen := flag.String("listen", "127.0.0.1:9090", "Address to serve on")
	appID := flag.String("app-id", os.Getenv("CLOUDSTUB_APP_ID"), "Expected application id header")
	restKey := flag.String("rest-key", os.Getenv("CLOUDSTUB_REST_KEY"), "Expected REST API key header")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Var(users, "user", "Accepted login as user:password (repeatable)")
	flag.Parse()

	log.Setup(*logLevel, "text")
	logger := log.WithComponent("cloudstub")

	if *appID == "" || *restKey == "" {
		fmt.Fprintln(os.Stderr, "both --app-id and --rest-key are required")
		os.Exit(1)
	}

	stub := cloudstub.New(cloudstub.Config{
		ApplicationID: *appID,
		RESTAPIKey:    *restKey,
		Users:         users,
	})
	srv := &http.Server{
		Addr:              *listen,
		Handler:           stub.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("cloudstub listening", "listen", *listen, "base_url", "http://"+*listen+"/1/", "users", len(users))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
