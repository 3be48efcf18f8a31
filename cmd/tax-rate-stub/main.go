// Command tax-rate-stub serves sales tax rates from CSV tables for local
// development of the order gateway.
//
// Usage:
//
//	tax-rate-stub [-addr :8001] [-path /find_rate] rates.csv [overrides.csv.gz ...]
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/order-gateway/internal/ratetable"
)

func main() {
	var (
		addr string
		path string
	)

	flag.StringVar(&addr, "addr", "0.0.0.0:8001", "listen address")
	flag.StringVar(&path, "path", "/find_rate", "lookup endpoint path")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		slog.Error("at least one rate table file is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, addr, path, files); err != nil {
		slog.Error("tax rate stub failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, addr, path string, files []string) error {
	slog.Info("loading rate tables", slog.Int("files", len(files)))

	table, err := ratetable.Load(ctx, files...)
	if err != nil {
		return errors.Wrap(err, "load rate tables")
	}
	slog.Info("rate tables loaded", slog.Int("zips", table.Len()))

	mux := http.NewServeMux()
	mux.Handle(path, ratetable.Handler(table))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("serving rates", slog.String("addr", addr), slog.String("path", path))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve")
	}
	return nil
}
