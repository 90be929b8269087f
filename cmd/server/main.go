// Command server runs the rendezvous service: the HTTP signaling API that
// manages room codes and the TCP relay that pipes frames between a paired
// host and client. It holds no financial data; peers exchange records
// end to end through it.
package main

import (
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/centimo/centimo/internal/observability"
	"github.com/centimo/centimo/internal/signal"
	"github.com/centimo/centimo/pkg/logging"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	logging.Setup()

	listenAddr := getEnv("LISTEN_ADDR", ":8080")
	relayAddr := getEnv("RELAY_ADDR", ":8081")

	observability.RegisterMetrics()

	registry := signal.NewRegistry()

	// TCP relay for paired peers.
	relay := signal.NewRelay(registry)
	ln, err := net.Listen("tcp", relayAddr)
	if err != nil {
		slog.Error("Failed to listen for relay connections", "address", relayAddr, "error", err)
		os.Exit(1)
	}
	go func() {
		slog.Info("Relay listening", "address", relayAddr)
		if err := relay.Serve(ln); err != nil {
			slog.Error("Relay stopped", "error", err)
			os.Exit(1)
		}
	}()

	// HTTP signaling API plus metrics.
	api := signal.NewServer(registry)
	router := api.Routes()
	router.Handle("/metrics", promhttp.Handler())

	// h2c lets clients speak HTTP/2 without TLS; a reverse proxy terminates
	// TLS in production.
	handler := h2c.NewHandler(router, &http2.Server{})

	slog.Info("Signaling server starting", "address", listenAddr)
	if err := http.ListenAndServe(listenAddr, handler); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
