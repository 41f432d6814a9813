// Command healthcheck probes the bot's liveness endpoint and exits non-zero
// when it does not answer 200. It is meant for container HEALTHCHECK lines.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := probe(ctx, http.DefaultClient, healthURL(os.Getenv("HEALTHCHECK_URL"), os.Getenv("HTTP_ADDR"))); err != nil {
		slog.Error("healthcheck failed", slog.Any("err", err))
		cancel()
		os.Exit(1)
	}
}

// healthURL returns override when set, otherwise /healthz on the local
// listener described by addr.
func healthURL(override, addr string) string {
	if override != "" {
		return override
	}
	if addr == "" {
		addr = ":8080"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/healthz"
}

func probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
