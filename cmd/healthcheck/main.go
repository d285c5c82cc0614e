// Package main is a minimal HTTP health probe for distroless containers.
// It exits 0 when the gatekeeper /health endpoint returns HTTP 200, and 1
// otherwise. The target port follows GATEKEEPER_PORT so the probe tracks
// the server config without extra wiring. Compile with CGO_ENABLED=0.
package main

import (
	"net/http"
	"os"
	"time"
)

func main() {
	port := os.Getenv("GATEKEEPER_PORT")
	if port == "" {
		port = "8080"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://localhost:" + port + "/health")
	if err != nil {
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
