// sentinel-dash is the terminal dashboard: it connects to a running
// chain-sentinel gateway and renders fired alerts live.
package main

import (
	"flag"
	"fmt"
	"os"

	"chain-sentinel/internal/tui"
)

func main() {
	server := flag.String("server", "ws://localhost:8090/ws/alerts", "gateway WebSocket URL")
	token := flag.String("token", "", "gateway auth token (or SENTINEL_TOKEN)")
	flag.Parse()

	if *token == "" {
		*token = os.Getenv("SENTINEL_TOKEN")
	}

	if err := tui.Run(*server, *token); err != nil {
		fmt.Fprintln(os.Stderr, "sentinel-dash:", err)
		os.Exit(1)
	}
}
