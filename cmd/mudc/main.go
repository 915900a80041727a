package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wumingmud/client/auth"
	"github.com/wumingmud/client/config"
	"github.com/wumingmud/client/logging"
	"github.com/wumingmud/client/session"
	"github.com/wumingmud/client/state"
	"github.com/wumingmud/client/storage"
	"github.com/wumingmud/client/tui"
)

func main() {
	var serverURL string
	var apiURL string
	var verbose bool

	flag.StringVar(&serverURL, "server", "", "Websocket server URL (overrides WS_URL)")
	flag.StringVar(&apiURL, "api", "", "Auth API base URL (overrides API_URL)")
	flag.BoolVar(&verbose, "v", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if serverURL != "" {
		cfg.WSURL = serverURL
	}
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if verbose {
		cfg.LogLevel = "DEBUG"
	}

	log := logging.New(logging.Config{
		FilePath: cfg.LogPath,
		Stdout:   cfg.LogStdout,
		Level:    cfg.LogLevel,
	})

	store := storage.Open(cfg.StoragePath)

	gameState := state.NewStore()
	authClient := auth.NewClient(cfg.APIURL, store, log)
	sess := session.New(cfg.WSURL, authClient, gameState, log)
	defer sess.Close()

	// A token cached from a previous run restores the authenticated state
	// so the UI can go straight to connecting.
	if authClient.IsLoggedIn() {
		gameState.SetAuthenticated(true)
		if info, ok := authClient.CachedPlayer(); ok {
			gameState.SetPlayer(state.Player{
				ID:    info.ID,
				Name:  info.Name,
				Level: info.Level,
			})
		}
	}

	log.Info("client.start", "ws_url", cfg.WSURL, "api_url", cfg.APIURL)

	if err := tui.Start(sess, authClient); err != nil {
		fmt.Fprintf(os.Stderr, "ui: %v\n", err)
		os.Exit(1)
	}
}
