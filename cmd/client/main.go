package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"

	"chat-relay/auth"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables. Either a ready
// token or the relay's service key must be provided; with only the key,
// the client self-issues a short-lived token for the configured user.
type Config struct {
	RelayURL   string `env:"RELAY_URL,default=ws://localhost:8080/ws"`
	Token      string `env:"RELAY_TOKEN"`
	ServiceKey string `env:"SERVICE_KEY"`
	UserID     string `env:"RELAY_USER_ID,default=dev-user"`
	Email      string `env:"RELAY_EMAIL,default=dev-user@localhost"`
	RoomID     string `env:"RELAY_ROOM_ID"`
	LogLevel   string `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run handles the WebSocket client lifecycle: configuration, handshake,
// optional room join, and the event reception loop.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	token := config.Token
	if token == "" {
		if config.ServiceKey == "" {
			return exitConfig, fmt.Errorf("either RELAY_TOKEN or SERVICE_KEY is required")
		}
		var err error
		token, err = auth.GenerateToken(config.ServiceKey, config.UserID, config.Email, time.Hour)
		if err != nil {
			return exitConfig, fmt.Errorf("token generation failed: %w", err)
		}
	}

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Establish the authenticated connection to the relay.
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.RelayURL, header)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to relay at %s: %w", config.RelayURL, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	// 4. Optionally join one extra room beyond the auto-joined ones.
	if config.RoomID != "" {
		join := map[string]any{
			"event": "join_conversation",
			"data":  map[string]string{"conversationId": config.RoomID},
		}
		if err := conn.WriteJSON(join); err != nil {
			return exitRuntime, fmt.Errorf("join failed: %w", err)
		}
		log.Info("Joined room", "room_id", config.RoomID)
	}

	log.Info("Connected, listening for events (Ctrl+C to quit)", "relay", config.RelayURL)

	// 5. Event reception loop: a reader goroutine feeds the main select so
	// a termination signal interrupts a blocked read.
	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(frames)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			frames <- raw
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping client...")
			return exitOK, nil
		case err := <-readErr:
			if ctx.Err() != nil {
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("read error: %w", err)
		case raw := <-frames:
			var frame struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(raw, &frame); err != nil {
				log.Warn("Unparseable frame", "error", err)
				continue
			}
			log.Info(fmt.Sprintf("[%s] %s",
				time.Now().Format(time.TimeOnly), frame.Event),
				"data", string(frame.Data))
		}
	}
}
