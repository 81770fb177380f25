// Package main is a websocket load driver for the chat server. It connects
// a fleet of clients that send text messages, answers heartbeat pings, and
// reports throughput and gate rejections at the end.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

type stats struct {
	sent        atomic.Int64
	failed      atomic.Int64
	rateLimited atomic.Int64
	rejected    atomic.Int64
}

type frame struct {
	Type string `json:"type"`
	Data struct {
		Message string `json:"message"`
	} `json:"data"`
}

func main() {
	serverURL := flag.String("url", "ws://localhost:8082/ws", "websocket endpoint")
	clients := flag.Int("clients", 100, "number of concurrent clients")
	total := flag.Int64("messages", 2000, "total messages to send across all clients")
	duration := flag.Duration("duration", 5*time.Minute, "maximum test duration")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	var s stats
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			clientID := fmt.Sprintf("batch_client_%d", n)
			for ctx.Err() == nil && s.sent.Load() < *total {
				if err := runSession(ctx, *serverURL, clientID, *total, &s); err != nil {
					s.rejected.Add(1)
					select {
					case <-ctx.Done():
					case <-time.After(time.Duration(500+rand.Intn(1500)) * time.Millisecond):
					}
				}
			}
		}(i)
	}

	// Periodic progress reporting.
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-done:
			break loop
		case <-ticker.C:
			elapsed := time.Since(start).Seconds()
			sent := s.sent.Load()
			logger.Info("progress",
				"sent", sent,
				"target", *total,
				"failed", s.failed.Load(),
				"rate", fmt.Sprintf("%.1f msgs/sec", float64(sent)/elapsed))
		}
	}

	elapsed := time.Since(start)
	sent := s.sent.Load()
	failed := s.failed.Load()
	successRate := 0.0
	if sent+failed > 0 {
		successRate = float64(sent) / float64(sent+failed) * 100
	}
	logger.Info("test results",
		"duration", elapsed.Round(time.Millisecond),
		"sent", sent,
		"failed", failed,
		"rate_limited", s.rateLimited.Load(),
		"connections_rejected", s.rejected.Load(),
		"success_rate", fmt.Sprintf("%.1f%%", successRate))
}

// runSession dials one connection, performs the handshake, and sends text
// messages until the context is done or the target is reached. Heartbeat
// pings are answered with pongs; other frames are drained.
func runSession(ctx context.Context, url, clientID string, total int64, s *stats) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{
		"client_id": clientID,
		"timezone":  "UTC",
	}); err != nil {
		return err
	}

	// Reader goroutine: answer pings, count errors.
	var writeMu sync.Mutex
	readErr := make(chan error, 1)
	go func() {
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				readErr <- err
				return
			}
			switch f.Type {
			case "heartbeat":
				writeMu.Lock()
				err := conn.WriteJSON(map[string]any{
					"type": "heartbeat",
					"data": map[string]string{
						"message":   "pong",
						"timestamp": time.Now().UTC().Format(time.RFC3339),
					},
				})
				writeMu.Unlock()
				if err != nil {
					readErr <- err
					return
				}
			case "error":
				s.failed.Add(1)
				if strings.Contains(strings.ToLower(f.Data.Message), "too many clients") {
					s.rateLimited.Add(1)
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case <-time.After(time.Duration(100+rand.Intn(400)) * time.Millisecond):
		}
		if s.sent.Load() >= total {
			return nil
		}

		payload, _ := json.Marshal(map[string]string{
			"content":      fmt.Sprintf("Test message %d from %s", s.sent.Load(), clientID),
			"message_type": "text",
			"timestamp":    time.Now().UTC().Format(time.RFC3339),
		})
		writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, payload)
		writeMu.Unlock()
		if err != nil {
			return err
		}
		s.sent.Add(1)
	}
}
