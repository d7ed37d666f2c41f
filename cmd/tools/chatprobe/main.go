package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// chatprobe drives a running API instance end to end: it opens the event
// stream, fires a send (optionally cancelling it mid-flight) and prints
// every event until the timeout elapses.
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	addr := flag.String("addr", "http://localhost:8080", "base URL of the API")
	text := flag.String("text", "", "message text to send")
	cancelAfter := flag.Duration("cancel-after", 0, "cancel the request after this delay (0 = never)")
	listOnly := flag.Bool("list", false, "list sessions and exit")
	timeout := flag.Duration("timeout", 30*time.Second, "how long to watch the event stream")

	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *listOnly {
		listSessions(ctx, *addr)
		return
	}

	if strings.TrimSpace(*text) == "" {
		flag.Usage()
		log.Fatal("provide -text to send, or -list to inspect sessions")
	}

	eventsReady := make(chan struct{})
	go watchEvents(ctx, *addr, eventsReady)
	<-eventsReady

	if err := post(ctx, *addr+"/api/chat/send", map[string]string{"text": *text}); err != nil {
		log.Fatalf("send failed: %v", err)
	}
	log.Printf("sent: %s", *text)

	if *cancelAfter > 0 {
		time.AfterFunc(*cancelAfter, func() {
			if err := post(ctx, *addr+"/api/chat/cancel", nil); err != nil {
				log.Printf("cancel failed: %v", err)
				return
			}
			log.Printf("cancel requested")
		})
	}

	<-ctx.Done()
}

func listSessions(ctx context.Context, addr string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/api/sessions", nil)
	if err != nil {
		log.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("listing sessions: %v", err)
	}
	defer resp.Body.Close()

	var sessions []struct {
		ID           string `json:"id"`
		Title        string `json:"title"`
		Active       bool   `json:"active"`
		MessageCount int    `json:"messageCount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		log.Fatalf("decoding sessions: %v", err)
	}

	for _, s := range sessions {
		marker := " "
		if s.Active {
			marker = "*"
		}
		fmt.Printf("%s %s  %-34q %d messages\n", marker, s.ID, s.Title, s.MessageCount)
	}
}

func post(ctx context.Context, url string, payload interface{}) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func watchEvents(ctx context.Context, addr string, ready chan<- struct{}) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/api/events", nil)
	if err != nil {
		log.Fatalf("building event request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("opening event stream: %v", err)
	}
	defer resp.Body.Close()

	close(ready)

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		log.Printf("event: %s", strings.TrimPrefix(line, "data: "))
	}
}
