// Package main runs a demo WebSocket client for plan events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Connect WS first so the plan events are not missed.
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/events/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var evt struct {
				Type string         `json:"type"`
				Data map[string]any `json:"data"`
			}
			if err := c.ReadJSON(&evt); err != nil {
				log.Println("read:", err)
				return
			}
			log.Printf("event %s: %v", evt.Type, evt.Data)
		}
	}()

	// Kick off a short horizon pass.
	from := time.Now().UTC().Format("2006-01-02")
	body := []byte(fmt.Sprintf(`{"fromDate":%q,"days":3}`, from))
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/plan", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var planResp struct {
		Summary map[string]any `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&planResp); err != nil {
		log.Fatal(err)
	}
	log.Printf("plan summary: %v", planResp.Summary)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	select {
	case <-done:
	case <-interrupt:
		_ = c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	case <-time.After(30 * time.Second):
		log.Println("timed out waiting for events")
	}
}
