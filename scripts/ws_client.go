// Package main runs a demo WebSocket client for plan progress events.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type   string          `json:"type"`
	PlanID string          `json:"planId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// demoPayload scatters n waypoints around a depot in Bengaluru.
func demoPayload(n int) map[string]any {
	rng := rand.New(rand.NewSource(1))
	waypoints := make([]string, n)
	distances := make([]float64, n)
	for i := range n {
		lat := 12.9716 + (rng.Float64()-0.5)*0.1
		lon := 77.5946 + (rng.Float64()-0.5)*0.1
		waypoints[i] = fmt.Sprintf("%.6f,%.6f", lat, lon)
		distances[i] = 1000 + rng.Float64()*6000
	}
	return map[string]any{
		"depot":           "12.9716,77.5946",
		"waypoints":       waypoints,
		"distances":       distances,
		"num_clusters":    4,
		"min_per_cluster": 5,
		"max_per_cluster": 12,
		"planDate":        time.Now().Format(time.DateOnly),
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/plans/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "planner")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(demoPayload(40)); err != nil {
		log.Fatal(err)
	}
	_ = c.SetReadDeadline(time.Now().Add(time.Minute))
	for {
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			log.Fatalf("read: %v", err)
		}
		log.Printf("WS <- %s %s: %s", m.Type, m.PlanID, string(m.Data))
		if m.Type != "progress" {
			return
		}
	}
}
