// Package main runs a demo WebSocket client for run progress events:
//
//	go run scripts/progress_client.go -url ws://localhost:8080/v1/runs/<id>/ws
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/v1/runs/demo/ws", "run progress websocket URL")
	tenant := flag.String("tenant", "t_demo", "tenant id header")
	flag.Parse()

	hdr := map[string][]string{"X-Tenant-Id": {*tenant}}
	conn, _, err := websocket.DefaultDialer.Dial(*url, hdr)
	if err != nil {
		log.Fatalf("dial %s: %v", *url, err)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			fmt.Printf("%v\n", msg)
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		<-done
	}
}
