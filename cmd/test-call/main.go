// test-call connects to a running voice-core server, opens a call
// session over the duplex websocket, sends text input, and prints the
// control events and audio frame sizes it receives.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func main() {
	baseURL := flag.String("url", "ws://localhost:8080/voice/ws", "websocket endpoint")
	callSID := flag.String("call-sid", "", "call sid (random if empty)")
	text := flag.String("text", "Hello! This sounds too expensive for me.", "text input to send")
	wait := flag.Duration("wait", 10*time.Second, "how long to listen for responses")
	flag.Parse()

	if *callSID == "" {
		*callSID = "test-" + uuid.NewString()[:8]
	}
	conversationID := uuid.NewString()

	wsURL := fmt.Sprintf("%s?call_sid=%s&conversation_id=%s", *baseURL, *callSID, conversationID)
	fmt.Printf("Connecting to %s\n", wsURL)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("connection failed: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		audioBytes := 0
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				fmt.Printf("connection closed: %v\n", err)
				return
			}
			switch msgType {
			case websocket.BinaryMessage:
				audioBytes += len(data)
				fmt.Printf("  [audio] %d bytes (total %d)\n", len(data), audioBytes)
			case websocket.TextMessage:
				var event map[string]interface{}
				if err := json.Unmarshal(data, &event); err != nil {
					fmt.Printf("  [?] %s\n", data)
					continue
				}
				pretty, _ := json.Marshal(event)
				fmt.Printf("  [%v] %s\n", event["type"], pretty)
			}
		}
	}()

	// Give the greeting a moment to play, then send customer input.
	time.Sleep(2 * time.Second)
	fmt.Printf("Sending text input: %q\n", *text)
	input := map[string]interface{}{"type": "text", "text": *text}
	if err := conn.WriteJSON(input); err != nil {
		log.Fatalf("failed to send input: %v", err)
	}

	select {
	case <-done:
	case <-time.After(*wait):
		fmt.Println("Done listening.")
	}

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	time.Sleep(200 * time.Millisecond)
	os.Exit(0)
}
