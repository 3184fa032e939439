package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// deckctl is a small control client for a running deckd daemon. It speaks the
// daemon's IPC protocol over the unix socket, plus a watch mode that tails the
// state websocket.

func usage() {
	fmt.Println("USAGE:")
	fmt.Println("  deckctl [OPTIONS] simulate-line <line>")
	fmt.Println("  deckctl [OPTIONS] set-button <key> <type> [value]")
	fmt.Println("  deckctl [OPTIONS] reload")
	fmt.Println("  deckctl [OPTIONS] watch")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  simulate-line   Inject a token as if it arrived from the deck")
	fmt.Println("  set-button      Bind a button key to an action and persist it")
	fmt.Println("                  (types: none, link, exe, keypress, text)")
	fmt.Println("  reload          Reload the button map from disk")
	fmt.Println("  watch           Tail the daemon's state websocket")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -socket string")
	fmt.Println("        Unix domain socket path (default \"/tmp/deckd.sock\")")
	fmt.Println("  -ws string")
	fmt.Println("        State websocket URL for watch (default \"ws://127.0.0.1:8629/ws/state\")")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  deckctl simulate-line BUTTON_3")
	fmt.Println("  deckctl simulate-line VOLUME_7")
	fmt.Println("  deckctl set-button BUTTON_2 link https://example.com")
	fmt.Println("  deckctl set-button BUTTON_5 keypress ctrl+shift+m")
	fmt.Println("  deckctl set-button BUTTON_9 none")
	fmt.Println("  deckctl reload")
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type lineData struct {
	Line string `json:"line"`
}

type actionData struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

type setButtonData struct {
	Key    string     `json:"key"`
	Action actionData `json:"action"`
}

type ipcResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func main() {
	var (
		socketPath = flag.String("socket", "/tmp/deckd.sock", "Unix domain socket path")
		wsURL      = flag.String("ws", "ws://127.0.0.1:8629/ws/state", "State websocket URL")
	)
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	switch args[0] {
	case "simulate-line":
		if len(args) != 2 {
			log.Fatal("simulate-line requires exactly one argument")
		}
		send(*socketPath, envelope{Type: "simulate_line", Data: lineData{Line: args[1]}})

	case "set-button":
		if len(args) < 3 || len(args) > 4 {
			log.Fatal("set-button requires: <key> <type> [value]")
		}
		action := actionData{Type: args[2]}
		if len(args) == 4 {
			action.Value = args[3]
		}
		send(*socketPath, envelope{Type: "set_button", Data: setButtonData{Key: args[1], Action: action}})

	case "reload":
		send(*socketPath, envelope{Type: "reload_buttons"})

	case "watch":
		watch(*wsURL)

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		usage()
		os.Exit(1)
	}
}

// send writes one envelope to the daemon socket and checks the response.
func send(socketPath string, env envelope) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		log.Fatalf("connect to %s: %v (is deckd running?)", socketPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(env)
	if err != nil {
		log.Fatalf("marshal event: %v", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		log.Fatalf("send event: %v", err)
	}

	var resp ipcResponse
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
		log.Fatalf("read response: %v", err)
	}
	if resp.Status != "ok" {
		log.Fatalf("daemon rejected event: %s", resp.Error)
	}
	fmt.Println("ok")
}

// watch tails the state websocket, printing each envelope as pretty JSON.
func watch(wsURL string) {
	u, err := url.Parse(wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected to %s (press Ctrl+C to exit)", u.String())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				log.Printf("read error: %v", err)
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var jsonData map[string]any
			if err := json.Unmarshal(message, &jsonData); err == nil {
				pretty, _ := json.MarshalIndent(jsonData, "", "  ")
				fmt.Printf("%s\n", pretty)
			} else {
				fmt.Printf("%s\n", message)
			}
		}
	}()

	select {
	case <-sigc:
	case <-done:
	}
}
