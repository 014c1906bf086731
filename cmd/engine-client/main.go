// Command engine-client is a demo CLI exercising the engine end to end
// with a real microphone: it captures PCM via malgo and streams it over a
// WebSocket connection to an engine-server instance, printing each
// incoming Frame as it arrives. Grounded on cmd/agent/main.go's malgo
// device setup and signal-handling shape, generalized from a duplex
// mic+speaker voice agent to a mic-only streaming client (the engine has
// no audio output of its own — §1 excludes microphone capture and the web
// UI from the engine's own concerns, but a demo client still needs one).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/websocket"
	"github.com/gen2brain/malgo"
)

const (
	sampleRate = 16000
	channels   = 1
)

func main() {
	addr := flag.String("addr", "localhost:8080", "engine-server host:port")
	insecure := flag.Bool("insecure", true, "use ws:// instead of wss://")
	flag.Parse()

	scheme := "wss"
	if *insecure {
		scheme = "ws"
	}
	u := url.URL{Scheme: scheme, Host: *addr, Path: "/ws"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		log.Fatalf("engine-client: dial %s: %v", u.String(), err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "client exiting")

	fmt.Println("Connected to engine. Listening to microphone...")
	fmt.Println("Press Ctrl+C to exit")

	go readFrames(ctx, conn)

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer mctx.Uninit()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = channels
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Alsa.NoMMap = 1

	onSamples := func(_, pInput []byte, _ uint32) {
		if len(pInput) == 0 {
			return
		}
		chunk := make([]byte, len(pInput))
		copy(chunk, pInput)
		if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
			log.Printf("engine-client: write failed: %v", err)
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		log.Fatal(err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		log.Fatal(err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Println("\nClosing stream...")
	conn.Write(ctx, websocket.MessageBinary, []byte{})
}

// readFrames is the sole reader of the connection, printing each message
// as it arrives: the initial config message, a stream of JSON Frames, and
// finally ready_to_stop.
func readFrames(ctx context.Context, conn *websocket.Conn) {
	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var raw map[string]interface{}
		if err := json.Unmarshal(payload, &raw); err != nil {
			continue
		}

		if status, ok := raw["type"]; ok {
			fmt.Printf("[%v]\n", status)
			if status == "ready_to_stop" {
				return
			}
			continue
		}

		printFrame(raw)
	}
}

func printFrame(raw map[string]interface{}) {
	status, _ := raw["status"].(string)
	switch status {
	case "error":
		fmt.Printf("[ERROR] %v\n", raw["error"])
	case "summary":
		if summary, ok := raw["summary"].(map[string]interface{}); ok {
			fmt.Printf("[SUMMARY] %v\n", summary["text"])
		}
	default:
		lines, _ := raw["lines"].([]interface{})
		for _, l := range lines {
			line, ok := l.(map[string]interface{})
			if !ok {
				continue
			}
			if line["is_silence"] == true {
				fmt.Println("  ...silence...")
				continue
			}
			fmt.Printf("  [speaker %v] %v\n", line["speaker"], line["text"])
		}
		if buf, _ := raw["buffer_transcription"].(string); buf != "" {
			fmt.Printf("  (buffer: %s)\n", buf)
		}
	}
}
