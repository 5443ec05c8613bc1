package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"
	"google.golang.org/genai"

	"github.com/agrodost/agrodost/functions"
	"github.com/agrodost/agrodost/gemini"
	"github.com/agrodost/agrodost/voice"
)

// deviceSink plays scheduled audio through the default output device.
// The queue is drained back-to-back by the device callback, so chunks
// appended in schedule order come out gapless.
type deviceSink struct {
	mu    sync.Mutex
	queue []byte
	epoch time.Time
}

func newDeviceSink() *deviceSink {
	return &deviceSink{epoch: time.Now()}
}

func (d *deviceSink) Now() float64 {
	return time.Since(d.epoch).Seconds()
}

func (d *deviceSink) Play(samples []float32, startAt float64) {
	data := voice.PCMBytes(voice.Float32ToPCM(samples))
	d.mu.Lock()
	d.queue = append(d.queue, data...)
	d.mu.Unlock()
}

func (d *deviceSink) Reset() {
	d.mu.Lock()
	d.queue = nil
	d.mu.Unlock()
}

// fill copies queued audio into the device buffer, zero-padding when
// the queue runs dry.
func (d *deviceSink) fill(out []byte) {
	d.mu.Lock()
	n := copy(out, d.queue)
	d.queue = d.queue[n:]
	d.mu.Unlock()

	for i := n; i < len(out); i++ {
		out[i] = 0
	}
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal("Error: GEMINI_API_KEY must be set.")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tools := []*genai.Tool{
		{
			FunctionDeclarations: []*genai.FunctionDeclaration{
				functions.GetMarketPricesFunctionDeclaration(),
			},
		},
	}

	proxy, err := gemini.NewLiveProxy(ctx, apiKey, gemini.DefaultSystemPrompt, tools)
	if err != nil {
		log.Fatalf("Failed to create Gemini proxy: %v", err)
	}
	proxy.OnText = func(text string) {
		fmt.Printf("📝 %s\n", text)
	}
	proxy.OnComplete = func() {
		fmt.Println("✅ Turn complete")
	}
	proxy.OnToolCall = func(calls []*genai.FunctionCall) {
		var responses []*genai.FunctionResponse
		for _, fc := range calls {
			fmt.Printf("🔧 Function call: %s\n", fc.Name)
			response := map[string]any{"error": "Unknown function: " + fc.Name}
			if fc.Name == "GetMarketPrices" {
				response = map[string]any{"output": functions.GetMarketPrices()}
			}
			responses = append(responses, &genai.FunctionResponse{
				ID:       fc.ID,
				Name:     fc.Name,
				Response: response,
			})
		}
		if err := proxy.SendToolResponse(responses); err != nil {
			log.Printf("❌ Failed to send tool response: %v", err)
		}
	}

	pipeline := voice.NewPipeline(64)
	sink := newDeviceSink()

	sess := voice.NewSession(pipeline, proxy, sink)
	sess.OnStateChange = func(state voice.State) {
		fmt.Printf("🔄 Session state: %s\n", state)
	}

	// Audio engine
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer mctx.Uninit()

	// Capture device: 16kHz mono PCM16 into the pipeline
	captureConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	captureConfig.Capture.Format = malgo.FormatS16
	captureConfig.Capture.Channels = 1
	captureConfig.SampleRate = voice.CaptureRate
	captureConfig.Alsa.NoMMap = 1 // Better compatibility on some systems

	captureDevice, err := malgo.InitDevice(mctx.Context, captureConfig, malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			if pInput != nil {
				pipeline.PushPCM(pInput)
			}
		},
	})
	if err != nil {
		log.Fatal(err)
	}
	defer captureDevice.Uninit()

	// Playback device: 24kHz mono PCM16 from the scheduled queue
	playbackConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	playbackConfig.Playback.Format = malgo.FormatS16
	playbackConfig.Playback.Channels = 1
	playbackConfig.SampleRate = voice.PlaybackRate
	playbackConfig.Alsa.NoMMap = 1

	playbackDevice, err := malgo.InitDevice(mctx.Context, playbackConfig, malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			if pOutput != nil {
				sink.fill(pOutput)
			}
		},
	})
	if err != nil {
		log.Fatal(err)
	}
	defer playbackDevice.Uninit()

	if err := sess.Start(ctx); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	defer sess.Stop()

	if err := captureDevice.Start(); err != nil {
		log.Fatal(err)
	}
	if err := playbackDevice.Start(); err != nil {
		log.Fatal(err)
	}

	fmt.Println("🎙️ AgroDost voice agent started. Listening to microphone...")
	fmt.Println("Press Ctrl+C to exit")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Printf("\nShutting down...\n")
}
