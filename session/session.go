package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/agrodost/agrodost/functions"
	"github.com/agrodost/agrodost/gemini"
	"github.com/agrodost/agrodost/messages"
	"github.com/agrodost/agrodost/voice"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
)

// ClientSession represents a single user's connection
type ClientSession struct {
	ID           string
	ClientConn   *websocket.Conn
	Proxy        *gemini.LiveProxy
	AudioBuffer  *AudioBuffer // Buffer for incoming audio chunks
	CreatedAt    time.Time
	LastActivity time.Time
	keepAlive    time.Duration

	// Use channels for non-blocking writes
	writeChan chan any

	mu        sync.RWMutex
	closed    bool
	CloseChan chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClientSession creates a session with a Gemini Live connection
func NewClientSession(ctx context.Context, id string, clientConn *websocket.Conn, geminiKey string, systemPrompt string, maxBufferSize int, keepAlive time.Duration, tools []*genai.Tool) (*ClientSession, error) {
	proxy, err := gemini.NewLiveProxy(ctx, geminiKey, systemPrompt, tools)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini proxy: %w", err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())

	// Configure WebSocket for better performance
	clientConn.SetReadLimit(512 * 1024) // 512KB max message
	clientConn.EnableWriteCompression(true)
	clientConn.SetCompressionLevel(6)

	session := &ClientSession{
		ID:           id,
		ClientConn:   clientConn,
		Proxy:        proxy,
		AudioBuffer:  NewAudioBuffer(maxBufferSize),
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
		keepAlive:    keepAlive,
		writeChan:    make(chan any, writeBufferSize),
		CloseChan:    make(chan struct{}),
		ctx:          sessionCtx,
		cancel:       cancel,
	}

	return session, nil
}

// Start opens the Gemini Live connection and begins the bidirectional
// message handling
func (cs *ClientSession) Start() error {
	cs.setupGeminiCallbacks()

	events, err := cs.Proxy.Connect(cs.ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to Gemini: %w", err)
	}

	go cs.writePump()
	go cs.relayGeminiEvents(events)
	go cs.handleClientMessages()
	return nil
}

// setupGeminiCallbacks wires the non-audio callbacks to client messages
func (cs *ClientSession) setupGeminiCallbacks() {
	cs.Proxy.OnText = func(text string) {
		cs.queueMessage(messages.NewTextMessage(cs.ID, text))
	}

	cs.Proxy.OnComplete = func() {
		cs.queueMessage(messages.NewStatusMessage(cs.ID, "turn_complete", ""))
	}

	cs.Proxy.OnToolCall = func(functionCalls []*genai.FunctionCall) {
		cs.handleToolCalls(functionCalls)
	}
}

// relayGeminiEvents forwards transport events to the client until the
// Gemini connection ends
func (cs *ClientSession) relayGeminiEvents(events <-chan voice.Event) {
	for ev := range events {
		switch ev.Kind {
		case voice.EventOpened:
			cs.queueMessage(messages.NewStatusMessage(cs.ID, "connected", "Session established"))

		case voice.EventAudio:
			cs.queueMessage(messages.NewAudioMessage(cs.ID, ev.Audio))

		case voice.EventInterrupted:
			// Barge-in: the client must drop every queued playback buffer
			log.Printf("✋ [%s] Gemini interrupted, notifying client", cs.ID[:8])
			cs.queueMessage(messages.NewInterruptedMessage(cs.ID))

		case voice.EventError:
			log.Printf("❌ [%s] Gemini error: %v", cs.ID[:8], ev.Err)
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeGeminiError, ev.Err.Error()))
			cs.Close()
			return

		case voice.EventClosed:
			log.Printf("🔌 [%s] Gemini connection closed", cs.ID[:8])
			cs.Close()
			return
		}
	}
}

// writePump handles all outgoing messages in a single goroutine
func (cs *ClientSession) writePump() {
	keepAlive := cs.keepAlive
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	ticker := time.NewTicker(keepAlive)

	defer func() {
		ticker.Stop()
		// Send close message before exiting
		cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		cs.ClientConn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
	}()

	for {
		select {
		case <-cs.CloseChan:
			return
		case <-ticker.C:
			cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cs.ClientConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, ok := <-cs.writeChan:
			if !ok {
				// Channel closed, exit gracefully
				return
			}

			if err := cs.writeMessage(msg); err != nil {
				return
			}

			n := len(cs.writeChan)
			for i := 0; i < n; i++ {
				select {
				case msg, ok := <-cs.writeChan:
					if !ok {
						return
					}
					if err := cs.writeMessage(msg); err != nil {
						return
					}
				default:
					// No more messages, continue outer loop
				}
			}
		}
	}
}

// writeMessage serializes with sonic and writes a single text frame
func (cs *ClientSession) writeMessage(msg any) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		log.Printf("❌ [%s] Failed to marshal message: %v", cs.ID[:8], err)
		return nil
	}
	cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return cs.ClientConn.WriteMessage(websocket.TextMessage, data)
}

// queueMessage adds a message to the write queue (non-blocking)
func (cs *ClientSession) queueMessage(msg any) {
	cs.mu.RLock()
	closed := cs.closed
	cs.mu.RUnlock()
	if closed {
		return
	}
	select {
	case cs.writeChan <- msg:
		cs.mu.Lock()
		cs.LastActivity = time.Now()
		cs.mu.Unlock()
	default:
		// Queue full, drop message (shouldn't happen with proper sizing)
	}
}

// SendToClient sends a message to the frontend client (legacy, use queueMessage)
func (cs *ClientSession) SendToClient(msg *messages.ServerMessage) error {
	cs.queueMessage(msg)
	return nil
}

// Close terminates the session and cleans up resources
func (cs *ClientSession) Close() error {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return nil
	}
	cs.closed = true
	cs.mu.Unlock()

	cs.cancel()

	// Close the write channel first to stop writePump
	close(cs.writeChan)

	// Signal close (for other goroutines waiting on this)
	close(cs.CloseChan)

	// Clear audio buffer
	if cs.AudioBuffer != nil {
		cs.AudioBuffer.Clear()
	}

	// Close Gemini connection
	if cs.Proxy != nil {
		cs.Proxy.Close()
	}

	// Close client connection - don't write close message as writePump is stopped
	if cs.ClientConn != nil {
		cs.ClientConn.Close()
	}

	return nil
}

func (cs *ClientSession) handleClientMessages() {
	defer cs.Close()

	for {
		select {
		case <-cs.CloseChan:
			return
		default:
			messageType, message, err := cs.ClientConn.ReadMessage()
			if err != nil {
				return
			}

			cs.mu.Lock()
			cs.LastActivity = time.Now()
			cs.mu.Unlock()

			// Handle binary messages (raw PCM audio) - stream straight to Gemini
			if messageType == websocket.BinaryMessage {
				encoded := base64.StdEncoding.EncodeToString(message)
				if err := cs.Proxy.SendAudio(encoded, voice.CaptureMIME); err != nil {
					log.Printf("❌ [%s] Failed to send audio to Gemini: %v", cs.ID[:8], err)
					cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeGeminiError, err.Error()))
				}
				continue
			}

			// Handle text messages (JSON)
			var clientMsg messages.ClientMessage
			if err := sonic.Unmarshal(message, &clientMsg); err != nil {
				cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid message format"))
				continue
			}

			cs.processClientMessage(&clientMsg)
		}
	}
}

func (cs *ClientSession) processClientMessage(msg *messages.ClientMessage) {
	switch msg.Type {
	case "audio":
		var payload messages.AudioPayload
		if err := sonic.Unmarshal(msg.Payload, &payload); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid audio payload"))
			return
		}
		// Validate base64 before buffering
		audioBytes, err := base64.StdEncoding.DecodeString(payload.Data)
		if err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid base64 audio data"))
			return
		}
		if err := cs.AudioBuffer.Append(audioBytes); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeBufferFull,
				fmt.Sprintf("Audio buffer full (max %d bytes)", cs.AudioBuffer.MaxSize())))
		}

	case "control":
		var payload messages.ControlPayload
		if err := sonic.Unmarshal(msg.Payload, &payload); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid control payload"))
			return
		}
		cs.handleControlMessage(&payload)

	default:
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Unknown message type: "+msg.Type))
	}
}

func (cs *ClientSession) handleControlMessage(payload *messages.ControlPayload) {
	switch payload.Action {
	case "ping":
		cs.queueMessage(messages.NewStatusMessage(cs.ID, "pong", ""))
	case "end_turn":
		// Flush buffered audio and send to Gemini as a batch
		cs.handleEndTurn()
	default:
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Unknown control action: "+payload.Action))
	}
}

// handleEndTurn flushes the audio buffer and sends to Gemini
func (cs *ClientSession) handleEndTurn() {
	if cs.AudioBuffer.IsEmpty() {
		log.Printf("⚠️ [%s] end_turn received but buffer is empty, ignoring", cs.ID[:8])
		return
	}
	// Get chunk count before flushing (Flush clears the buffer)
	chunkCount := cs.AudioBuffer.ChunkCount()

	// Flush all buffered audio
	audioData := cs.AudioBuffer.Flush()
	log.Printf("📤 [%s] Sending batch audio to Gemini: %d bytes (%d chunks)", cs.ID[:8], len(audioData), chunkCount)

	if err := cs.Proxy.SendAudioBatch(audioData); err != nil {
		log.Printf("❌ [%s] Failed to send audio to Gemini: %v", cs.ID[:8], err)
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeGeminiError, err.Error()))
	}
}

// IsClosed returns whether the session is closed
func (cs *ClientSession) IsClosed() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.closed
}

// handleToolCalls processes function calls from Gemini and sends responses
func (cs *ClientSession) handleToolCalls(functionCalls []*genai.FunctionCall) {
	var responses []*genai.FunctionResponse

	for _, fc := range functionCalls {
		log.Printf("🔧 [%s] Function call: %s (id: %s)", cs.ID[:8], fc.Name, fc.ID)

		var response map[string]any

		switch fc.Name {
		case "GetMarketPrices":
			prices := functions.GetMarketPrices()
			response = map[string]any{"output": prices}
			log.Printf("🔧 [%s] Returning market price data (%d chars)", cs.ID[:8], len(prices))

		default:
			response = map[string]any{"error": fmt.Sprintf("Unknown function: %s", fc.Name)}
			log.Printf("⚠️ [%s] Unknown function called: %s", cs.ID[:8], fc.Name)
		}

		responses = append(responses, &genai.FunctionResponse{
			ID:       fc.ID,
			Name:     fc.Name,
			Response: response,
		})
	}

	// Send all responses back to Gemini
	if err := cs.Proxy.SendToolResponse(responses); err != nil {
		log.Printf("❌ [%s] Failed to send tool response: %v", cs.ID[:8], err)
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeGeminiError, err.Error()))
	}
}
