package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sync"

	"google.golang.org/genai"

	"github.com/agrodost/agrodost/voice"
)

const liveModel = "models/gemini-2.5-flash-native-audio-preview-09-2025"

// DefaultSystemPrompt is the voice assistant's identity.
const DefaultSystemPrompt = `You are an agricultural expert named AgroDost. You help Indian farmers with crop queries, market prices, and weather advice in their native language. Keep answers short and suitable for speech. When asked about market prices, use the GetMarketPrices function for reference data.`

// LiveProxy manages one connection to the Gemini Live API using the
// official SDK. It implements voice.Transport: inbound audio and
// interruption flags are surfaced as typed events, while text, turn
// completion and tool calls are delivered via callbacks for the relay
// path.
type LiveProxy struct {
	client       *genai.Client
	systemPrompt string
	tools        []*genai.Tool

	OnText     func(text string)
	OnComplete func()
	OnToolCall func(functionCalls []*genai.FunctionCall)

	mu      sync.RWMutex
	session *genai.Session
	events  chan voice.Event
	closed  bool
}

// NewLiveProxy creates a proxy. The connection is not opened until
// Connect is called.
func NewLiveProxy(ctx context.Context, apiKey, systemPrompt string, tools []*genai.Tool) (*LiveProxy, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	return &LiveProxy{
		client:       client,
		systemPrompt: systemPrompt,
		tools:        tools,
	}, nil
}

// NewLiveProxyWithClient reuses an existing GenAI client.
func NewLiveProxyWithClient(client *genai.Client, systemPrompt string, tools []*genai.Tool) *LiveProxy {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &LiveProxy{client: client, systemPrompt: systemPrompt, tools: tools}
}

// Connect opens the Live session and starts the receive loop. The
// returned channel delivers an Opened event first, then audio and
// interruption events, and terminates with an Error or Closed event.
func (lp *LiveProxy) Connect(ctx context.Context) (<-chan voice.Event, error) {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if lp.closed {
		return nil, voice.ErrClosed
	}
	if lp.session != nil {
		return nil, fmt.Errorf("live session already connected")
	}

	config := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{"AUDIO"},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: lp.systemPrompt},
			},
		},
		Tools: lp.tools,
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: "Kore",
				},
			},
		},
	}

	session, err := lp.client.Live.Connect(ctx, liveModel, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Live API: %w", err)
	}

	lp.session = session
	lp.events = make(chan voice.Event, 64)
	log.Printf("✅ Connected to Gemini Live via SDK (%s)", liveModel)

	lp.events <- voice.Event{Kind: voice.EventOpened}
	go lp.receive(session)

	return lp.events, nil
}

// receive pumps server messages into the event channel until the
// connection ends.
func (lp *LiveProxy) receive(session *genai.Session) {
	defer close(lp.events)

	for {
		resp, err := session.Receive()
		if err != nil {
			lp.mu.RLock()
			closed := lp.closed
			lp.mu.RUnlock()

			if closed {
				lp.events <- voice.Event{Kind: voice.EventClosed}
			} else {
				log.Printf("❌ Gemini receive error: %v", err)
				lp.events <- voice.Event{Kind: voice.EventError, Err: err}
			}
			return
		}
		lp.handleResponse(resp)
	}
}

func (lp *LiveProxy) handleResponse(resp *genai.LiveServerMessage) {
	if resp.ToolCall != nil && len(resp.ToolCall.FunctionCalls) > 0 {
		if lp.OnToolCall != nil {
			lp.OnToolCall(resp.ToolCall.FunctionCalls)
		}
	}

	if resp.ServerContent == nil {
		return
	}

	// Barge-in: the user started talking over the assistant. Must be
	// handled before any audio in the same message is scheduled.
	if resp.ServerContent.Interrupted {
		lp.events <- voice.Event{Kind: voice.EventInterrupted}
	}

	if resp.ServerContent.ModelTurn != nil {
		for _, part := range resp.ServerContent.ModelTurn.Parts {
			if part.Text != "" && lp.OnText != nil {
				lp.OnText(part.Text)
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				lp.events <- voice.Event{
					Kind:  voice.EventAudio,
					Audio: base64.StdEncoding.EncodeToString(part.InlineData.Data),
				}
			}
		}
	}

	if resp.ServerContent.TurnComplete && lp.OnComplete != nil {
		lp.OnComplete()
	}
}

// SendAudio transmits one base64 frame with its MIME descriptor.
// Implements voice.Transport.
func (lp *LiveProxy) SendAudio(payload string, mimeType string) error {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("invalid base64: %w", err)
	}
	return lp.sendRealtimeInput(data, mimeType)
}

// SendAudioBatch sends complete batched audio followed by a turn end
// marker, for the push-to-talk path.
func (lp *LiveProxy) SendAudioBatch(audioData []byte) error {
	if len(audioData) == 0 {
		return nil
	}
	if err := lp.sendRealtimeInput(audioData, voice.CaptureMIME); err != nil {
		return fmt.Errorf("failed to send audio batch: %w", err)
	}
	return lp.sendTurnComplete()
}

// SendText sends a text turn (useful for smoke testing).
func (lp *LiveProxy) SendText(text string) error {
	session, err := lp.liveSession()
	if err != nil {
		return err
	}

	turnComplete := true
	err = session.SendClientContent(genai.LiveSendClientContentParameters{
		Turns: []*genai.Content{
			{
				Role:  "user",
				Parts: []*genai.Part{{Text: text}},
			},
		},
		TurnComplete: &turnComplete,
	})
	if err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}
	return nil
}

// SendToolResponse sends function call results back to the model.
func (lp *LiveProxy) SendToolResponse(responses []*genai.FunctionResponse) error {
	session, err := lp.liveSession()
	if err != nil {
		return err
	}

	err = session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: responses,
	})
	if err != nil {
		return fmt.Errorf("failed to send tool response: %w", err)
	}
	return nil
}

func (lp *LiveProxy) sendRealtimeInput(data []byte, mimeType string) error {
	session, err := lp.liveSession()
	if err != nil {
		return err
	}

	err = session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			MIMEType: mimeType,
			Data:     data,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	return nil
}

func (lp *LiveProxy) sendTurnComplete() error {
	session, err := lp.liveSession()
	if err != nil {
		return err
	}

	err = session.SendRealtimeInput(genai.LiveRealtimeInput{
		AudioStreamEnd: true,
	})
	if err != nil {
		return fmt.Errorf("failed to send audio stream end: %w", err)
	}
	return nil
}

func (lp *LiveProxy) liveSession() (*genai.Session, error) {
	lp.mu.RLock()
	defer lp.mu.RUnlock()
	if lp.closed || lp.session == nil {
		return nil, voice.ErrClosed
	}
	return lp.session, nil
}

// Close terminates the Live connection. Idempotent.
func (lp *LiveProxy) Close() error {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if lp.closed {
		return nil
	}
	lp.closed = true

	if lp.session != nil {
		return lp.session.Close()
	}
	return nil
}
