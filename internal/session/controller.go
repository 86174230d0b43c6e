// Package session maintains the long-lived Gemini Live session for one
// edge connection: it streams user audio in, streams model audio back out,
// and executes the model's smart-home tool calls.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"google.golang.org/genai"

	"github.com/voicegate/gateway/internal/audiocodec"
	"github.com/voicegate/gateway/internal/audit"
	"github.com/voicegate/gateway/internal/entitycontext"
)

// Journal records executed tool calls for operator diagnostics. A nil
// Journal (or audit.Journal's own disabled zero-behavior) is fine: this is
// a side channel, never a hard dependency of the session.
type Journal interface {
	Record(inv audit.ToolInvocation)
}

// inputQueueCapacity bounds the pending-audio queue. Once full, the oldest
// chunk is dropped to keep latency low rather than blocking the caller.
const inputQueueCapacity = 50

// HomeAssistant is the subset of a Home Assistant-shaped REST client the
// controller needs: fetching context and executing tool calls.
type HomeAssistant interface {
	GetStates(ctx context.Context) ([]entitycontext.RawState, error)
	CallService(ctx context.Context, domain, service string, data map[string]any) (bool, string)
}

// OutputCallbacks receive the model's synthesized audio as it streams out.
type OutputCallbacks struct {
	OnStart func(rateHz int) error
	OnChunk func(pcm16 []byte, rateHz int) error
	OnStop  func() error
}

// Config is the subset of the gateway's settings the controller needs.
type Config struct {
	GeminiAPIKey     string
	GeminiAPIVersion string
	Model            string

	InputSampleRateHz        int
	OutputSampleRateHz       int
	GeminiOutputSampleRateHz int

	SilenceTailMs  int
	AudioChunkSize int

	AllowedDomains     []string
	EntityAllowlist    []string
	EntityBlocklist    []string
	MaxContextEntities int
}

// Controller maintains a Gemini Live session and streams audio in/out for
// the lifetime of ctx (typically one edge connection). Call Stop when the
// connection closes.
type Controller struct {
	ctx     context.Context
	cfg     Config
	ha      HomeAssistant
	out     OutputCallbacks
	journal Journal
	logger  *slog.Logger

	client *genai.Client

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	inputCh chan []byte

	bargeIn          atomic.Bool
	outputStreamOpen atomic.Bool
}

// New builds a Controller bound to ctx's lifetime. journal may be nil.
func New(ctx context.Context, cfg Config, ha HomeAssistant, out OutputCallbacks, journal Journal, logger *slog.Logger) (*Controller, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.GeminiAPIKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: cfg.GeminiAPIVersion},
	})
	if err != nil {
		return nil, fmt.Errorf("session: build genai client: %w", err)
	}

	return &Controller{
		ctx:     ctx,
		cfg:     cfg,
		ha:      ha,
		out:     out,
		journal: journal,
		logger:  logger,
		client:  client,
		inputCh: make(chan []byte, inputQueueCapacity),
	}, nil
}

// Running reports whether the session task is currently active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// EnsureRunning starts the session task if it is not already running. It
// is idempotent and safe to call from any goroutine.
func (c *Controller) EnsureRunning() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}

	runCtx, cancel := context.WithCancel(c.ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.run(runCtx)
}

// Stop cancels the session task and waits for it to finish.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

// NotifyBargeIn marks that the user has started talking, so any audio the
// model is currently streaming out stops being forwarded.
func (c *Controller) NotifyBargeIn() {
	c.bargeIn.Store(true)
}

// EnqueueAudio queues PCM16 audio to send to Gemini, resampling to the
// configured input rate first if needed.
func (c *Controller) EnqueueAudio(pcm16 []byte, srcRateHz int) error {
	c.EnsureRunning()
	c.bargeIn.Store(false) // the user is speaking; let the model interrupt itself

	if srcRateHz != c.cfg.InputSampleRateHz {
		resampled, err := audiocodec.Resample(pcm16, srcRateHz, c.cfg.InputSampleRateHz)
		if err != nil {
			return fmt.Errorf("session: resample input audio: %w", err)
		}
		pcm16 = resampled
	}

	c.pushInput(pcm16)
	return nil
}

// EndUserTurn sends a short silence tail so the Live API's own VAD closes
// the user's turn.
func (c *Controller) EndUserTurn() {
	c.EnsureRunning()
	for _, chunk := range audiocodec.SilenceChunks(c.cfg.SilenceTailMs, c.cfg.InputSampleRateHz, c.cfg.AudioChunkSize) {
		c.pushInput(chunk)
	}
}

// pushInput is a non-blocking bounded-FIFO push: if the queue is full, the
// oldest chunk is dropped to make room.
func (c *Controller) pushInput(chunk []byte) {
	select {
	case c.inputCh <- chunk:
		return
	default:
	}
	select {
	case <-c.inputCh:
	default:
	}
	select {
	case c.inputCh <- chunk:
	default:
	}
}

func (c *Controller) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		close(c.done)
		c.mu.Unlock()

		if c.outputStreamOpen.Load() {
			if err := c.out.OnStop(); err != nil {
				c.logger.Warn("session: on_stop callback failed during shutdown", "error", err)
			}
			c.outputStreamOpen.Store(false)
		}
	}()

	if c.cfg.GeminiAPIKey == "" {
		c.logger.Error("session: GEMINI_API_KEY is not set; cannot start live session")
		return
	}

	entityLines, err := c.buildEntityContext(ctx)
	if err != nil {
		c.logger.Warn("session: failed to fetch home assistant entity context", "error", err)
	}
	systemPrompt := buildSystemPrompt(entityLines)

	model := c.cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	liveConfig := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		Tools:              buildTools(),
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: "Zephyr"},
			},
		},
		SystemInstruction: &genai.Content{
			Role:  "user",
			Parts: []*genai.Part{genai.NewPartFromText(systemPrompt)},
		},
	}

	c.logger.Info("session: connecting to gemini live", "model", model)

	liveSession, err := c.client.Live.Connect(ctx, model, liveConfig)
	if err != nil {
		c.logger.Error("session: connect failed", "error", err)
		return
	}
	defer liveSession.Close()

	go func() {
		<-ctx.Done()
		liveSession.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.sendLoop(ctx, liveSession) }()
	go func() { defer wg.Done(); c.recvLoop(ctx, liveSession) }()
	wg.Wait()
}

// sendLoop drains the input queue and forwards chunks to Gemini.
func (c *Controller) sendLoop(ctx context.Context, sess *genai.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk := <-c.inputCh:
			err := sess.SendRealtimeInput(genai.LiveRealtimeInput{
				Media: &genai.Blob{Data: chunk, MIMEType: "audio/pcm"},
			})
			if err != nil {
				c.logger.Warn("session: send realtime input failed", "error", err)
				return
			}
		}
	}
}

// recvLoop receives turns from Gemini and forwards audio and tool calls.
func (c *Controller) recvLoop(ctx context.Context, sess *genai.Session) {
	for {
		c.bargeIn.Store(false) // reset at the start of each model turn

		err := c.receiveTurn(ctx, sess)
		if err == nil {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}

		if isGracefulClose(err) {
			c.logger.Info("session: gemini connection closed gracefully")
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		c.logger.Error("session: receive loop failed", "error", err)
		return
	}
}

// receiveTurn consumes server messages until the turn completes.
func (c *Controller) receiveTurn(ctx context.Context, sess *genai.Session) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := sess.Receive()
		if err != nil {
			return err
		}

		if err := c.handleServerMessage(ctx, sess, msg); err != nil {
			return err
		}

		if sc := msg.ServerContent; sc != nil && sc.TurnComplete {
			if c.outputStreamOpen.Load() {
				if err := c.out.OnStop(); err != nil {
					c.logger.Warn("session: on_stop callback failed", "error", err)
				}
				c.outputStreamOpen.Store(false)
			}
			return nil
		}
	}
}

func (c *Controller) handleServerMessage(ctx context.Context, sess *genai.Session, msg *genai.LiveServerMessage) error {
	if sc := msg.ServerContent; sc != nil && sc.Interrupted {
		c.bargeIn.Store(true)
	}

	if audio := extractAudio(msg); len(audio) > 0 {
		if c.bargeIn.Load() {
			// The user started talking; stop forwarding the model's speech.
			return nil
		}

		if !c.outputStreamOpen.Load() {
			if err := c.out.OnStart(c.cfg.OutputSampleRateHz); err != nil {
				return fmt.Errorf("session: on_start callback: %w", err)
			}
			c.outputStreamOpen.Store(true)
		}

		pcmOut, err := audiocodec.Resample(audio, c.cfg.GeminiOutputSampleRateHz, c.cfg.OutputSampleRateHz)
		if err != nil {
			return fmt.Errorf("session: resample model audio: %w", err)
		}
		if err := c.out.OnChunk(pcmOut, c.cfg.OutputSampleRateHz); err != nil {
			return fmt.Errorf("session: on_chunk callback: %w", err)
		}
	}

	if tc := msg.ToolCall; tc != nil && len(tc.FunctionCalls) > 0 {
		c.handleToolCalls(ctx, sess, tc.FunctionCalls)
	}

	return nil
}

func extractAudio(msg *genai.LiveServerMessage) []byte {
	sc := msg.ServerContent
	if sc == nil || sc.ModelTurn == nil {
		return nil
	}
	for _, part := range sc.ModelTurn.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data
		}
	}
	return nil
}

func (c *Controller) handleToolCalls(ctx context.Context, sess *genai.Session, calls []*genai.FunctionCall) {
	responses := make([]*genai.FunctionResponse, 0, len(calls))

	for _, fc := range calls {
		if fc.Name != controlHomeAssistantTool {
			name := fc.Name
			if name == "" {
				name = "unknown"
			}
			responses = append(responses, &genai.FunctionResponse{
				ID:       fc.ID,
				Name:     name,
				Response: map[string]any{"ok": false, "error": "Unknown tool"},
			})
			continue
		}

		ok, result := c.executeControlHomeAssistant(ctx, fc.Args)
		responses = append(responses, &genai.FunctionResponse{
			ID:       fc.ID,
			Name:     controlHomeAssistantTool,
			Response: map[string]any{"ok": ok, "result": result},
		})
	}

	if len(responses) == 0 {
		return
	}
	if err := sess.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: responses}); err != nil {
		c.logger.Warn("session: send tool response failed", "error", err)
	}
}

func (c *Controller) executeControlHomeAssistant(ctx context.Context, args map[string]any) (bool, string) {
	domain, _ := args["domain"].(string)
	service, _ := args["service"].(string)
	entityID, _ := args["entity_id"].(string)
	serviceDataJSON, _ := args["service_data_json"].(string)

	domain = strings.TrimSpace(domain)
	service = strings.TrimSpace(service)
	entityID = strings.TrimSpace(entityID)

	data := map[string]any{}
	if entityID != "" {
		data["entity_id"] = entityID
	}

	if strings.TrimSpace(serviceDataJSON) != "" {
		if extra, err := unmarshalServiceData(serviceDataJSON); err == nil {
			for k, v := range extra {
				data[k] = v
			}
		}
		// Malformed, unrepairable JSON is not a call failure; it is simply
		// ignored, matching the original's leniency here.
	}

	ok, result := c.ha.CallService(ctx, domain, service, data)

	if c.journal != nil {
		c.journal.Record(audit.ToolInvocation{
			Domain:            domain,
			Service:           service,
			EntityID:          entityID,
			OK:                ok,
			Result:            result,
			TimestampUnixNano: time.Now().UnixNano(),
		})
	}

	return ok, result
}

// unmarshalServiceData parses a model-supplied service_data_json argument,
// attempting a repair pass first: models occasionally emit near-JSON
// (trailing commas, unquoted keys) that a strict decoder rejects outright.
func unmarshalServiceData(raw string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err == nil {
		return data, nil
	}

	fixed, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fixed), &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Controller) buildEntityContext(ctx context.Context) ([]string, error) {
	states, err := c.ha.GetStates(ctx)
	if err != nil {
		return []string{"(Could not fetch Home Assistant entity list.)"}, err
	}
	return entitycontext.BuildContextLines(states, c.cfg.AllowedDomains, c.cfg.EntityAllowlist, c.cfg.EntityBlocklist, c.cfg.MaxContextEntities), nil
}

// isGracefulClose reports whether err represents the remote end closing
// the Live session normally, mirroring the "type name contains
// ConnectionClosedOK" check the original implementation used to avoid a
// direct dependency on the underlying websocket library's error types.
func isGracefulClose(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "ConnectionClosedOK") || strings.Contains(msg, "use of closed network connection")
}
