package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/voicegate/gateway/internal/audit"
	"github.com/voicegate/gateway/internal/entitycontext"
)

type fakeHomeAssistant struct {
	states     []entitycontext.RawState
	statesErr  error
	lastDomain string
	lastSvc    string
	lastData   map[string]any
	callOK     bool
	callMsg    string
}

func (f *fakeHomeAssistant) GetStates(ctx context.Context) ([]entitycontext.RawState, error) {
	return f.states, f.statesErr
}

func (f *fakeHomeAssistant) CallService(ctx context.Context, domain, service string, data map[string]any) (bool, string) {
	f.lastDomain, f.lastSvc, f.lastData = domain, service, data
	return f.callOK, f.callMsg
}

type fakeJournal struct {
	recorded []audit.ToolInvocation
}

func (f *fakeJournal) Record(inv audit.ToolInvocation) {
	f.recorded = append(f.recorded, inv)
}

func newTestController(ha HomeAssistant) *Controller {
	return newTestControllerWithJournal(ha, nil)
}

func newTestControllerWithJournal(ha HomeAssistant, journal Journal) *Controller {
	return &Controller{
		cfg: Config{
			InputSampleRateHz:        16000,
			OutputSampleRateHz:       16000,
			GeminiOutputSampleRateHz: 24000,
			MaxContextEntities:       200,
		},
		ha:      ha,
		journal: journal,
		logger:  slog.Default(),
		inputCh: make(chan []byte, inputQueueCapacity),
	}
}

func TestExecuteControlHomeAssistantBasic(t *testing.T) {
	ha := &fakeHomeAssistant{callOK: true, callMsg: "ok"}
	c := newTestController(ha)

	ok, msg := c.executeControlHomeAssistant(context.Background(), map[string]any{
		"domain":    "light",
		"service":   "turn_on",
		"entity_id": "light.kitchen",
	})
	if !ok || msg != "ok" {
		t.Fatalf("unexpected result: %v %q", ok, msg)
	}
	if ha.lastDomain != "light" || ha.lastSvc != "turn_on" {
		t.Fatalf("unexpected call: %s/%s", ha.lastDomain, ha.lastSvc)
	}
	if ha.lastData["entity_id"] != "light.kitchen" {
		t.Fatalf("expected entity_id forwarded, got %v", ha.lastData)
	}
}

func TestExecuteControlHomeAssistantMergesServiceDataJSON(t *testing.T) {
	ha := &fakeHomeAssistant{callOK: true, callMsg: "ok"}
	c := newTestController(ha)

	_, _ = c.executeControlHomeAssistant(context.Background(), map[string]any{
		"domain":            "light",
		"service":           "turn_on",
		"entity_id":         "light.kitchen",
		"service_data_json": `{"brightness": 128}`,
	})
	if ha.lastData["brightness"] != float64(128) {
		t.Fatalf("expected brightness merged in, got %v", ha.lastData)
	}
}

func TestExecuteControlHomeAssistantIgnoresMalformedJSON(t *testing.T) {
	ha := &fakeHomeAssistant{callOK: true, callMsg: "ok"}
	c := newTestController(ha)

	ok, _ := c.executeControlHomeAssistant(context.Background(), map[string]any{
		"domain":            "light",
		"service":           "turn_on",
		"service_data_json": `not json`,
	})
	if !ok {
		t.Fatal("expected call to proceed despite malformed service_data_json")
	}
}

func TestExecuteControlHomeAssistantRepairsNearJSON(t *testing.T) {
	ha := &fakeHomeAssistant{callOK: true, callMsg: "ok"}
	c := newTestController(ha)

	_, _ = c.executeControlHomeAssistant(context.Background(), map[string]any{
		"domain":            "light",
		"service":           "turn_on",
		"entity_id":         "light.kitchen",
		"service_data_json": `{brightness: 128,}`,
	})
	if ha.lastData["brightness"] != float64(128) {
		t.Fatalf("expected brightness recovered via jsonrepair, got %v", ha.lastData)
	}
}

func TestPushInputDropsOldestWhenFull(t *testing.T) {
	c := newTestController(&fakeHomeAssistant{})
	for i := 0; i < inputQueueCapacity; i++ {
		c.pushInput([]byte{byte(i)})
	}
	c.pushInput([]byte{99})

	if len(c.inputCh) != inputQueueCapacity {
		t.Fatalf("expected queue to stay at capacity %d, got %d", inputQueueCapacity, len(c.inputCh))
	}

	first := <-c.inputCh
	if first[0] == 0 {
		t.Fatal("expected oldest chunk to have been dropped")
	}
}

func TestIsGracefulClose(t *testing.T) {
	if !isGracefulClose(io.EOF) {
		t.Fatal("expected io.EOF to be treated as graceful")
	}
	if !isGracefulClose(errors.New("websocket: ConnectionClosedOK")) {
		t.Fatal("expected ConnectionClosedOK substring to be treated as graceful")
	}
	if isGracefulClose(errors.New("network unreachable")) {
		t.Fatal("expected unrelated error not to be treated as graceful")
	}
}

func TestExecuteControlHomeAssistantRecordsToJournal(t *testing.T) {
	ha := &fakeHomeAssistant{callOK: true, callMsg: "ok"}
	j := &fakeJournal{}
	c := newTestControllerWithJournal(ha, j)

	_, _ = c.executeControlHomeAssistant(context.Background(), map[string]any{
		"domain":    "light",
		"service":   "turn_on",
		"entity_id": "light.kitchen",
	})

	if len(j.recorded) != 1 {
		t.Fatalf("expected 1 recorded invocation, got %d", len(j.recorded))
	}
	inv := j.recorded[0]
	if inv.Domain != "light" || inv.Service != "turn_on" || inv.EntityID != "light.kitchen" || !inv.OK || inv.Result != "ok" {
		t.Fatalf("unexpected recorded invocation: %+v", inv)
	}
	if inv.TimestampUnixNano == 0 {
		t.Fatal("expected a non-zero timestamp")
	}
}

func TestExecuteControlHomeAssistantSkipsJournalWhenNil(t *testing.T) {
	ha := &fakeHomeAssistant{callOK: true, callMsg: "ok"}
	c := newTestController(ha)

	ok, _ := c.executeControlHomeAssistant(context.Background(), map[string]any{
		"domain":  "light",
		"service": "turn_on",
	})
	if !ok {
		t.Fatal("expected call to succeed with a nil journal")
	}
}

func TestBuildEntityContextFallsBackOnError(t *testing.T) {
	ha := &fakeHomeAssistant{statesErr: errors.New("boom")}
	c := newTestController(ha)

	lines, err := c.buildEntityContext(context.Background())
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if len(lines) != 1 || lines[0] != "(Could not fetch Home Assistant entity list.)" {
		t.Fatalf("unexpected fallback lines: %v", lines)
	}
}
