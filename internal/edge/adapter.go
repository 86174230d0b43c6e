// Package edge adapts one edge-wire connection's event stream onto a
// Session Controller's calls. It is the per-connection glue: one Adapter,
// one Controller, one edge connection, for the connection's whole
// lifetime. The controller's synthesized audio is written back onto the
// same connection via output callbacks the caller wires directly.
package edge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voicegate/gateway/internal/edgewire"
)

// Controller is the subset of session.Controller the adapter drives.
type Controller interface {
	EnsureRunning()
	NotifyBargeIn()
	EnqueueAudio(pcm16 []byte, srcRateHz int) error
	EndUserTurn()
	Stop()
}

// Adapter dispatches one connection's edge-wire events onto a Controller.
// It does not write the controller's synthesized audio; that is done by the
// output callbacks the caller gives the controller.
type Adapter struct {
	conn       *edgewire.Conn
	controller Controller
	logger     *slog.Logger

	inputRateHz int
}

// NewAdapter builds an Adapter for one accepted connection that drives
// controller. defaultRateHz seeds the input rate used until an audio-start
// event declares one.
func NewAdapter(conn *edgewire.Conn, controller Controller, defaultRateHz int, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{conn: conn, controller: controller, logger: logger, inputRateHz: defaultRateHz}
}

// Run consumes edge-wire events until the connection closes or ctx is
// canceled, dispatching each to the controller. It always stops the
// controller before returning.
func (a *Adapter) Run(ctx context.Context) error {
	defer a.controller.Stop()

	for ev, err := range a.conn.Events() {
		if err != nil {
			return a.handleClose(err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := a.handleEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) handleEvent(ctx context.Context, ev *edgewire.Event) error {
	switch ev.Type {
	case edgewire.TypeDescribe:
		a.logger.Debug("edge: received describe")
		return nil

	case edgewire.TypeAudioStart:
		if ev.Rate > 0 {
			a.inputRateHz = ev.Rate
		}
		a.logger.Debug("edge: audio-start", "rate", a.inputRateHz)

		// Barge-in: if the model is talking, stop forwarding its audio
		// immediately.
		a.controller.NotifyBargeIn()
		a.controller.EnsureRunning()
		return nil

	case edgewire.TypeAudioChunk:
		rate := a.inputRateHz
		if ev.Rate > 0 {
			rate = ev.Rate
		}
		if err := a.controller.EnqueueAudio(ev.Payload, rate); err != nil {
			return fmt.Errorf("edge: enqueue audio: %w", err)
		}
		return nil

	case edgewire.TypeAudioStop:
		a.logger.Debug("edge: audio-stop")
		a.controller.EndUserTurn()
		return nil

	default:
		a.logger.Debug("edge: unhandled event type, closing connection", "type", ev.Type)
		return fmt.Errorf("edge: unhandled event type %q", ev.Type)
	}
}

func (a *Adapter) handleClose(err error) error {
	a.logger.Debug("edge: connection closed", "error", err)
	return err
}
