package metrics

import (
	"context"
	"encoding/hex"
	"time"
)

// SessionObserver provides observability hooks for an SKDP duplex session.
// Attach one to a Connection's handshake and send/receive path to
// automatically record metrics and traces. Grounded on the teacher's
// tunnel observer, renamed for SKDP's handshake/session lifecycle
// (spec §4, §4.6) in place of tunnel/KEM-rekey terms.
type SessionObserver struct {
	collector *Collector
	tracer    Tracer
	logger    *Logger
	kid       string
	role      string
}

// SessionObserverConfig configures a session observer.
type SessionObserverConfig struct {
	Collector *Collector
	Tracer    Tracer
	Logger    *Logger
	KID       []byte
	Role      string // "initiator" or "responder"
}

// NewSessionObserver creates a new session observer.
func NewSessionObserver(cfg SessionObserverConfig) *SessionObserver {
	if cfg.Collector == nil {
		cfg.Collector = Global()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = GetTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}

	kid := ""
	if len(cfg.KID) > 0 {
		kid = hex.EncodeToString(cfg.KID[:min(8, len(cfg.KID))])
	}

	return &SessionObserver{
		collector: cfg.Collector,
		tracer:    cfg.Tracer,
		logger: cfg.Logger.Named("session").With(Fields{
			"kid":  kid,
			"role": cfg.Role,
		}),
		kid:  kid,
		role: cfg.Role,
	}
}

// OnSessionStart should be called when a handshake produces an established session.
func (o *SessionObserver) OnSessionStart() {
	o.collector.SessionStarted()
	o.logger.Info("session established")
}

// OnSessionEnd should be called when a session closes.
func (o *SessionObserver) OnSessionEnd() {
	o.collector.SessionEnded()
	o.logger.Info("session closed")
}

// OnSessionFailed should be called when the handshake fails before a session
// is established (spec §8, e.g. unknown device, expired key, proof mismatch).
func (o *SessionObserver) OnSessionFailed(err error) {
	o.collector.SessionFailed()
	o.logger.Error("handshake failed", Fields{"error": err.Error()})
}

// OnHandshakeStart returns a context and completion function for handshake tracing.
func (o *SessionObserver) OnHandshakeStart(ctx context.Context) (context.Context, func(error)) {
	spanName := SpanHandshakeInitiator
	if o.role == "responder" {
		spanName = SpanHandshakeResponder
	}

	start := time.Now()
	ctx, endSpan := o.tracer.StartSpan(ctx, spanName, WithSpanKind(SpanKindServer))

	o.logger.Debug("handshake started")

	return ctx, func(err error) {
		duration := time.Since(start)
		o.collector.RecordHandshakeLatency(duration)

		if err != nil {
			o.logger.Error("handshake failed", Fields{
				"error":    err.Error(),
				"duration": duration.String(),
			})
		} else {
			o.logger.Info("handshake completed", Fields{
				"duration": duration.String(),
			})
		}

		endSpan(err)
	}
}

// OnSend records a packet-send operation (spec §4.6 Session.Send).
func (o *SessionObserver) OnSend(ctx context.Context, plaintextLen int) (context.Context, func(error)) {
	start := time.Now()
	ctx, endSpan := o.tracer.StartSpan(ctx, SpanEncrypt)

	return ctx, func(err error) {
		duration := time.Since(start)
		o.collector.RecordEncryptLatency(duration)

		if err != nil {
			o.collector.RecordEncryptError()
			o.logger.Debug("send failed", Fields{"error": err.Error()})
		} else {
			o.collector.RecordBytesSent(uint64(plaintextLen))
			o.collector.RecordPacketSent()
		}

		endSpan(err)
	}
}

// OnReceive records a packet-receive operation (spec §4.6 Session.Receive).
func (o *SessionObserver) OnReceive(ctx context.Context, ciphertextLen int) (context.Context, func(error)) {
	start := time.Now()
	ctx, endSpan := o.tracer.StartSpan(ctx, SpanDecrypt)

	return ctx, func(err error) {
		duration := time.Since(start)
		o.collector.RecordDecryptLatency(duration)

		if err != nil {
			o.collector.RecordDecryptError()
			o.logger.Debug("receive failed", Fields{"error": err.Error()})
		} else {
			o.collector.RecordBytesReceived(uint64(ciphertextLen))
			o.collector.RecordPacketReceived()
		}

		endSpan(err)
	}
}

// OnReplayDetected records a rejected out-of-order/replayed sequence number
// (spec §4.6, strict seq == rxseq equality).
func (o *SessionObserver) OnReplayDetected() {
	o.collector.RecordReplayBlocked()
	o.logger.Warn("replay or out-of-order packet rejected")
}

// OnAuthFailure records a handshake proof mismatch (spec §4.2/§8).
func (o *SessionObserver) OnAuthFailure() {
	o.collector.RecordAuthFailure()
	o.logger.Warn("authentication failed")
}

// OnRekey records the channel cipher's deterministic byte-threshold rekey
// (spec §4.4). Unlike the teacher's KEM rekey, this never fails and carries
// no round trip, so there is no separate start/end pair, just the event.
func (o *SessionObserver) OnRekey() {
	o.collector.RecordRekeyCompleted()
	o.logger.Debug("channel rekeyed")
}

// OnProtocolError records a protocol error.
func (o *SessionObserver) OnProtocolError(err error) {
	o.collector.RecordProtocolError()
	o.logger.Error("protocol error", Fields{"error": err.Error()})
}

// Logger returns the observer's logger for custom logging.
func (o *SessionObserver) Logger() *Logger {
	return o.logger
}

// --- Event Types ---

// EventType represents a type of session event for logging.
type EventType string

const (
	EventSessionStart   EventType = "session.start"
	EventSessionEnd     EventType = "session.end"
	EventSessionFailed  EventType = "session.failed"
	EventHandshakeStart EventType = "handshake.start"
	EventHandshakeEnd   EventType = "handshake.end"
	EventDataSent       EventType = "data.sent"
	EventDataReceived   EventType = "data.received"
	EventRekey          EventType = "rekey"
	EventReplayBlocked  EventType = "security.replay_blocked"
	EventAuthFailed     EventType = "security.auth_failed"
	EventError          EventType = "error"
)

// Event represents a structured session event.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	KID       string                 `json:"kid,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// min returns the smaller of two integers.
func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
