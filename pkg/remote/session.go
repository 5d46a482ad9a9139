package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/loom"
	"github.com/loomui/loom/pkg/protocol"
)

// Session binds one client to one root. The root renders against a wire
// backend; every commit's mutations are drained into a numbered patch batch
// and shipped as a frame. Incoming event frames resolve to handler props and
// are dispatched onto the root's loop.
//
// A session outlives its connection: on disconnect it detaches and stays
// resumable until its window expires, replaying unacknowledged batches when
// the client returns.
type Session struct {
	ID string

	root    *loom.Root
	backend *wireBackend
	app     func() *element.Element

	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	cfg     *Config

	// conn and the outbound pump are swapped on resume; connMu covers them.
	connMu   sync.Mutex
	conn     *websocket.Conn
	outbound chan []byte
	connDone chan struct{}

	mu         sync.Mutex
	mounted    bool
	closed     bool
	detachedAt time.Time
	lastActive time.Time

	// retained holds batches the client has not acked yet, oldest first.
	retained []*protocol.PatchBatch

	onClose func(*Session)
}

func newSession(id string, cfg *Config, logger *slog.Logger, metrics *Metrics, tracer trace.Tracer) *Session {
	s := &Session{
		ID:         id,
		app:        cfg.App,
		logger:     logger.With("session", id),
		metrics:    metrics,
		tracer:     tracer,
		cfg:        cfg,
		lastActive: time.Now(),
	}
	s.backend = newWireBackend(s.fatal)
	s.root = loom.New(s.backend, loom.WithLogger(s.logger))
	return s
}

// fatal receives engine errors no boundary absorbed. The tree is already
// torn down; tell the client and drop the connection.
func (s *Session) fatal(err error) {
	s.logger.Error("unrecoverable render error", "error", err)
	s.metrics.WireErrors.WithLabelValues("fatal").Inc()
	s.sendError("E004", err.Error(), 0)
	s.Close()
}

// attach wires a fresh connection to the session and blocks in the read
// loop until the connection drops. ackedSeq is what the client claims to
// have applied; anything newer is replayed first.
func (s *Session) attach(conn *websocket.Conn, ackedSeq uint64, resumed bool) {
	s.connMu.Lock()
	s.conn = conn
	s.outbound = make(chan []byte, 64)
	s.connDone = make(chan struct{})
	out, done := s.outbound, s.connDone
	s.connMu.Unlock()

	go s.writeLoop(conn, out, done)

	if resumed {
		s.ackUpTo(ackedSeq)
		s.replayRetained()
	} else {
		if err := s.mount(); err != nil {
			s.sendError("E004", err.Error(), 0)
			s.Close()
			return
		}
	}
	s.flush(0)
	s.readLoop(conn)
}

func (s *Session) mount() error {
	s.mu.Lock()
	if s.mounted {
		s.mu.Unlock()
		return nil
	}
	s.mounted = true
	s.mu.Unlock()
	return s.root.Mount(s.app())
}

// readLoop decodes inbound frames until the connection fails.
func (s *Session) readLoop(conn *websocket.Conn) {
	defer s.detach(conn)
	for {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				s.logger.Error("read failed", "error", err)
			}
			return
		}
		s.touch()

		frame, err := protocol.DecodeFrame(msg)
		if err != nil {
			s.metrics.WireErrors.WithLabelValues("bad_frame").Inc()
			s.logger.Warn("undecodable frame", "error", err)
			continue
		}
		switch frame.Type {
		case protocol.FrameEvent:
			s.handleEventFrame(frame.Payload)
		case protocol.FrameAck:
			s.handleAckFrame(frame.Payload)
		case protocol.FrameControl:
			s.handleControlFrame(frame.Payload)
		default:
			s.metrics.WireErrors.WithLabelValues("unexpected_frame").Inc()
			s.logger.Warn("unexpected frame type", "type", frame.Type.String())
		}
	}
}

// writeLoop pumps encoded frames and keepalive pings onto the connection.
// It also polls for batches committed outside an event dispatch (suspense
// retries, transitions finishing on their own).
func (s *Session) writeLoop(conn *websocket.Conn, out <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	flushTicker := time.NewTicker(s.cfg.FlushInterval)
	defer flushTicker.Stop()
	for {
		select {
		case <-flushTicker.C:
			s.flush(0)
		case msg := <-out:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				s.logger.Warn("write failed", "error", err)
				conn.Close()
				return
			}
		case <-ticker.C:
			data, err := protocol.Ping().Frame().Encode()
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Session) handleEventFrame(payload []byte) {
	ev, err := protocol.DecodeEvent(payload)
	if err != nil {
		s.metrics.WireErrors.WithLabelValues("bad_event").Inc()
		s.sendError("", "invalid event frame", 0)
		return
	}

	ctx, span := s.tracer.Start(context.Background(), "loom.event",
		trace.WithAttributes(
			attribute.Int64("loom.node", int64(ev.Node)),
			attribute.String("loom.prop", ev.Prop),
		))
	defer span.End()
	_ = ctx

	start := time.Now()
	handler := s.backend.Handler(ev.Node, ev.Prop)
	if handler == nil {
		s.metrics.WireErrors.WithLabelValues("unknown_handler").Inc()
		span.SetStatus(codes.Error, "unknown handler")
		s.sendError("", fmt.Sprintf("no handler %q on node %d", ev.Prop, ev.Node), ev.Seq)
		return
	}

	s.root.Dispatch(func() {
		switch fn := handler.(type) {
		case func():
			fn()
		case func(element.Props):
			fn(element.Props(ev.Payload))
		default:
			s.metrics.WireErrors.WithLabelValues("bad_handler").Inc()
			span.SetStatus(codes.Error, "unsupported handler signature")
		}
	})
	s.flush(ev.Seq)

	s.metrics.EventsTotal.WithLabelValues(ev.Prop).Inc()
	s.metrics.EventDuration.Observe(time.Since(start).Seconds())
}

func (s *Session) handleAckFrame(payload []byte) {
	ack, err := protocol.DecodeAck(payload)
	if err != nil {
		s.metrics.WireErrors.WithLabelValues("bad_ack").Inc()
		return
	}
	s.ackUpTo(ack.Seq)
}

func (s *Session) handleControlFrame(payload []byte) {
	c, err := protocol.DecodeControl(payload)
	if err != nil {
		s.metrics.WireErrors.WithLabelValues("bad_control").Inc()
		return
	}
	switch c.Op {
	case protocol.ControlPing:
		if data, err := c.Pong().Frame().Encode(); err == nil {
			s.send(data)
		}
	case protocol.ControlPong:
		// Keepalive answered; activity already touched on read.
	case protocol.ControlShutdown:
		s.Close()
	}
}

// flush drains the backend's buffered mutations into a batch, retains it
// for resume, and ships it. eventSeq only feeds the error path.
func (s *Session) flush(eventSeq uint64) {
	batch := s.backend.TakeBatch()
	if batch == nil {
		return
	}
	s.mu.Lock()
	s.retained = append(s.retained, batch)
	if len(s.retained) > s.cfg.MaxRetainedBatches {
		// Client is not acking; drop from the front. Resume past this
		// point will fail and fall back to a fresh session.
		s.retained = s.retained[1:]
	}
	s.mu.Unlock()

	frame, err := batch.Frame(0)
	if err != nil {
		s.metrics.WireErrors.WithLabelValues("encode").Inc()
		s.sendError("", err.Error(), eventSeq)
		return
	}
	data, err := frame.Encode()
	if err != nil {
		s.metrics.WireErrors.WithLabelValues("encode").Inc()
		return
	}
	s.send(data)
	s.metrics.PatchesSent.Add(float64(len(batch.Patches)))
	s.metrics.PatchBytes.Add(float64(len(data)))
}

// replayRetained resends every unacked batch after a resume.
func (s *Session) replayRetained() {
	s.mu.Lock()
	batches := append([]*protocol.PatchBatch(nil), s.retained...)
	s.mu.Unlock()
	for _, b := range batches {
		frame, err := b.Frame(protocol.FlagResumed)
		if err != nil {
			continue
		}
		if data, err := frame.Encode(); err == nil {
			s.send(data)
		}
	}
}

func (s *Session) ackUpTo(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.retained) > 0 && s.retained[0].Seq <= seq {
		s.retained = s.retained[1:]
	}
}

func (s *Session) send(data []byte) {
	s.connMu.Lock()
	out, done := s.outbound, s.connDone
	s.connMu.Unlock()
	if out == nil {
		return
	}
	select {
	case out <- data:
	case <-done:
	default:
		s.metrics.WireErrors.WithLabelValues("backpressure").Inc()
		s.logger.Warn("outbound queue full, dropping frame")
	}
}

func (s *Session) sendError(code, msg string, eventSeq uint64) {
	we := &protocol.WireError{Code: code, Message: msg, EventSeq: eventSeq}
	if data, err := we.Frame().Encode(); err == nil {
		s.send(data)
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// detach parks the session for resume after its connection dropped.
func (s *Session) detach(conn *websocket.Conn) {
	s.connMu.Lock()
	if s.conn == conn {
		close(s.connDone)
		s.conn = nil
		s.outbound = nil
		s.connDone = nil
	}
	s.connMu.Unlock()
	conn.Close()

	s.mu.Lock()
	if !s.closed {
		s.detachedAt = time.Now()
	}
	s.mu.Unlock()
}

// detached reports whether the session currently has no connection, and
// since when.
func (s *Session) detached() (time.Time, bool) {
	s.connMu.Lock()
	hasConn := s.conn != nil
	s.connMu.Unlock()
	s.mu.Lock()
	at := s.detachedAt
	closed := s.closed
	s.mu.Unlock()
	if hasConn || closed || at.IsZero() {
		return time.Time{}, false
	}
	return at, true
}

// Close tears the session down for good: the root unmounts and the
// connection, if any, drops.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	mounted := s.mounted
	s.mu.Unlock()

	s.connMu.Lock()
	conn := s.conn
	if s.connDone != nil {
		close(s.connDone)
	}
	s.conn = nil
	s.outbound = nil
	s.connDone = nil
	s.connMu.Unlock()
	if conn != nil {
		conn.Close()
	}

	if mounted {
		s.root.Unmount()
	}
	if s.onClose != nil {
		s.onClose(s)
	}
}

// snapshot serializes the session's resumable state: the next sequence
// number and every unacked batch.
func (s *Session) snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := protocol.NewEncoder()
	e.WriteUvarint(uint64(len(s.retained)))
	for _, b := range s.retained {
		payload, err := b.EncodePayload()
		if err != nil {
			return nil, err
		}
		e.WriteLenBytes(payload)
	}
	return append([]byte(nil), e.Bytes()...), nil
}
