package session

import (
	"context"
	"crypto/tls"
	"sync"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"
	"golang.org/x/sync/errgroup"
)

// Inbound is one datagram or stream message delivered to the
// controller's inbound queue. Reliable is true for bytes read off the
// QUIC stream (commands, SYNC, GAME_STATE_*); false for bytes read off
// the unreliable datagram path (HASH_CHECK — an occasionally-dropped
// hash check is acceptable, the next one catches the same drift).
type Inbound struct {
	Peer     PlayerID
	Payload  []byte
	Reliable bool
}

// Conn is the per-peer transport handle the controller uses to send. It
// wraps one QUIC connection plus the single long-lived reliable stream
// negotiated at connect time; QUIC's datagram extension carries the
// unreliable path on the same connection.
type Conn struct {
	Peer   PlayerID
	qconn  quic.Connection
	stream quic.Stream
}

// SendReliable writes a length-delimited message over the peer's
// reliable stream. Used for COMMAND, SYNC, GAME_STATE_REQUEST/RESPONSE,
// ADD_ENTITY, REMOVE_ENTITY — anything that must arrive and arrive in
// order.
func (c *Conn) SendReliable(payload []byte) error {
	var lenPrefix [4]byte
	n := len(payload)
	lenPrefix[0] = byte(n)
	lenPrefix[1] = byte(n >> 8)
	lenPrefix[2] = byte(n >> 16)
	lenPrefix[3] = byte(n >> 24)
	if _, err := c.stream.Write(lenPrefix[:]); err != nil {
		return errors.Wrap(err, "session: write stream length prefix")
	}
	if _, err := c.stream.Write(payload); err != nil {
		return errors.Wrap(err, "session: write stream payload")
	}
	return nil
}

// SendUnreliable sends payload as a best-effort QUIC datagram. Used for
// HASH_CHECK broadcasts, which are frequent and tolerate loss.
func (c *Conn) SendUnreliable(payload []byte) error {
	return errors.Wrap(c.qconn.SendDatagram(payload), "session: send datagram")
}

// Close tears down the underlying QUIC connection.
func (c *Conn) Close() error {
	return c.qconn.CloseWithError(0, "session closed")
}

// maxMessageBytes bounds a single reliable message. Full-state snapshots
// are the largest payload and stay well under this at any realistic
// entity count; anything bigger is a malformed or hostile stream.
const maxMessageBytes = 8 << 20

func readLengthPrefixed(s quic.Stream) ([]byte, error) {
	var lenPrefix [4]byte
	if _, err := readFull(s, lenPrefix[:]); err != nil {
		return nil, err
	}
	n := int(lenPrefix[0]) | int(lenPrefix[1])<<8 | int(lenPrefix[2])<<16 | int(lenPrefix[3])<<24
	if n < 0 || n > maxMessageBytes {
		return nil, errors.Errorf("session: message length %d out of range", n)
	}
	buf := make([]byte, n)
	if _, err := readFull(s, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// writeAssignedID sends the freshly joined peer's PlayerID as the very
// first four bytes on the reliable stream, ahead of any wire-tagged
// message. This is the join handshake: the wire tags all assume the
// receiver already knows which PlayerID to stamp its own outgoing
// commands with, which nothing else in the protocol communicates.
func writeAssignedID(s quic.Stream, id PlayerID) error {
	var b [4]byte
	b[0] = byte(id)
	b[1] = byte(id >> 8)
	b[2] = byte(id >> 16)
	b[3] = byte(id >> 24)
	_, err := s.Write(b[:])
	return errors.Wrap(err, "session: write assigned id")
}

func readAssignedID(s quic.Stream) (PlayerID, error) {
	var b [4]byte
	if _, err := readFull(s, b[:]); err != nil {
		return 0, errors.Wrap(err, "session: read assigned id")
	}
	id := PlayerID(b[0]) | PlayerID(b[1])<<8 | PlayerID(b[2])<<16 | PlayerID(b[3])<<24
	return id, nil
}

func readFull(s quic.Stream, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := s.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// pumpConn drains both the reliable stream and the unreliable datagram
// path of one connection into the shared inbound channel, tagged with
// the owning peer id. It runs inside the caller's errgroup and returns
// when the connection closes or the context is cancelled. These pumps
// are the only background goroutines this package runs; simulation code
// only ever sees their output by draining the inbound queue.
func pumpConn(ctx context.Context, id PlayerID, qconn quic.Connection, stream quic.Stream, inbound chan<- Inbound) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			payload, err := readLengthPrefixed(stream)
			if err != nil {
				return errors.Wrap(err, "session: reliable stream read")
			}
			select {
			case inbound <- Inbound{Peer: id, Payload: payload, Reliable: true}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	g.Go(func() error {
		for {
			payload, err := qconn.ReceiveDatagram(ctx)
			if err != nil {
				return errors.Wrap(err, "session: datagram read")
			}
			select {
			case inbound <- Inbound{Peer: id, Payload: payload, Reliable: false}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	return g.Wait()
}

// Server accepts incoming QUIC connections and feeds a shared inbound
// queue that the server controller drains once per tick. connMu guards
// conns: the accept loop inserts, each connection's pump goroutine
// deletes itself on exit, and the controller's tick reads for
// Broadcast/Conn, all on different goroutines.
type Server struct {
	ln      *quic.Listener
	roster  *Roster
	inbound chan Inbound
	connMu  sync.RWMutex
	conns   map[PlayerID]*Conn
	joins   chan PlayerID
}

// NewServer starts listening on addr with the given TLS config (QUIC
// requires TLS 1.3). queueDepth bounds the inbound channel; a full
// channel applies backpressure to the reader goroutines rather than
// growing without bound.
func NewServer(ctx context.Context, addr string, tlsConf *tls.Config, roster *Roster, queueDepth int) (*Server, error) {
	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{EnableDatagrams: true})
	if err != nil {
		return nil, errors.Wrap(err, "session: listen")
	}
	return &Server{
		ln:      ln,
		roster:  roster,
		inbound: make(chan Inbound, queueDepth),
		conns:   make(map[PlayerID]*Conn),
		joins:   make(chan PlayerID, queueDepth),
	}, nil
}

// AcceptLoop accepts connections until ctx is cancelled, admitting each
// one through the roster and spawning its pump goroutines. It is meant
// to run on its own goroutine, separate from the synchronous tick loop.
func (s *Server) AcceptLoop(ctx context.Context) error {
	for {
		qconn, err := s.ln.Accept(ctx)
		if err != nil {
			return errors.Wrap(err, "session: accept")
		}

		stream, err := qconn.AcceptStream(ctx)
		if err != nil {
			qconn.CloseWithError(1, "stream negotiation failed")
			continue
		}

		peer, err := s.roster.Join()
		if err != nil {
			qconn.CloseWithError(2, "session full")
			continue
		}

		if err := writeAssignedID(stream, peer.ID); err != nil {
			qconn.CloseWithError(1, "handshake failed")
			s.roster.Leave(peer.ID)
			continue
		}

		conn := &Conn{Peer: peer.ID, qconn: qconn, stream: stream}
		s.connMu.Lock()
		s.conns[peer.ID] = conn
		s.connMu.Unlock()

		select {
		case s.joins <- peer.ID:
		default:
			// Join queue full: accepting must never block on the
			// controller's drain rate, so the notification is dropped. In
			// practice queueDepth is sized well above any realistic
			// per-tick join burst.
		}

		go func() {
			defer s.roster.Leave(peer.ID)
			defer func() {
				s.connMu.Lock()
				delete(s.conns, peer.ID)
				s.connMu.Unlock()
			}()
			_ = pumpConn(ctx, peer.ID, qconn, stream, s.inbound)
		}()
	}
}

// Drain returns every message queued since the last call, without
// blocking. This is the only point where bytes cross from the
// background pump goroutines into the controller's single-threaded
// tick.
func (s *Server) Drain() []Inbound {
	var out []Inbound
	for {
		select {
		case msg := <-s.inbound:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// Joins returns the ids of every peer that connected since the last
// call, without blocking. The controller drains this once per tick to
// spawn a ship for each newly admitted player.
func (s *Server) Joins() []PlayerID {
	var out []PlayerID
	for {
		select {
		case id := <-s.joins:
			out = append(out, id)
		default:
			return out
		}
	}
}

// PeerConn is the send-side surface of a Conn, kept as an interface so
// embedding controllers can be exercised against a fake peer without a
// live QUIC connection.
type PeerConn interface {
	SendReliable(payload []byte) error
	SendUnreliable(payload []byte) error
}

// Conn returns the transport handle for a connected peer, if any.
func (s *Server) Conn(id PlayerID) (PeerConn, bool) {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	c, ok := s.conns[id]
	return c, ok
}

// Broadcast sends payload reliably to every connected peer, used for
// COMMAND echoes and ADD_ENTITY/REMOVE_ENTITY broadcasts.
func (s *Server) Broadcast(payload []byte) {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	for _, c := range s.conns {
		_ = c.SendReliable(payload)
	}
}

// BroadcastUnreliable sends payload as a best-effort datagram to every
// connected peer, used for HASH_CHECK.
func (s *Server) BroadcastUnreliable(payload []byte) {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	for _, c := range s.conns {
		_ = c.SendUnreliable(payload)
	}
}

// Client is the client-side half of the transport: a single connection
// to the server plus the same inbound-queue draining discipline.
type Client struct {
	conn    *Conn
	inbound chan Inbound
}

// Dial connects to the server at addr, completes the join handshake
// (reading back the PlayerID the server's roster just assigned), and
// begins pumping inbound messages into an internal queue drained by
// Drain. The returned PlayerID is what the caller must stamp on every
// sim.Command it builds locally.
func Dial(ctx context.Context, addr string, tlsConf *tls.Config, queueDepth int) (*Client, PlayerID, error) {
	qconn, err := quic.DialAddr(ctx, addr, tlsConf, &quic.Config{EnableDatagrams: true})
	if err != nil {
		return nil, 0, errors.Wrap(err, "session: dial")
	}
	stream, err := qconn.OpenStreamSync(ctx)
	if err != nil {
		qconn.CloseWithError(1, "stream negotiation failed")
		return nil, 0, errors.Wrap(err, "session: open stream")
	}
	id, err := readAssignedID(stream)
	if err != nil {
		qconn.CloseWithError(1, "handshake failed")
		return nil, 0, err
	}

	c := &Client{
		conn:    &Conn{Peer: id, qconn: qconn, stream: stream},
		inbound: make(chan Inbound, queueDepth),
	}
	go func() { _ = pumpConn(ctx, id, qconn, stream, c.inbound) }()
	return c, id, nil
}

// Send writes a reliable message to the server.
func (c *Client) Send(payload []byte) error { return c.conn.SendReliable(payload) }

// SendUnreliable writes a best-effort datagram to the server.
func (c *Client) SendUnreliable(payload []byte) error { return c.conn.SendUnreliable(payload) }

// Drain returns every inbound message queued since the last call,
// without blocking.
func (c *Client) Drain() []Inbound {
	var out []Inbound
	for {
		select {
		case msg := <-c.inbound:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// Close disconnects from the server.
func (c *Client) Close() error { return c.conn.Close() }
