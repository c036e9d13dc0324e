/*
Package conn implements the point-to-point transport between nodes.
Each message is framed as a tag byte identifying the concrete type,
followed by the msgpack-encoded body and the sender's ED25519 envelope
signature. Connections are pooled per target and reused.
*/
package conn

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-msgpack/codec"
)

// ErrTransportShutdown is returned when operations on a transport are
// invoked after it's been terminated.
var ErrTransportShutdown = errors.New("transport shutdown")

// Envelope carries one decoded message with the sender's signature over
// its encoded body.
type Envelope struct {
	Msg interface{}
	Sig []byte
}

// Stats counts transferred messages and bytes. Counters live behind
// their own lock and never touch the hot path of the consensus driver.
type Stats struct {
	MessagesSent     uint64
	MessagesReceived uint64
	BytesSent        uint64
	BytesReceived    uint64
}

// Transport is a pooled TCP transport carrying the consensus message
// set between nodes. Inbound messages are decoded against a map of
// registered types and handed to the owner through a single channel.
type Transport struct {
	connPool     map[string][]*Conn
	connPoolLock sync.Mutex
	maxPool      int

	msgCh chan Envelope

	types map[uint8]reflect.Type

	logger hclog.Logger

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	streamCtx     context.Context
	streamCancel  context.CancelFunc
	streamCtxLock sync.RWMutex

	statsLock sync.Mutex
	stats     Stats

	timeout time.Duration
}

// NewTransport creates a transport on top of the given stream layer and
// starts its accept loop.
func NewTransport(stream StreamLayer, timeout time.Duration, logOutput io.Writer,
	maxPool int, types map[uint8]reflect.Type) *Transport {
	if logOutput == nil {
		logOutput = os.Stderr
	}
	t := &Transport{
		connPool:   make(map[string][]*Conn),
		maxPool:    maxPool,
		msgCh:      make(chan Envelope, 1),
		types:      types,
		shutdownCh: make(chan struct{}),
		stream:     stream,
		timeout:    timeout,
		logger: hclog.New(&hclog.LoggerOptions{
			Name:   "narwhal-net",
			Output: logOutput,
			Level:  hclog.DefaultLevel,
		}),
	}
	t.setupStreamContext()
	go t.listen()
	return t
}

// MsgChan returns the channel on which decoded inbound messages arrive.
func (t *Transport) MsgChan() chan Envelope {
	return t.msgCh
}

// GetStats returns a snapshot of the transfer counters.
func (t *Transport) GetStats() Stats {
	t.statsLock.Lock()
	defer t.statsLock.Unlock()
	return t.stats
}

func (t *Transport) countSent() {
	t.statsLock.Lock()
	t.stats.MessagesSent++
	t.statsLock.Unlock()
}

func (t *Transport) countReceived() {
	t.statsLock.Lock()
	t.stats.MessagesReceived++
	t.statsLock.Unlock()
}

func (t *Transport) countBytesSent(n int) {
	t.statsLock.Lock()
	t.stats.BytesSent += uint64(n)
	t.statsLock.Unlock()
}

func (t *Transport) countBytesReceived(n int) {
	t.statsLock.Lock()
	t.stats.BytesReceived += uint64(n)
	t.statsLock.Unlock()
}

func (t *Transport) setupStreamContext() {
	ctx, cancel := context.WithCancel(context.Background())
	t.streamCtx = ctx
	t.streamCancel = cancel
}

// GetStreamContext retrieves the current stream context.
func (t *Transport) GetStreamContext() context.Context {
	t.streamCtxLock.RLock()
	defer t.streamCtxLock.RUnlock()
	return t.streamCtx
}

// LocalAddr returns the address the transport listens on.
func (t *Transport) LocalAddr() string {
	return t.stream.Addr().String()
}

// IsShutdown checks if the transport has been terminated.
func (t *Transport) IsShutdown() bool {
	select {
	case <-t.shutdownCh:
		return true
	default:
		return false
	}
}

// Close stops the transport and its listener.
func (t *Transport) Close() error {
	t.shutdownLock.Lock()
	defer t.shutdownLock.Unlock()
	if !t.shutdown {
		close(t.shutdownCh)
		t.stream.Close()
		t.streamCancel()
		t.shutdown = true
	}
	return nil
}

// listen accepts inbound connections until shutdown, backing off on
// repeated accept failures.
func (t *Transport) listen() {
	const baseDelay = 5 * time.Millisecond
	const maxDelay = 1 * time.Second

	var loopDelay time.Duration
	for {
		conn, err := t.stream.Accept()
		if err != nil {
			if loopDelay == 0 {
				loopDelay = baseDelay
			} else {
				loopDelay *= 2
			}
			if loopDelay > maxDelay {
				loopDelay = maxDelay
			}
			if t.IsShutdown() {
				return
			}
			t.logger.Error("failed to accept connection", "error", err)
			select {
			case <-t.shutdownCh:
				return
			case <-time.After(loopDelay):
				continue
			}
		}
		loopDelay = 0

		t.logger.Debug("accepted connection", "local-address", t.LocalAddr(),
			"remote-address", conn.RemoteAddr().String())
		go t.handleConn(t.GetStreamContext(), conn)
	}
}

// handleConn decodes messages from one inbound connection for its
// lifespan.
func (t *Transport) handleConn(connCtx context.Context, conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(&countingReader{r: conn, count: t.countBytesReceived})
	dec := codec.NewDecoder(r, &codec.MsgpackHandle{})

	for {
		select {
		case <-connCtx.Done():
			t.logger.Debug("stream layer is closed")
			return
		default:
		}

		if err := t.handleMsg(r, dec); err != nil {
			if err != io.EOF {
				t.logger.Error("failed to decode inbound message", "error", err)
			}
			return
		}
	}
}

// handleMsg decodes a single tagged message and hands it to the owner.
func (t *Transport) handleMsg(r *bufio.Reader, dec *codec.Decoder) error {
	tag, err := r.ReadByte()
	if err != nil {
		return err
	}

	reflectedType, ok := t.types[tag]
	if !ok {
		return fmt.Errorf("unknown message tag %d", tag)
	}
	msgBody := reflect.Zero(reflectedType).Interface()
	if err := dec.Decode(&msgBody); err != nil {
		return err
	}

	var sig []byte
	if err := dec.Decode(&sig); err != nil {
		return err
	}

	t.countReceived()

	select {
	case t.msgCh <- Envelope{Msg: msgBody, Sig: sig}:
	case <-t.shutdownCh:
		return ErrTransportShutdown
	}
	return nil
}

func (t *Transport) dialConn(target string) (*Conn, error) {
	raw, err := t.stream.Dial(target, t.timeout)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		target: target,
		conn:   raw,
		w:      bufio.NewWriter(&countingWriter{w: raw, count: t.countBytesSent}),
	}
	c.enc = codec.NewEncoder(c.w, &codec.MsgpackHandle{})
	return c, nil
}

// GetConn returns an idle pooled connection to the target, dialing a
// new one if the pool is empty.
func (t *Transport) GetConn(target string) (*Conn, error) {
	t.connPoolLock.Lock()
	defer t.connPoolLock.Unlock()

	conns, ok := t.connPool[target]
	if ok && len(conns) > 0 {
		var c *Conn
		num := len(conns)
		c, conns[num-1] = conns[num-1], nil
		t.connPool[target] = conns[:num-1]
		return c, nil
	}
	return t.dialConn(target)
}

// ReturnConn puts a connection back into the pool for reuse, or
// releases it when the pool is full or the transport is shutting down.
func (t *Transport) ReturnConn(c *Conn) error {
	t.connPoolLock.Lock()
	defer t.connPoolLock.Unlock()

	conns := t.connPool[c.target]
	if !t.IsShutdown() && len(conns) < t.maxPool {
		t.connPool[c.target] = append(conns, c)
		return nil
	}
	return c.Release()
}

// SendMsg frames and sends one signed message on the connection: the
// tag byte, the msgpack body, then the envelope signature.
func (t *Transport) SendMsg(c *Conn, tag uint8, msg interface{}, sig []byte) error {
	if err := c.w.WriteByte(tag); err != nil {
		c.Release()
		return err
	}
	if err := c.enc.Encode(msg); err != nil {
		c.Release()
		return err
	}
	if err := c.enc.Encode(sig); err != nil {
		c.Release()
		return err
	}
	if err := c.w.Flush(); err != nil {
		c.Release()
		return err
	}
	t.countSent()
	return nil
}

// countingReader tallies bytes read from the wrapped reader.
type countingReader struct {
	r     io.Reader
	count func(int)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.count(n)
	}
	return n, err
}

// countingWriter tallies bytes written to the wrapped writer.
type countingWriter struct {
	w     io.Writer
	count func(int)
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		c.count(n)
	}
	return n, err
}
