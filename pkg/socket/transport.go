package socket

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ReadyState mirrors the standard WebSocket numeric ready states.
type ReadyState int

const (
	ReadyStateConnecting ReadyState = 0
	ReadyStateOpen       ReadyState = 1
	ReadyStateClosing    ReadyState = 2
	ReadyStateClosed     ReadyState = 3
)

// Transport is the small dynamic-dispatch capability set any WebSocket
// implementation must satisfy to back a Socket. It mirrors the standard
// WebSocket contract: a constructor (url, protocols), Send, Close,
// ReadyState, and the four observation callbacks (open, message, error,
// close). A fake implementation may be injected for tests; the default
// is gorillaTransport.
type Transport interface {
	// Send writes a frame. Returns an error if the transport cannot
	// accept writes (e.g. already closing/closed).
	Send(Frame) error
	// Close closes the transport with the given code/reason.
	Close(code int, reason string) error
	// ReadyState reports the current numeric state.
	ReadyState() ReadyState
	// BufferedAmount reports bytes queued but not yet sent, 0 if the
	// underlying implementation does not track it.
	BufferedAmount() int64
	// Extensions reports negotiated extensions, "" if none/unsupported.
	Extensions() string
	// Protocol reports the negotiated subprotocol, "" if none.
	Protocol() string

	// OnOpen/OnMessage/OnError/OnClose register the four observation
	// callbacks. Each must be called at most once per transport
	// instance, before Start.
	OnOpen(func())
	OnMessage(func(Frame))
	OnError(func(error))
	OnClose(func(CloseEvent))

	// Start begins delivering events. The Connection Attempt calls it
	// only after all four callbacks above are registered, so a
	// transport that completes its handshake synchronously in the
	// dialer (like gorillaTransport) never races its own open callback.
	Start()
}

// TransportDialer constructs and begins opening a Transport for url with
// the given subprotocols. It must return promptly; the Connection
// Attempt applies its own ConnectionTimeout around the wait for the
// transport to signal open/error.
type TransportDialer func(ctx context.Context, url string, protocols []string, header http.Header) (Transport, error)

// DefaultDialer is the gorilla/websocket-backed TransportDialer used when
// Options.Dialer is nil.
func DefaultDialer(ctx context.Context, url string, protocols []string, header http.Header) (Transport, error) {
	dialer := websocket.Dialer{
		Subprotocols:     protocols,
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}

	t := &gorillaTransport{conn: conn}
	t.state.Store(int32(ReadyStateConnecting))
	return t, nil
}

// gorillaTransport adapts *websocket.Conn to the Transport capability
// set. The read pump starts when Start is called and signals open before
// its first read, matching gorilla/websocket's lack of an explicit
// "open" event (the handshake having already completed by the time
// DialContext returns).
type gorillaTransport struct {
	conn  *websocket.Conn
	state atomic.Int32

	writeMu sync.Mutex

	onOpenOnce sync.Once
	onOpen     func()
	onMessage  func(Frame)
	onError    func(error)
	onClose    func(CloseEvent)
}

func (t *gorillaTransport) OnOpen(f func())            { t.onOpen = f }
func (t *gorillaTransport) OnMessage(f func(Frame))    { t.onMessage = f }
func (t *gorillaTransport) OnError(f func(error))      { t.onError = f }
func (t *gorillaTransport) OnClose(f func(CloseEvent)) { t.onClose = f }

func (t *gorillaTransport) Start() {
	go t.readPump()
}

func (t *gorillaTransport) ReadyState() ReadyState { return ReadyState(t.state.Load()) }

func (t *gorillaTransport) BufferedAmount() int64 { return 0 }
func (t *gorillaTransport) Extensions() string    { return "" }
func (t *gorillaTransport) Protocol() string      { return t.conn.Subprotocol() }

func (t *gorillaTransport) Send(f Frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.ReadyState() != ReadyStateOpen {
		return websocket.ErrCloseSent
	}

	msgType := websocket.TextMessage
	if f.Binary {
		msgType = websocket.BinaryMessage
	}
	return t.conn.WriteMessage(msgType, f.Data)
}

func (t *gorillaTransport) Close(code int, reason string) error {
	if !t.state.CompareAndSwap(int32(ReadyStateOpen), int32(ReadyStateClosing)) &&
		!t.state.CompareAndSwap(int32(ReadyStateConnecting), int32(ReadyStateClosing)) {
		return nil
	}

	t.writeMu.Lock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	t.writeMu.Unlock()

	err := t.conn.Close()
	t.state.Store(int32(ReadyStateClosed))
	return err
}

func (t *gorillaTransport) readPump() {
	t.state.Store(int32(ReadyStateOpen))
	t.onOpenOnce.Do(func() {
		if t.onOpen != nil {
			t.onOpen()
		}
	})

	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			t.handleReadError(err)
			return
		}

		if t.onMessage != nil {
			t.onMessage(Frame{Data: data, Binary: msgType == websocket.BinaryMessage})
		}
	}
}

func (t *gorillaTransport) handleReadError(err error) {
	code := websocket.CloseAbnormalClosure
	reason := err.Error()
	wasClean := false

	if ce, ok := err.(*websocket.CloseError); ok {
		code = ce.Code
		reason = ce.Text
		wasClean = true
	} else if t.onError != nil {
		t.onError(&TransportError{Err: err})
	}

	t.state.Store(int32(ReadyStateClosed))
	if t.onClose != nil {
		t.onClose(CloseEvent{Code: code, Reason: reason, WasClean: wasClean})
	}
}
