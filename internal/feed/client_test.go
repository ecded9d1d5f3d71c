package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"rtg-maker-bot/internal/exchange"
)

func wsServer(t *testing.T, handler func(ctx context.Context, conn *websocket.Conn)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept ws: %v", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		handler(r.Context(), conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestRunDeliversDecodedEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	book := exchange.BookUpdate{
		Instrument: exchange.InstrumentETF,
		Sequence:   5,
		Bids:       []exchange.PriceLevel{{Price: 9900, Volume: 3}},
		Asks:       []exchange.PriceLevel{{Price: 10100, Volume: 2}},
		TimeMS:     1724670000000,
	}
	frame, err := exchange.EncodeEvent(book)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	url := wsServer(t, func(ctx context.Context, conn *websocket.Conn) {
		if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
			return
		}
		// Hold the connection open until the test is done.
		_, _, _ = conn.Read(ctx)
	})

	client := New(url, 10*time.Millisecond, 0, 1, zap.NewNop())
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	events := make(chan exchange.Event, 1)
	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	go func() {
		_ = client.Run(runCtx, func(ev exchange.Event) {
			select {
			case events <- ev:
			default:
			}
		})
	}()

	select {
	case ev := <-events:
		got, ok := ev.(exchange.BookUpdate)
		if !ok {
			t.Fatalf("expected BookUpdate, got %T", ev)
		}
		if got.Sequence != 5 || len(got.Bids) != 1 || got.Bids[0].Price != 9900 {
			t.Fatalf("event mangled: %+v", got)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for event")
	}
}

func TestMalformedFramesAreDropped(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ack, err := exchange.EncodeEvent(exchange.OrderAck{OrderID: 8})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	url := wsServer(t, func(ctx context.Context, conn *websocket.Conn) {
		if err := conn.Write(ctx, websocket.MessageBinary, []byte{0xc1}); err != nil {
			return
		}
		if err := conn.Write(ctx, websocket.MessageBinary, ack); err != nil {
			return
		}
		_, _, _ = conn.Read(ctx)
	})

	client := New(url, 10*time.Millisecond, 0, 1, zap.NewNop())
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	events := make(chan exchange.Event, 2)
	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	go func() {
		_ = client.Run(runCtx, func(ev exchange.Event) { events <- ev })
	}()

	select {
	case ev := <-events:
		if ack, ok := ev.(exchange.OrderAck); !ok || ack.OrderID != 8 {
			t.Fatalf("expected the ack after the bad frame, got %+v", ev)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for event")
	}
}

func TestOnOpenHookRunsBeforeRead(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	received := make(chan []byte, 1)
	url := wsServer(t, func(ctx context.Context, conn *websocket.Conn) {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		received <- data
		_, _, _ = conn.Read(ctx)
	})

	client := New(url, 10*time.Millisecond, 0, 1, zap.NewNop())
	client.OnOpen(func(ctx context.Context) error {
		data, err := exchange.EncodeIntent(exchange.Login{Team: "rtg", Secret: "x"})
		if err != nil {
			return err
		}
		return client.Send(ctx, data)
	})
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	go func() {
		_ = client.Run(runCtx, nil)
	}()

	select {
	case <-received:
	case <-ctx.Done():
		t.Fatalf("server never saw the login frame")
	}
}

func TestSendWithoutConnection(t *testing.T) {
	client := New("ws://localhost:1", time.Millisecond, 0, 1, zap.NewNop())
	if err := client.Send(context.Background(), []byte("x")); err == nil {
		t.Fatalf("expected error when not connected")
	}
}

func TestRunGivesUpAfterMaxFailures(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Nothing listens on this port, so every connect attempt fails.
	client := New("ws://127.0.0.1:1", time.Millisecond, 0, 2, zap.NewNop())
	err := client.Run(ctx, nil)
	if err == nil {
		t.Fatalf("expected failure after exhausting connect attempts")
	}
	if ctx.Err() != nil {
		t.Fatalf("run should fail before the test deadline")
	}
}
