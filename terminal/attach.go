package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/guseggert/webcli/transport"
)

// DetachKey (Ctrl-]) ends Attach without being sent to the server.
const DetachKey = 0x1d

// Conn is the transport as seen by Attach.
type Conn interface {
	Send(ctx context.Context, ev transport.Event) error
	Read(ctx context.Context) (transport.Event, error)
}

// Attach runs the client event loop until the server disconnects, keys hits EOF, the detach key is pressed or ctx is done.
// Keystrokes and output events are handled one at a time on the calling goroutine,
// so the command buffer and history are never touched concurrently.
// Returning cancels the pending read on conn, which closes a transport.Conn.
func Attach(ctx context.Context, conn Conn, keys io.Reader, display io.Writer, corr *Correlator) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	adapter := NewAdapter(display, SenderFunc(func(data string) error {
		return conn.Send(ctx, transport.Input(data))
	}), corr)
	if err := adapter.Connected(); err != nil {
		return err
	}

	keyCh := make(chan string)
	keyErrCh := make(chan error, 1)
	go readKeys(ctx, keys, keyCh, keyErrCh)

	eventCh := make(chan transport.Event)
	readErrCh := make(chan error, 1)
	go readEvents(ctx, conn, eventCh, readErrCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-keyCh:
			if strings.IndexByte(data, DetachKey) >= 0 {
				return nil
			}
			if err := adapter.HandleInput(data); err != nil {
				return err
			}
		case err := <-keyErrCh:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading keys: %w", err)
		case ev := <-eventCh:
			if ev.Type != transport.KindOutput {
				continue
			}
			if err := adapter.HandleOutput(ev.Data); err != nil {
				return err
			}
		case err := <-readErrCh:
			_ = adapter.Disconnected()
			if errors.Is(err, transport.ErrDisconnected) {
				return nil
			}
			return err
		}
	}
}

func readKeys(ctx context.Context, r io.Reader, keyCh chan<- string, errCh chan<- error) {
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case keyCh <- string(buf[:n]):
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			errCh <- err
			return
		}
	}
}

func readEvents(ctx context.Context, conn Conn, eventCh chan<- transport.Event, errCh chan<- error) {
	for {
		ev, err := conn.Read(ctx)
		if err != nil {
			errCh <- err
			return
		}
		select {
		case eventCh <- ev:
		case <-ctx.Done():
			return
		}
	}
}
