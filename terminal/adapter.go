package terminal

import (
	"fmt"
	"io"
	"strings"
)

const (
	ConnectedBanner    = "Connected to terminal\r\n"
	DisconnectedBanner = "\r\n[Disconnected from server]\r\n"
)

// Sender delivers one input fragment to the server.
type Sender interface {
	SendInput(data string) error
}

// SenderFunc adapts a function to a Sender.
type SenderFunc func(data string) error

func (f SenderFunc) SendInput(data string) error { return f(data) }

// Adapter sits between the keyboard, the display and the transport.
// The CLI on the other end does not echo keystrokes, so the Adapter echoes them locally.
type Adapter struct {
	display io.Writer
	sender  Sender
	corr    *Correlator

	buf strings.Builder
}

func NewAdapter(display io.Writer, sender Sender, corr *Correlator) *Adapter {
	return &Adapter{display: display, sender: sender, corr: corr}
}

// Connected shows the connect banner.
func (a *Adapter) Connected() error {
	_, err := io.WriteString(a.display, ConnectedBanner)
	return err
}

// Disconnected shows the disconnect banner.
func (a *Adapter) Disconnected() error {
	_, err := io.WriteString(a.display, DisconnectedBanner)
	return err
}

// HandleInput forwards a raw input fragment, echoes it, and tracks the command line.
// The fragment is echoed even if sending fails.
func (a *Adapter) HandleInput(data string) error {
	sendErr := a.sender.SendInput(data)
	if _, err := io.WriteString(a.display, data); err != nil {
		return fmt.Errorf("echoing input: %w", err)
	}

	if data == "\r" {
		a.corr.Submit(a.buf.String())
		a.buf.Reset()
	} else {
		a.buf.WriteString(data)
	}

	if sendErr != nil {
		return fmt.Errorf("sending input: %w", sendErr)
	}
	return nil
}

// HandleOutput renders an output chunk on its own line and hands it to the Correlator.
func (a *Adapter) HandleOutput(chunk string) error {
	if _, err := io.WriteString(a.display, "\n"+chunk); err != nil {
		return fmt.Errorf("rendering output: %w", err)
	}
	a.corr.Observe(chunk)
	return nil
}

// Pending returns the characters typed since the last carriage return.
func (a *Adapter) Pending() string { return a.buf.String() }
