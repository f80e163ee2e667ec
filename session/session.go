package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/guseggert/webcli/internal/eol"
	"github.com/guseggert/webcli/transport"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	spawnFailureFormat = "\r\nError: Failed to start CLI process. Make sure the executable exists at: %s\r\n"
	exitFormat         = "\r\n[process exited with code %d]\r\n"
	idleFormat         = "\r\n[session closed after %s of inactivity]\r\n"
)

// Session pairs one transport connection with one subprocess.
type Session struct {
	ID string

	log  *zap.SugaredLogger
	conn *transport.Conn
	obs  Observer

	path        string
	idleTimeout time.Duration
	killGrace   time.Duration

	ctx    context.Context
	cancel func()

	mut          sync.Mutex
	state        State
	lastActivity time.Time

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	exited chan struct{}

	// input is unbounded so a subprocess that stops reading stdin never stalls the connection reader
	inputMut   sync.Mutex
	input      []string
	inputReady chan struct{}

	wg sync.WaitGroup
}

func newSession(ctx context.Context, id string, srv *Server, conn *transport.Conn) *Session {
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		ID:           id,
		log:          srv.Log.Named("session").With("ID", id),
		conn:         conn,
		obs:          srv.observer(),
		path:         srv.Path,
		idleTimeout:  srv.IdleTimeout,
		killGrace:    srv.KillGrace,
		ctx:          ctx,
		cancel:       cancel,
		state:        StateStarting,
		lastActivity: time.Now(),
		inputReady:   make(chan struct{}, 1),
		exited:       make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.state
}

// transition moves the session from one state to another, returning false if it was not in the from state.
func (s *Session) transition(from, to State) bool {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.state != from {
		return false
	}
	s.log.Debugf("state %s -> %s", from, to)
	s.state = to
	return true
}

func (s *Session) touch() {
	s.mut.Lock()
	s.lastActivity = time.Now()
	s.mut.Unlock()
}

func (s *Session) idleFor() time.Duration {
	s.mut.Lock()
	defer s.mut.Unlock()
	return time.Since(s.lastActivity)
}

// run blocks until the client disconnects, then tears down the subprocess.
func (s *Session) run() {
	s.obs.SessionStarted()
	s.start()

	if s.idleTimeout > 0 {
		s.wg.Add(1)
		go s.watchIdle()
	}

	s.readMessages()
	s.shutdown()
	s.wg.Wait()

	s.obs.SessionEnded(s.State())
	s.log.Debug("session done")
}

func (s *Session) start() {
	s.log.Debugw("spawning CLI", "Path", s.path)
	cmd := exec.Command(s.path)
	cmd.Stdout = &streamWriter{name: "stdout", s: s}
	cmd.Stderr = &streamWriter{name: "stderr", s: s}

	stdin, err := cmd.StdinPipe()
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		s.log.Debugf("failed to start CLI process: %s", err)
		s.transition(StateStarting, StateErrored)
		close(s.exited)
		s.obs.SpawnFailed()
		s.emit(fmt.Sprintf(spawnFailureFormat, s.path))
		return
	}

	s.cmd = cmd
	s.stdin = stdin
	s.transition(StateStarting, StateRunning)
	s.log.Debugw("process started", "PID", cmd.Process.Pid)

	s.wg.Add(1)
	go s.writeStdin()
	go s.waitAndWriteResult()
}

func (s *Session) waitAndWriteResult() {
	defer close(s.exited)

	err := s.cmd.Wait()
	exitCode := s.cmd.ProcessState.ExitCode()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			s.log.Debugf("unexpected exit error: %s", err)
		}
	}

	if !s.transition(StateRunning, StateExited) {
		s.log.Debugf("process %d exited with code %d after teardown", s.cmd.Process.Pid, exitCode)
		return
	}
	s.log.Debugf("process %d exited with code %d, sending message", s.cmd.Process.Pid, exitCode)
	s.emit(fmt.Sprintf(exitFormat, exitCode))
}

func (s *Session) readMessages() {
	for {
		ev, err := s.conn.Read(s.ctx)
		if errors.Is(err, transport.ErrDisconnected) {
			s.log.Debug("client disconnected")
			return
		}
		if err != nil {
			s.log.Debugf("message reader got error: %s", err)
			return
		}
		s.touch()

		switch ev.Type {
		case transport.KindInput:
			s.obs.InputEvent()
			s.enqueueInput(ev.Data)
		default:
			s.log.Debugf("unknown event type %q, ignoring", ev.Type)
		}
	}
}

func (s *Session) enqueueInput(data string) {
	if state := s.State(); state != StateRunning {
		s.log.Debugf("dropping %d bytes of input, process is %s", len(data), state)
		return
	}
	// the CLI expects CRLF line endings
	if data == "\r" {
		data = "\r\n"
	}

	s.inputMut.Lock()
	s.input = append(s.input, data)
	s.inputMut.Unlock()
	select {
	case s.inputReady <- struct{}{}:
	default:
	}
}

// takeInput removes and returns everything queued for stdin.
func (s *Session) takeInput() []string {
	s.inputMut.Lock()
	defer s.inputMut.Unlock()
	input := s.input
	s.input = nil
	return input
}

func (s *Session) writeStdin() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.inputReady:
		}
		for _, data := range s.takeInput() {
			if s.ctx.Err() != nil {
				return
			}
			s.writeInput(data)
		}
	}
}

// writeInput writes one fragment to stdin. Failures are confined to this write.
func (s *Session) writeInput(data string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Debugf("recovered from stdin write: %v", r)
		}
	}()
	_, err := io.WriteString(s.stdin, data)
	if err != nil {
		s.log.Debugf("stdin writer got write error, dropping %d bytes: %s", len(data), err)
	}
}

// emit sends one output event. Output racing teardown is discarded.
func (s *Session) emit(data string) {
	s.obs.OutputEvent()
	err := s.conn.Send(s.ctx, transport.Output(data))
	if err != nil {
		s.log.Debugf("discarding output: %s", err)
	}
}

// watchIdle closes the connection once there has been no traffic for the idle timeout.
func (s *Session) watchIdle() {
	defer s.wg.Done()

	interval := s.idleTimeout / 10
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	if interval > time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
		if s.idleFor() < s.idleTimeout {
			continue
		}
		s.log.Debugf("no activity for %s, closing", s.idleTimeout)
		s.emit(fmt.Sprintf(idleFormat, s.idleTimeout))
		s.conn.Close(websocket.StatusNormalClosure, "idle timeout")
		s.cancel()
		return
	}
}

func (s *Session) shutdown() {
	s.cancel()
	if !s.transition(StateRunning, StateTerminated) {
		return
	}

	pid := s.cmd.Process.Pid
	s.log.Debugf("sending SIGTERM to process %d", pid)
	err := s.cmd.Process.Signal(syscall.SIGTERM)
	if err != nil {
		s.log.Debugf("error signaling process %d: %s", pid, err)
	}
	// unblocks a stdin write stuck on a full pipe
	if err := s.stdin.Close(); err != nil {
		s.log.Debugf("error closing stdin of process %d: %s", pid, err)
	}
	if s.killGrace <= 0 {
		return
	}
	go func() {
		timer := time.NewTimer(s.killGrace)
		defer timer.Stop()
		select {
		case <-s.exited:
		case <-timer.C:
			s.log.Debugf("process %d still running after %s, killing", pid, s.killGrace)
			_ = s.cmd.Process.Kill()
		}
	}()
}

// streamWriter normalizes one output stream and forwards it as output events.
// It never returns an error, output that can't be sent is dropped.
type streamWriter struct {
	name string
	s    *Session
	norm eol.Normalizer
}

func (w *streamWriter) Write(b []byte) (int, error) {
	w.s.log.Debugf("%s: %d bytes", w.name, len(b))
	w.s.touch()
	w.s.emit(w.norm.Normalize(b))
	return len(b), nil
}
