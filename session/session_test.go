package session

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/guseggert/webcli/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

var log *zap.SugaredLogger

func init() {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	log = l.Sugar()
}

type countingObserver struct {
	started, ended, spawnFailed, inputs, outputs, endState atomic.Int64
}

func (o *countingObserver) SessionStarted() { o.started.Add(1) }
func (o *countingObserver) SessionEnded(st State) {
	o.endState.Store(int64(st))
	o.ended.Add(1)
}
func (o *countingObserver) SpawnFailed() { o.spawnFailed.Add(1) }
func (o *countingObserver) InputEvent()  { o.inputs.Add(1) }
func (o *countingObserver) OutputEvent() { o.outputs.Add(1) }

// writeScript writes an executable shell script, since the CLI is always launched without arguments.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cli.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func startServer(t *testing.T, srv *Server) string {
	t.Helper()
	if srv.Log == nil {
		srv.Log = log
	}
	s := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func dial(t *testing.T, ctx context.Context, url string) *transport.Conn {
	t.Helper()
	conn, err := transport.Dial(ctx, url, nil, log)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readUntil(t *testing.T, ctx context.Context, conn *transport.Conn, substr string) string {
	t.Helper()
	var out strings.Builder
	for !strings.Contains(out.String(), substr) {
		ev, err := conn.Read(ctx)
		require.NoError(t, err, "output so far: %q", out.String())
		require.Equal(t, transport.KindOutput, ev.Type)
		out.WriteString(ev.Data)
	}
	return out.String()
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func processGone(pid int) bool {
	return errors.Is(syscall.Kill(pid, 0), syscall.ESRCH)
}

func TestSpawnFailure(t *testing.T) {
	ctx := testContext(t)
	obs := &countingObserver{}
	path := filepath.Join(t.TempDir(), "dist", "calculator-cli")
	srv := &Server{Path: path, Observer: obs}
	conn := dial(t, ctx, startServer(t, srv))

	ev, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, transport.KindOutput, ev.Type)
	assert.Contains(t, ev.Data, path)
	assert.Equal(t, int64(1), obs.spawnFailed.Load())

	// input to a session without a process is accepted and dropped
	require.NoError(t, conn.Send(ctx, transport.Input("2+2")))
	require.NoError(t, conn.Send(ctx, transport.Input("\r")))
	require.Eventually(t, func() bool { return obs.inputs.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, srv.Len())

	// and nothing else is ever sent
	readCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = conn.Read(readCtx)
	require.Error(t, err)
	assert.Equal(t, int64(1), obs.outputs.Load())
}

func TestCarriageReturnTranslatedToCRLF(t *testing.T) {
	ctx := testContext(t)
	outFile := filepath.Join(t.TempDir(), "stdin")
	t.Setenv("WEBCLI_TEST_STDIN", outFile)

	srv := &Server{Path: writeScript(t, `exec cat > "$WEBCLI_TEST_STDIN"`)}
	conn := dial(t, ctx, startServer(t, srv))

	for _, in := range []string{"2", "+2", "\r", "pasted\r", "\r"} {
		require.NoError(t, conn.Send(ctx, transport.Input(in)))
	}

	exp := "2+2\r\npasted\r\r\n"
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(outFile)
		return err == nil && string(b) == exp
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCommandRoundTrip(t *testing.T) {
	ctx := testContext(t)
	srv := &Server{Path: writeScript(t, `while read line; do echo 4; done`)}
	conn := dial(t, ctx, startServer(t, srv))

	require.NoError(t, conn.Send(ctx, transport.Input("2+2")))
	require.NoError(t, conn.Send(ctx, transport.Input("\r")))

	ev, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, transport.Output("4\r\n"), ev)
}

func TestOutputNormalizedAndExitReported(t *testing.T) {
	ctx := testContext(t)
	obs := &countingObserver{}
	srv := &Server{
		Path:     writeScript(t, `printf 'a\nb\r\nc\n'; printf 'oops\n' 1>&2; exit 3`),
		Observer: obs,
	}
	conn := dial(t, ctx, startServer(t, srv))

	out := readUntil(t, ctx, conn, "[process exited with code 3]\r\n")
	assert.Contains(t, out, "a\r\nb\r\nc\r\n")
	assert.Contains(t, out, "oops\r\n")
	assert.True(t, strings.HasSuffix(out, "\r\n[process exited with code 3]\r\n"), "exit message must come last: %q", out)

	// the connection survives the exit, and later input is swallowed
	require.NoError(t, conn.Send(ctx, transport.Input("\r")))
	require.Eventually(t, func() bool { return obs.inputs.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, srv.Len())
}

func TestDisconnectTerminatesProcess(t *testing.T) {
	ctx := testContext(t)
	obs := &countingObserver{}
	srv := &Server{Path: writeScript(t, `echo $$; exec cat`), Observer: obs}
	conn := dial(t, ctx, startServer(t, srv))

	out := readUntil(t, ctx, conn, "\r\n")
	pid, err := strconv.Atoi(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.False(t, processGone(pid))

	conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return processGone(pid) }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return srv.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), obs.ended.Load())
	endState := State(obs.endState.Load())
	assert.Equal(t, StateTerminated, endState)
	assert.True(t, endState.Terminal())
}

func TestDisconnectWhileStdinStalled(t *testing.T) {
	ctx := testContext(t)
	obs := &countingObserver{}
	srv := &Server{
		Path:      writeScript(t, `echo $$; exec sleep 1000`),
		KillGrace: 100 * time.Millisecond,
		Observer:  obs,
	}
	conn := dial(t, ctx, startServer(t, srv))

	out := readUntil(t, ctx, conn, "\r\n")
	pid, err := strconv.Atoi(strings.TrimSpace(out))
	require.NoError(t, err)

	// far more than the pipe buffer holds, and sleep never reads any of it
	chunk := strings.Repeat("x", 4000)
	for i := 0; i < 200; i++ {
		require.NoError(t, conn.Send(ctx, transport.Input(chunk)))
	}
	require.Eventually(t, func() bool { return obs.inputs.Load() == 200 }, 5*time.Second, 10*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return processGone(pid) }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return srv.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateTerminated, State(obs.endState.Load()))
}

func TestLargeInputEvent(t *testing.T) {
	ctx := testContext(t)
	srv := &Server{Path: writeScript(t, `head -c 40000 > /dev/null; echo got it; exec cat > /dev/null`)}
	conn := dial(t, ctx, startServer(t, srv))

	require.NoError(t, conn.Send(ctx, transport.Input(strings.Repeat("7", 40000))))

	readUntil(t, ctx, conn, "got it\r\n")
	assert.Equal(t, 1, srv.Len())
}

func TestLargeOutputWriteIsOneEvent(t *testing.T) {
	ctx := testContext(t)
	outFile := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(outFile, []byte(strings.Repeat("x", 6000)), 0644))
	t.Setenv("WEBCLI_TEST_OUT", outFile)

	srv := &Server{Path: writeScript(t, `cat "$WEBCLI_TEST_OUT"; exec cat > /dev/null`)}
	conn := dial(t, ctx, startServer(t, srv))

	ev, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, transport.Output(strings.Repeat("x", 6000)), ev)
}

func TestKillGraceEscalates(t *testing.T) {
	ctx := testContext(t)
	srv := &Server{
		Path:      writeScript(t, `trap '' TERM; echo $$; while :; do read x; done`),
		KillGrace: 100 * time.Millisecond,
	}
	conn := dial(t, ctx, startServer(t, srv))

	out := readUntil(t, ctx, conn, "\r\n")
	pid, err := strconv.Atoi(strings.TrimSpace(out))
	require.NoError(t, err)

	conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return processGone(pid) }, 5*time.Second, 10*time.Millisecond)
}

func TestIdleTimeout(t *testing.T) {
	ctx := testContext(t)
	srv := &Server{
		Path:        writeScript(t, `exec cat`),
		IdleTimeout: 200 * time.Millisecond,
	}
	conn := dial(t, ctx, startServer(t, srv))

	out := readUntil(t, ctx, conn, "of inactivity]")
	assert.Equal(t, fmt.Sprintf(idleFormat, 200*time.Millisecond), out)

	_, err := conn.Read(ctx)
	assert.ErrorIs(t, err, transport.ErrDisconnected)
	require.Eventually(t, func() bool { return srv.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestServerCloseTearsDownSessions(t *testing.T) {
	ctx := testContext(t)
	srv := &Server{Path: writeScript(t, `echo $$; exec cat`)}
	url := startServer(t, srv)

	var pids []int
	for i := 0; i < 3; i++ {
		conn := dial(t, ctx, url)
		pid, err := strconv.Atoi(strings.TrimSpace(readUntil(t, ctx, conn, "\r\n")))
		require.NoError(t, err)
		pids = append(pids, pid)
	}
	require.Equal(t, 3, srv.Len())

	srv.Close()

	for _, pid := range pids {
		require.Eventually(t, func() bool { return processGone(pid) }, 5*time.Second, 10*time.Millisecond)
	}
}
