/*
Package session bridges one transport connection to one line-oriented subprocess.

Subprocesses are scoped to the WebSocket connection--that is, when the connection dies for any reason, the subprocess is sent a termination signal. A reconnecting client always gets a fresh Session and a fresh subprocess.

The lifecycle of a Session is:

 1. The client opens a WebSocket connection with the server.
 2. The server spawns the configured executable with no arguments. If that fails, one diagnostic output event naming the path is sent and the Session stays open but non-functional.
 3. Input events are written to the subprocess's stdin, with a lone "\r" translated to "\r\n". stdout and stderr are merged, newline-normalized to "\r\n" and sent as output events.
 4. When the subprocess exits, the server sends one output event with the exit code. There is no restart.
 5. When the client disconnects, the subprocess is sent SIGTERM, followed by SIGKILL if it is still running after the kill grace period.

The server does not buffer stdout or stderr, and there is no backpressure between the subprocess and the transport.
*/
package session
