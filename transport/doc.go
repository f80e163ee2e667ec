/*
Package transport is the event link between a terminal client and the webcli server. It uses WebSockets for bidi messaging, so a browser can speak it without any extra framing library.

Each WebSocket text message carries exactly one JSON-encoded Event. There are two event kinds:

  - "input" events are sent client->server and carry keystrokes, either a single control character (e.g. "\r") or a multi-character fragment from pasting or fast typing.
  - "output" events are sent server->client and carry an arbitrary chunk of subprocess output, which may contain partial or multiple lines.

Connect and disconnect are not events on the wire, they are the opening and closing of the WebSocket itself.

Within one direction, events are delivered in send order. Nothing is guaranteed across directions. There is no request/response framing, no versioning and no authentication.
*/
package transport
