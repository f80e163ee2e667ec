// Package terminal is the client half of webcli: it turns keystrokes into transport input events,
// renders output events, and keeps a history of command/response pairs.
//
// All state here belongs to one connection. A reconnect gets a new Adapter and Correlator.
package terminal
