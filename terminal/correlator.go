package terminal

import "strings"

// HistoryEntry is one submitted command and the output attributed to it.
type HistoryEntry struct {
	Command  string `json:"command"`
	Response string `json:"response"`
}

// Correlator pairs each submitted command with the next output chunk.
//
// It is single-shot: only the first chunk after a command is recorded, later chunks are left to the display.
// CLIs that stream a response in several chunks will only have the first one recorded.
// Correlator is not goroutine-safe, it is driven by one event loop.
type Correlator struct {
	history  []HistoryEntry
	awaiting bool
	render   func([]HistoryEntry)
}

// NewCorrelator returns an idle Correlator. render, if not nil, is called once every time a response is recorded.
func NewCorrelator(render func([]HistoryEntry)) *Correlator {
	return &Correlator{render: render}
}

// Submit records a new command and starts awaiting its response.
// Blank commands are ignored and false is returned.
func (c *Correlator) Submit(command string) bool {
	command = strings.TrimSpace(command)
	if command == "" {
		return false
	}
	// a command submitted while still awaiting leaves the previous entry with an empty response
	c.history = append(c.history, HistoryEntry{Command: command})
	c.awaiting = true
	return true
}

// Observe attributes chunk to the last command if one is awaiting a response.
// It returns true if the chunk was recorded.
func (c *Correlator) Observe(chunk string) bool {
	if !c.awaiting || len(c.history) == 0 {
		return false
	}
	c.history[len(c.history)-1].Response += chunk
	c.awaiting = false
	if c.render != nil {
		c.render(c.History())
	}
	return true
}

// Awaiting reports whether a submitted command has not seen any output yet.
func (c *Correlator) Awaiting() bool { return c.awaiting }

// History returns a copy of the recorded entries, oldest first.
func (c *Correlator) History() []HistoryEntry {
	h := make([]HistoryEntry, len(c.history))
	copy(h, c.history)
	return h
}
