package transport

const (
	KindInput  = "input"
	KindOutput = "output"
)

// Event is a single message on the wire.
// Data is opaque text, it is never validated or length-checked beyond the WebSocket read limit.
type Event struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func Input(data string) Event { return Event{Type: KindInput, Data: data} }

func Output(data string) Event { return Event{Type: KindOutput, Data: data} }
