package dom

// EventKind identifies a synthetic event dispatched into the host page.
type EventKind string

const (
	EventInput    EventKind = "input"
	EventClick    EventKind = "click"
	EventKeyDown  EventKind = "keydown"
	EventKeyPress EventKind = "keypress"
	EventKeyUp    EventKind = "keyup"
)

// Event is one entry in the page's synthetic event journal. Simulated user
// input is the only supported write channel to the host document, so the
// journal is the complete record of everything the engine did to the page.
type Event struct {
	Kind   EventKind
	Target string // Compact descriptor of the target node, e.g. "input#chat.box"
	Key    string // Key name for key events ("Enter")
	Value  string // Input value for input events
}
