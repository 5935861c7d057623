package respond

import "strings"

// Dispatcher extracts complete sentences from a still-open token stream so
// speech can start before generation finishes. It holds one rolling buffer
// for the lifetime of a single response; sentences are emitted strictly in
// terminator order, at most one per pushed token.
type Dispatcher struct {
	buffer string
	emit   func(sentence string)
}

func NewDispatcher(emit func(sentence string)) *Dispatcher {
	return &Dispatcher{emit: emit}
}

// Push appends one token and emits the first complete sentence, if any.
func (d *Dispatcher) Push(token string) {
	d.buffer += token
	if i := strings.IndexAny(d.buffer, ".?!"); i >= 0 {
		sentence := strings.TrimSpace(d.buffer[:i+1])
		d.buffer = d.buffer[i+1:]
		if sentence != "" {
			d.emit(sentence)
		}
	}
}

// Flush emits whatever remains in the buffer at end of stream.
func (d *Dispatcher) Flush() {
	if rest := strings.TrimSpace(d.buffer); rest != "" {
		d.emit(rest)
	}
	d.buffer = ""
}
