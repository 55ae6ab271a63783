package llm

import (
	"bytes"
	"encoding/json"
	"strings"
)

// doneSentinel terminates an OpenAI-compatible SSE stream.
const doneSentinel = "[DONE]"

// Accumulator reconstructs the assistant reply from a relayed SSE byte
// stream. It implements io.Writer so the relay can tee chunks through it
// without re-framing: partial lines are buffered across writes.
type Accumulator struct {
	pending []byte
	text    strings.Builder
	done    bool
}

func (a *Accumulator) Write(p []byte) (int, error) {
	if a.done {
		return len(p), nil
	}
	a.pending = append(a.pending, p...)
	for {
		i := bytes.IndexByte(a.pending, '\n')
		if i < 0 {
			return len(p), nil
		}
		line := a.pending[:i]
		a.pending = a.pending[i+1:]
		a.feedLine(string(bytes.TrimRight(line, "\r")))
		if a.done {
			a.pending = nil
			return len(p), nil
		}
	}
}

// Finish consumes a trailing line the stream never newline-terminated.
// Call once at end of stream, before reading Text.
func (a *Accumulator) Finish() {
	if a.done || len(a.pending) == 0 {
		return
	}
	line := a.pending
	a.pending = nil
	a.feedLine(string(bytes.TrimRight(line, "\r")))
}

// Text returns the assistant content accumulated so far.
func (a *Accumulator) Text() string {
	return a.text.String()
}

// Done reports whether the [DONE] sentinel was seen.
func (a *Accumulator) Done() bool {
	return a.done
}

func (a *Accumulator) feedLine(line string) {
	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return
	}
	data = strings.TrimSpace(data)
	if data == doneSentinel {
		a.done = true
		return
	}

	var event struct {
		Choices []struct {
			Delta struct {
				Content any `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return
	}
	if len(event.Choices) == 0 {
		return
	}
	if piece, ok := event.Choices[0].Delta.Content.(string); ok {
		a.text.WriteString(piece)
	}
}
