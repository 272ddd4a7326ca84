package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/AltairaLabs/livecoach/providers"
	"github.com/AltairaLabs/livecoach/providers/chat"
	"github.com/AltairaLabs/livecoach/providers/gemini"
)

// console prints statuses to errOut and streams answers to out. A turn is
// printed only when its answer was not already streamed.
type console struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	status string

	// shown is the part of the current answer already written.
	shown string
	// last is the most recent answer written in full.
	last string
}

func newConsole(out, errOut io.Writer) *console {
	return &console{out: out, errOut: errOut}
}

func (c *console) OnStatusUpdate(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status == gemini.StatusListening || status == chat.StatusReady {
		c.finishAnswer()
	}
	if status == c.status {
		return
	}
	c.status = status
	fmt.Fprintf(c.errOut, "[%s]\n", status)
}

// OnResponse writes the new suffix of the cumulative answer.
func (c *console) OnResponse(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !strings.HasPrefix(text, c.shown) {
		c.finishAnswer()
	}
	fmt.Fprint(c.out, text[len(c.shown):])
	c.shown = text
}

func (c *console) OnConversationTurn(turn providers.ConversationTurn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finishAnswer()
	if turn.AIResponse == c.last {
		return
	}
	if turn.UserInput != "" {
		fmt.Fprintf(c.out, "\n> %s\n", turn.UserInput)
	}
	fmt.Fprintf(c.out, "%s\n\n", turn.AIResponse)
	c.last = turn.AIResponse
}

// finishAnswer ends a streamed answer. Must be called with c.mu held.
func (c *console) finishAnswer() {
	if c.shown == "" {
		return
	}
	fmt.Fprint(c.out, "\n\n")
	c.last, c.shown = c.shown, ""
}
