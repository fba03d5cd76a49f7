// Package command implements the operator IPC: a filesystem queue of
// small JSON command files plus a polling consumer feeding the
// orchestrator through a bounded channel.
package command

import "time"

// Operator verbs.
const (
	VerbStatus    = "status"
	VerbPortfolio = "portfolio"
	VerbDefcon    = "defcon"
	VerbHold      = "hold"
	VerbResume    = "resume"
	VerbYes       = "yes"
	VerbNo        = "no"
	VerbRefresh   = "refresh"
	VerbShutdown  = "shutdown"
	VerbEstop     = "estop"
	VerbMode      = "mode"
	VerbInterval  = "interval"
)

var knownVerbs = map[string]struct{}{
	VerbStatus: {}, VerbPortfolio: {}, VerbDefcon: {},
	VerbHold: {}, VerbResume: {}, VerbYes: {}, VerbNo: {},
	VerbRefresh: {}, VerbShutdown: {}, VerbEstop: {},
	VerbMode: {}, VerbInterval: {},
}

// Known reports whether verb is part of the command surface.
func Known(verb string) bool {
	_, ok := knownVerbs[verb]
	return ok
}

// Command is one operator instruction.
type Command struct {
	ID         string    `json:"id"`
	Verb       string    `json:"verb"`
	Args       []string  `json:"args"`
	ReceivedAt time.Time `json:"received_at"`

	inflightPath string
}

// Arg returns the i-th argument, or "".
func (c *Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}
