// Package report writes the launcher's human-readable progress lines and
// mirrors lifecycle events to journald when a journal is available.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/coreos/go-systemd/v22/journal"
)

// Journal field names for launcher lifecycle events.
const (
	FieldEvent   = "GLAUNCH_EVENT"
	FieldBackend = "GLAUNCH_BACKEND"
	FieldPID     = "GLAUNCH_PID"
)

// Event values for FieldEvent.
const (
	EventProbing = "probing"
	EventFailed  = "failed"
	EventAdopted = "adopted"
	EventFinal   = "final"
)

// Console implements launcher.Reporter with line-oriented output plus an
// optional journald mirror.
type Console struct {
	out     io.Writer
	journal bool
}

func NewConsole(out io.Writer) *Console {
	return &Console{
		out:     out,
		journal: journal.Enabled(),
	}
}

func (c *Console) Probing(label string) {
	fmt.Fprintf(c.out, "trying %s\n", label)
	c.send(journal.PriInfo, "trying "+label, map[string]string{
		FieldEvent:   EventProbing,
		FieldBackend: label,
	})
}

func (c *Console) Failed(label string) {
	fmt.Fprintf(c.out, "✗ %s\n", label)
	c.send(journal.PriWarning, label+" failed", map[string]string{
		FieldEvent:   EventFailed,
		FieldBackend: label,
	})
}

func (c *Console) Adopted(label string, pid int) {
	fmt.Fprintf(c.out, "✓ %s\n", label)
	c.send(journal.PriInfo, label+" adopted", map[string]string{
		FieldEvent:   EventAdopted,
		FieldBackend: label,
		FieldPID:     strconv.Itoa(pid),
	})
}

func (c *Console) FinalAttempt(label string) {
	fmt.Fprintf(c.out, "falling back to %s environment\n", label)
	c.send(journal.PriNotice, "falling back to "+label, map[string]string{
		FieldEvent:   EventFinal,
		FieldBackend: label,
	})
}

func (c *Console) send(pri journal.Priority, msg string, fields map[string]string) {
	if !c.journal {
		return
	}
	_ = journal.Send(msg, pri, fields)
}
