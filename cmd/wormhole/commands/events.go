package commands

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"wormhole/internal/domain"
)

// progressLine renders p as "1.2 MB / 4.0 MB (30%)".
func progressLine(p domain.Progress) string {
	pct := 100
	if p.Total > 0 {
		pct = int(p.Done * 100 / p.Total)
	}
	return fmt.Sprintf("%s / %s (%d%%)", humanize.Bytes(uint64(p.Done)), humanize.Bytes(uint64(p.Total)), pct)
}

// follow prints sess's events to out until the terminal one, calling on
// for each event first. It returns the terminal event.
func follow(out io.Writer, sess domain.TransferSession, on func(domain.Event) error) (domain.Event, error) {
	var last domain.Event
	for ev := range sess.Events() {
		last = ev
		if on != nil {
			if err := on(ev); err != nil {
				sess.Cancel()
				continue
			}
		}
		switch ev.Kind {
		case domain.EventConnected:
			fmt.Fprintf(out, "Connected (%s)\n", ev.Transport)
		case domain.EventProgress:
			fmt.Fprintf(out, "\r%s", progressLine(ev.Progress))
			if ev.Progress.Done == ev.Progress.Total {
				fmt.Fprintln(out)
			}
		}
	}
	switch last.Kind {
	case domain.EventFailed:
		return last, last.Err
	case domain.EventAborted:
		return last, domain.ErrAborted
	}
	return last, nil
}
