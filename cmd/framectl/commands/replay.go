package commands

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Zereker/framing/capture"
)

// RunReplay runs the replay command.
func RunReplay(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	connID := fs.String("conn", "", "only events of this connection id")
	dir := fs.String("dir", "", "only events in this direction: in, out")
	if err := fs.Parse(args); err != nil {
		return ExitCommandError
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Error: expected one capture file")
		return ExitCommandError
	}

	filter := capture.Filter{ConnectionID: *connID}
	switch strings.ToLower(*dir) {
	case "":
	case "in":
		d := capture.DirectionIn
		filter.Direction = &d
	case "out":
		d := capture.DirectionOut
		filter.Direction = &d
	default:
		fmt.Fprintf(stderr, "Error: unknown direction %q\n", *dir)
		return ExitCommandError
	}

	r, err := capture.Open(fs.Arg(0), filter)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitCommandError
	}
	defer r.Close()

	for {
		e, err := r.Next()
		if err == io.EOF {
			return ExitSuccess
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitDataError
		}
		trunc := ""
		if e.Truncated {
			trunc = " (truncated)"
		}
		peer := e.ConnectionID
		if e.RemoteAddr != "" {
			peer += "@" + e.RemoteAddr
		}
		fmt.Fprintf(stdout, "%s %-3s %s %d bytes%s %s\n",
			e.Timestamp.Format(time.RFC3339Nano), e.Direction, peer, e.Size, trunc, render(e.Payload))
	}
}
