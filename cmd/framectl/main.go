// framectl encodes, decodes, serves and replays framed byte streams.
package main

import (
	"fmt"
	"os"

	"github.com/Zereker/framing/cmd/framectl/commands"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(commands.ExitCommandError)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var exitCode int
	switch cmd {
	case "encode":
		exitCode = commands.RunEncode(args, os.Stdout, os.Stderr)
	case "decode":
		exitCode = commands.RunDecode(args, os.Stdin, os.Stdout, os.Stderr)
	case "listen":
		exitCode = commands.RunListen(args, os.Stdout, os.Stderr)
	case "chat":
		exitCode = commands.RunChat(args, os.Stdout, os.Stderr)
	case "replay":
		exitCode = commands.RunReplay(args, os.Stdout, os.Stderr)
	case "help", "-h", "--help":
		printUsage()
		exitCode = commands.ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		exitCode = commands.ExitCommandError
	}

	os.Exit(exitCode)
}

func printUsage() {
	fmt.Println(`framectl - framed byte stream tool

Usage:
  framectl <command> [options] [args...]

Commands:
  encode   Frame a message and print the frame as hex
  decode   Decode frames from hex input and print the payloads
  listen   Serve framed TCP connections, fanning messages out to every peer
  chat     Interactive client: each line is sent as one frame
  replay   Print the events of a capture file

Examples:
  framectl encode -p 2 -c 4 hello
  framectl encode -hex 010203
  framectl decode a900030e...
  framectl listen -config framectl.toml
  framectl chat -addr 127.0.0.1:9000 -capture chat.cbor
  framectl replay -dir in chat.cbor`)
}
