package commands

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/Zereker/framing"
)

const (
	ExitSuccess      = 0
	ExitCommandError = 1
	ExitDataError    = 2
)

// frameFlags registers the frame parameter flags shared by encode and decode.
type frameFlags struct {
	lengthBytes   int
	checksumBytes int
	digest        string
}

func (f *frameFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&f.lengthBytes, "p", 2, "length field width in bytes (1-8)")
	fs.IntVar(&f.checksumBytes, "c", 4, "payload checksum width in bytes (1-32)")
	fs.StringVar(&f.digest, "digest", "sha256", "digest: sha256, blake2b, sha3")
}

// options rejects zero widths, which the library would read as "use the default".
func (f *frameFlags) options() ([]framing.Option, error) {
	if f.lengthBytes <= 0 {
		return nil, errors.Wrapf(framing.ErrInvalidParams, "-p %d", f.lengthBytes)
	}
	if f.checksumBytes <= 0 {
		return nil, errors.Wrapf(framing.ErrInvalidParams, "-c %d", f.checksumBytes)
	}
	digest, err := framing.DigestByName(f.digest)
	if err != nil {
		return nil, err
	}
	return []framing.Option{
		framing.LengthBytesOption(f.lengthBytes),
		framing.ChecksumBytesOption(f.checksumBytes),
		framing.DigestOption(digest),
		framing.LoggerOption(discardLogger()),
	}, nil
}

// RunEncode runs the encode command.
func RunEncode(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var ff frameFlags
	ff.register(fs)
	isHex := fs.Bool("hex", false, "message argument is hex rather than text")
	if err := fs.Parse(args); err != nil {
		return ExitCommandError
	}

	msg := []byte(strings.Join(fs.Args(), " "))
	if *isHex {
		var err error
		if msg, err = hex.DecodeString(strings.Join(fs.Args(), "")); err != nil {
			fmt.Fprintf(stderr, "Error: invalid hex message: %v\n", err)
			return ExitCommandError
		}
	}

	opts, err := ff.options()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitCommandError
	}

	frame, err := framing.AppendFrame(nil, msg, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitDataError
	}

	fmt.Fprintln(stdout, hex.EncodeToString(frame))
	return ExitSuccess
}

// RunDecode runs the decode command. Hex comes from the arguments or, when
// there are none, from stdin; whitespace is ignored.
func RunDecode(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var ff frameFlags
	ff.register(fs)
	maxLen := fs.Int("max", 64*1024, "largest payload accepted")
	if err := fs.Parse(args); err != nil {
		return ExitCommandError
	}

	input := strings.Join(fs.Args(), "")
	if input == "" {
		data, err := io.ReadAll(bufio.NewReader(stdin))
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitCommandError
		}
		input = string(data)
	}
	raw, err := hex.DecodeString(strings.Join(strings.Fields(input), ""))
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid hex input: %v\n", err)
		return ExitCommandError
	}

	opts, err := ff.options()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitCommandError
	}
	opts = append(opts, framing.BufferSizeOption(framing.FrameSize(ff.lengthBytes, ff.checksumBytes, *maxLen)))

	dec, err := framing.NewPlainDecoder(len(raw)+1, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitCommandError
	}
	if err := dec.Add(raw); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitCommandError
	}

	buf := make([]byte, *maxLen)
	for i := 0; ; i++ {
		n, err := dec.Read(buf)
		if errors.Is(err, framing.ErrWouldBlock) {
			break
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitDataError
		}
		fmt.Fprintf(stdout, "frame %d: %d bytes %s\n", i, n, render(buf[:n]))
	}

	st := dec.Stats()
	fmt.Fprintf(stdout, "frames=%d noise=%d length_mismatches=%d payload_mismatches=%d dropped=%d pending=%d\n",
		st.Frames, st.NoiseBytes, st.LengthMismatches, st.PayloadMismatches, st.CapacityDrops, dec.Buffered())
	if st.Frames == 0 {
		return ExitDataError
	}
	return ExitSuccess
}

// render quotes printable payloads and hex-encodes the rest.
func render(p []byte) string {
	if utf8.Valid(p) {
		s := string(p)
		if strconv.CanBackquote(s) || s == "" {
			return strconv.Quote(s)
		}
	}
	return "0x" + hex.EncodeToString(p)
}
