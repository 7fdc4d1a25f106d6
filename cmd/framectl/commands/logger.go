package commands

import (
	"io"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/Zereker/framing"
	"github.com/Zereker/framing/internal/logging"
)

func discardLogger() framing.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLogger(out io.Writer) zerolog.Logger {
	return logging.New(out, "framectl", logging.ProfileRuntime)
}
