// Package ingest reads the line protocol the host application uses to
// forward printer events and commands:
//
//	event <Name>                     printer lifecycle event
//	progress <percent>               print progress
//	temp <id> <actual> <target> ...  heater readings, one triple per heater
//	gcode <line>                     replies "handled" or "pass"
//	at <command>                     @ command
//	toggle                           toggle the lights
//	torch [off]                      activate or deactivate the torch
//	mode <name> [value]              apply a mode directly
//	status                           replies with the status as JSON
//
// Blank lines and lines starting with '#' are skipped. Unknown or malformed
// lines are logged and ignored.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"lautenbacher.net/p9813leds/effect"
)

// Target receives the decoded lines. *effect.Controller implements it.
type Target interface {
	OnEvent(name string)
	OnPrintProgress(percent int)
	OnHeaterTelemetry(readings map[string]effect.Reading)
	OnGcode(line string) bool
	OnAtCommand(command string)
	ToggleLights()
	ActivateTorch()
	DeactivateTorch()
	ApplyMode(m effect.Mode)
	ApplyModeValue(m effect.Mode, value int)
	Status() effect.Status
}

type Server struct {
	target Target
	mu     sync.Mutex
	out    io.Writer
}

// New replies to out. A nil out discards replies.
func New(target Target, out io.Writer) *Server {
	if out == nil {
		out = io.Discard
	}
	return &Server{target: target, out: out}
}

// MaxLineLength bounds a single input line. Longer lines are logged and
// dropped; reading continues with the next line.
const MaxLineLength = 64 * 1024

// Serve handles lines from in until EOF, a read error or ctx is done. When
// in is an io.Closer it is closed once ctx is done so a blocked read ends.
func (s *Server) Serve(ctx context.Context, in io.Reader) error {
	if c, ok := in.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}

	r := bufio.NewReaderSize(in, 4096)
	var line []byte
	overlong := false
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, io.EOF) {
				if len(line) > 0 && !overlong {
					s.Handle(string(line))
				}
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if !overlong {
			if len(line)+len(chunk) > MaxLineLength {
				overlong = true
				line = line[:0]
			} else {
				line = append(line, chunk...)
			}
		}
		if isPrefix {
			continue
		}

		if overlong {
			slog.Warn("Dropping overlong line", "limit", MaxLineLength)
		} else {
			s.Handle(string(line))
		}
		line = line[:0]
		overlong = false
	}
}

// Handle processes a single line.
func (s *Server) Handle(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}
	verb, rest := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		verb, rest = line[:i], strings.TrimSpace(line[i:])
	}

	switch strings.ToLower(verb) {
	case "event":
		s.target.OnEvent(rest)
	case "progress":
		percent, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			slog.Warn("Malformed progress line", "line", line, "error", err)
			return
		}
		s.target.OnPrintProgress(int(percent))
	case "temp":
		readings, err := parseReadings(rest)
		if err != nil {
			slog.Warn("Malformed temp line", "line", line, "error", err)
			return
		}
		s.target.OnHeaterTelemetry(readings)
	case "gcode":
		if s.target.OnGcode(rest) {
			s.reply("handled")
		} else {
			s.reply("pass")
		}
	case "at":
		s.target.OnAtCommand(rest)
	case "toggle":
		s.target.ToggleLights()
	case "torch":
		if strings.EqualFold(rest, "off") {
			s.target.DeactivateTorch()
		} else {
			s.target.ActivateTorch()
		}
	case "mode":
		s.handleMode(line, rest)
	case "status":
		data, err := json.Marshal(s.target.Status())
		if err != nil {
			slog.Error("Failed to encode status", "error", err)
			return
		}
		s.reply(string(data))
	default:
		slog.Debug("Ignoring unknown line", "line", line)
	}
}

func (s *Server) handleMode(line, rest string) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		slog.Warn("Mode line without mode", "line", line)
		return
	}
	mode, ok := effect.ParseMode(fields[0])
	if !ok {
		slog.Debug("Ignoring unknown mode", "mode", fields[0])
		return
	}
	if len(fields) == 1 {
		s.target.ApplyMode(mode)
		return
	}
	value, err := strconv.Atoi(fields[1])
	if err != nil {
		slog.Warn("Malformed mode value", "line", line, "error", err)
		return
	}
	s.target.ApplyModeValue(mode, value)
}

// parseReadings decodes "T0 200.5 210 B 60 60".
func parseReadings(s string) (map[string]effect.Reading, error) {
	fields := strings.Fields(s)
	if len(fields)%3 != 0 {
		return nil, fmt.Errorf("want triples of id, actual, target, got %d fields", len(fields))
	}
	readings := make(map[string]effect.Reading, len(fields)/3)
	for i := 0; i < len(fields); i += 3 {
		actual, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("actual of %s: %w", fields[i], err)
		}
		target, err := strconv.ParseFloat(fields[i+2], 64)
		if err != nil {
			return nil, fmt.Errorf("target of %s: %w", fields[i], err)
		}
		readings[fields[i]] = effect.Reading{Actual: actual, Target: target}
	}
	return readings, nil
}

func (s *Server) reply(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintln(s.out, msg); err != nil {
		slog.Warn("Failed to write reply", "error", err)
	}
}
