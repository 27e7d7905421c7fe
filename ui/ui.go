// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ui renders live progress to a terminal: the thread table for
// subcmd/ps, falling back to plain log lines when stdout isn't a TTY.
package ui

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"golang.org/x/term"
)

// DurationThreshold is the shortest step worth reporting; a Spinner that
// finishes faster than this is erased rather than printed, so a terminal
// watching many fast scheduler operations doesn't scroll on noise.
const DurationThreshold = 500 * time.Millisecond

// FormatDuration renders d the way the spinners do: sub-minute durations as seconds with one decimal, longer ones as
// minutes and seconds.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", d/time.Minute, (d%time.Minute)/time.Second)
}

// Spinner reports the progress of one long-running operation.
type Spinner interface {
	Start(format string, args ...any)
	Stop(err error)
	Done(format string, args ...any)
}

// UI is the rendering surface subcmd/ps reports through.
// TermUI redraws in place on a TTY; LogUI appends plain lines otherwise.
type UI interface {
	Height() int
	Width() int
	PrintLines(msgs ...string)
	NewSpinner() Spinner
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Default is the active UI, selected by Init based on whether stdout is
// attached to a terminal.
var Default UI = LogUI{}

// Init selects Default for the current process: TermUI when stdout is a
// TTY, LogUI otherwise. Call once from main before registering
// subcommands.
func Init() {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		Default = &TermUI{}
		return
	}
	Default = LogUI{}
}

// Restore is a no-op: unlike a curses-style UI, TermUI never puts the
// terminal into raw mode (it only writes cursor-movement escapes), so
// there is no saved terminal state to restore. Kept so main.go can pair
// it with Init the same way the teacher brackets its own UI lifecycle.
func Restore() {}

// LogUI is the non-terminal fallback: every call is a plain, newline
// terminated append, safe for a pipe or log file.
type LogUI struct{}

func (LogUI) Height() int { return 0 }
func (LogUI) Width() int  { return 0 }

func (LogUI) PrintLines(msgs ...string) {
	for _, m := range msgs {
		if m == "\n" {
			continue
		}
		m = strings.TrimPrefix(m, "\n")
		if !strings.HasSuffix(m, "\n") {
			m += "\n"
		}
		fmt.Fprint(os.Stdout, StripANSIEscapeCodes(m))
	}
}

type logSpinner struct {
	started time.Time
	msg     string
}

func (s *logSpinner) Start(format string, args ...any) {
	s.started = time.Now()
	s.msg = fmt.Sprintf(format, args...)
	fmt.Printf("%s...\n", s.msg)
}

func (s *logSpinner) Stop(err error) {
	if err != nil {
		fmt.Printf("%6s %s failed %v\n", FormatDuration(time.Since(s.started)), s.msg, err)
	}
}

func (s *logSpinner) Done(format string, args ...any) {
	fmt.Printf("%6s %s %s\n", FormatDuration(time.Since(s.started)), s.msg, fmt.Sprintf(format, args...))
}

func (LogUI) NewSpinner() Spinner { return &logSpinner{} }

func (LogUI) Infof(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format, args...)
}

func (LogUI) Warningf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}

func (LogUI) Errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}

var ansiEscape = regexp.MustCompile("\x1b\\[[0-9;]*[a-zA-Z]")

// StripANSIEscapeCodes removes terminal escape sequences, for TermUI's
// no-color mode and for measuring a line's true printable width.
func StripANSIEscapeCodes(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// writeLinesMaxWidth writes msgs to buf, one per line. A line containing
// its own newline is assumed pre-formatted and passed through; any other
// line that would overflow width columns (measured after stripping ANSI
// escapes) has its middle elided.
func writeLinesMaxWidth(buf *bytes.Buffer, msgs []string, width int) {
	for _, m := range msgs {
		if strings.Contains(m, "\n") {
			buf.WriteString(m)
			continue
		}
		if width > 3 {
			if plain := StripANSIEscapeCodes(m); len(plain) > width {
				half := (width - 3) / 2
				m = plain[:half] + "..." + plain[len(plain)-half:]
			}
		}
		buf.WriteString(m)
		buf.WriteByte('\n')
	}
}
