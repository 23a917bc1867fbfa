package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"golang.org/x/term"
)

type Spinner struct {
	*spinner.Spinner
	msg string

	// plain is set when the output is not a terminal: nothing is animated
	// and only final messages are printed.
	plain bool
	out   io.Writer
}

// NewSpinner creates a new spinner with the given message.
func NewSpinner(msg string) *Spinner {
	s := &Spinner{
		Spinner: spinner.New(
			spinner.CharSets[14],
			200*time.Millisecond,
			spinner.WithHiddenCursor(true),
			spinner.WithWriter(os.Stderr),
			spinner.WithSuffix(" "+msg),
		),
		msg:   msg,
		plain: !term.IsTerminal(int(os.Stderr.Fd())),
		out:   os.Stderr,
	}
	if !s.plain {
		s.Start()
	}
	return s
}

// UpdateMessage updates the spinner message.
// This function is safe to call on a nil Spinner.
func (s *Spinner) UpdateMessage(msg string) {
	if s == nil {
		return
	}
	s.Spinner.Suffix = " " + msg
	s.msg = msg
}

// Success stops the spinner and prints a success message.
// This function is safe to call on a nil Spinner.
func (s *Spinner) Success(msg ...string) {
	s.finish(color.HiGreenString("✓"), msg)
}

// Warn stops the spinner and prints a warning message.
// This function is safe to call on a nil Spinner.
func (s *Spinner) Warn(msg ...string) {
	s.finish(color.HiYellowString("!"), msg)
}

// Fail stops the spinner and prints a failure message.
// This function is safe to call on a nil Spinner.
func (s *Spinner) Fail(msg ...string) {
	s.finish(color.HiRedString("✗"), msg)
}

func (s *Spinner) finish(symbol string, msg []string) {
	if s == nil {
		return
	}
	if len(msg) == 0 {
		msg = []string{s.msg}
	}

	final := fmt.Sprintf("%s %s\n", symbol, msg[0])
	if s.plain {
		fmt.Fprint(s.out, final)
		return
	}
	s.Spinner.FinalMSG = final
	s.Stop()
}
