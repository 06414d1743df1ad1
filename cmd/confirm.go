package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/Tiliavir/timesheet-grid/internal/grid"
)

// promptConfirmer asks on out and reads the answer from the REPL's own
// scanner so confirmation lines are not lost to a second reader.
type promptConfirmer struct {
	in  *bufio.Scanner
	out io.Writer
}

func (p promptConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintf(p.out, "%s [y/N] ", prompt)
	if !p.in.Scan() {
		return false, p.in.Err()
	}
	answer := strings.ToLower(strings.TrimSpace(p.in.Text()))
	return answer == "y" || answer == "yes", nil
}

// newConfirmer prompts only when enabled and stdin is a terminal; piped
// input is treated as already confirmed.
func newConfirmer(in *bufio.Scanner, out io.Writer, enabled, interactive bool) grid.Confirmer {
	if !enabled || !interactive {
		return grid.AlwaysConfirm
	}
	return promptConfirmer{in: in, out: out}
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
