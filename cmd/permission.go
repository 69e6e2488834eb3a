package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/bnema/giveaway-cli/internal/ports"
)

var errPermissionDeclined = fmt.Errorf("%w: discovery was not allowed", domain.ErrPermissionDenied)

const permissionPrompt = "Allow giveaway to discover and announce this device to people nearby? [y/N] "

// promptGate asks once on the terminal and remembers the answer for the rest
// of the process.
type promptGate struct {
	in        io.Reader
	out       io.Writer
	assumeYes bool

	once    sync.Once
	granted bool
	err     error
}

var _ ports.PermissionGate = (*promptGate)(nil)

func newPromptGate(in io.Reader, out io.Writer, assumeYes bool) *promptGate {
	return &promptGate{in: in, out: out, assumeYes: assumeYes}
}

func (g *promptGate) Request(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	g.once.Do(func() {
		if g.assumeYes {
			g.granted = true
			return
		}
		if g.in == nil {
			return
		}
		if g.out != nil {
			_, _ = fmt.Fprint(g.out, permissionPrompt)
		}

		answer, err := bufio.NewReader(g.in).ReadString('\n')
		if err != nil && answer == "" {
			if err != io.EOF {
				g.err = fmt.Errorf("read permission answer: %w", err)
			}
			return
		}

		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			g.granted = true
		}
	})

	return g.granted, g.err
}
