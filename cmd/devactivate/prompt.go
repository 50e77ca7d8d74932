package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"devactivate/internal/session"
)

// consolePrompter collects activation fields from the terminal. Secure
// fields are read without echo when stdin is a terminal.
type consolePrompter struct {
	cmd *cobra.Command
	in  *bufio.Reader
}

func newConsolePrompter(cmd *cobra.Command) *consolePrompter {
	return &consolePrompter{
		cmd: cmd,
		in:  bufio.NewReader(cmd.InOrStdin()),
	}
}

func (p *consolePrompter) Prompt(ctx context.Context, req session.InputRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	label := req.Label
	if label == "" {
		label = req.Key
	}
	if req.Placeholder != "" {
		p.cmd.Printf("%s (%s): ", label, req.Placeholder)
	} else {
		p.cmd.Printf("%s: ", label)
	}

	if req.Secure {
		if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
			raw, err := term.ReadPassword(fd)
			p.cmd.Println()
			if err != nil {
				return "", fmt.Errorf("failed to read secure input for %s: %w", req.Key, err)
			}
			return string(raw), nil
		}
	}

	line, err := p.in.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input for %s: %w", req.Key, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
