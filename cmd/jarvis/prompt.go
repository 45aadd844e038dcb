package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// termPrompter asks for a profile password on the controlling terminal
// without echo. When stdin is not a terminal it reads a plain line from
// the shared input reader.
type termPrompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
}

func newTermPrompter(in *bufio.Reader, out io.Writer) *termPrompter {
	return &termPrompter{in: in, out: out, fd: int(os.Stdin.Fd())}
}

func (p *termPrompter) PromptPassword(ctx context.Context, profileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintf(p.out, "Password for %s: ", profileName)

	if term.IsTerminal(p.fd) {
		pw, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimSpace(string(pw)), nil
	}

	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			return "", nil
		}
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
