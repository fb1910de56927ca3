package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// stdinPrompter reads MFA codes and confirmations from the terminal.
// One reader is shared so buffered input is never lost between prompts.
type stdinPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newStdinPrompter(in io.Reader, out io.Writer) *stdinPrompter {
	return &stdinPrompter{in: bufio.NewReader(in), out: out}
}

// PromptCode asks for the verification code the retailer sent
func (p *stdinPrompter) PromptCode(ctx context.Context) (string, error) {
	return p.readLine(ctx, "Enter the 6-digit verification code: ")
}

// WaitForEnter blocks until the user presses Enter or ctx is done
func (p *stdinPrompter) WaitForEnter(ctx context.Context, message string) error {
	_, err := p.readLine(ctx, message)
	return err
}

func (p *stdinPrompter) readLine(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil && !(r.err == io.EOF && r.line != "") {
			return "", fmt.Errorf("failed to read input: %w", r.err)
		}
		return strings.TrimSpace(r.line), nil
	}
}
