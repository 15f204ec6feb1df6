package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var errPassphraseMismatch = errors.New("passphrases do not match")

// prompter reads secrets from a terminal without echo, or line by line from
// any other reader so the CLI can be scripted.
type prompter struct {
	out   io.Writer
	tty   int
	isTTY bool
	buf   *bufio.Reader
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.tty = int(f.Fd())
		p.isTTY = true
	} else {
		p.buf = bufio.NewReader(in)
	}
	return p
}

func (p *prompter) secret(label string) (string, error) {
	fmt.Fprint(p.out, label)
	if p.isTTY {
		b, err := term.ReadPassword(p.tty)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("read passphrase: %w", err)
		}
		return string(b), nil
	}
	line, err := p.buf.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// confirmed prompts twice and requires both entries to match.
func (p *prompter) confirmed(label string) (string, error) {
	first, err := p.secret(label)
	if err != nil {
		return "", err
	}
	second, err := p.secret("Repeat " + strings.ToLower(label[:1]) + label[1:])
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errPassphraseMismatch
	}
	return first, nil
}
