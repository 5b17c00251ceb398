package keyring

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// PromptToken reads the release API token without echo. When stdin is not a
// terminal the first line of stdin is used, so the token can be piped in.
func PromptToken() (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return readTokenLine(os.Stdin)
	}

	fmt.Fprint(os.Stderr, "Enter release API token: ")

	// Prefer the controlling terminal over stdin
	fd := int(os.Stdin.Fd())
	tty, err := os.Open("/dev/tty")
	if err == nil {
		defer tty.Close()
		fd = int(tty.Fd())
	}

	tokenBytes, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}

	token := strings.TrimSpace(string(tokenBytes))
	if token == "" {
		return "", fmt.Errorf("no token entered")
	}
	return token, nil
}

func readTokenLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", fmt.Errorf("no token on standard input")
	}
	return token, nil
}
