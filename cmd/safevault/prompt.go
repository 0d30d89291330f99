package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"golang.org/x/term"

	"github.com/mhmdtwsm/GradProject-sub000/internal/crypto"
)

var stdin = bufio.NewReader(os.Stdin)

// commandContext is cancelled on Ctrl-C so a running key derivation stops.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// promptPassword reads a secret without echo. Piped input is read one line
// at a time so scripts can feed passwords on stdin.
func promptPassword(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		password, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		return password, nil
	}

	line, err := stdin.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

// promptNewPassword asks twice on a terminal and fails on mismatch.
func promptNewPassword(prompt string) ([]byte, error) {
	password, err := promptPassword(prompt)
	if err != nil {
		return nil, err
	}
	if len(password) == 0 {
		return nil, fmt.Errorf("password must not be empty")
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return password, nil
	}

	confirm, err := promptPassword("Repeat password: ")
	if err != nil {
		crypto.Wipe(password)
		return nil, err
	}
	defer crypto.Wipe(confirm)

	if !bytes.Equal(password, confirm) {
		crypto.Wipe(password)
		return nil, fmt.Errorf("passwords do not match")
	}
	return password, nil
}

// confirm asks a yes/no question and defaults to no.
func confirm(question string) (bool, error) {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	line, err := stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
