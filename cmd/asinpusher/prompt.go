package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

var errNotConfirmed = errors.New("push not confirmed")

// confirm asks a yes/no question on out and reads the answer from in. Anything other
// than y or yes declines.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
