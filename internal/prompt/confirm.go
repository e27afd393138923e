// Package prompt implements the confirmation gate shown before any
// destination file is created.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrDeclined is returned when the operator does not confirm.
var ErrDeclined = errors.New("confirmation declined")

const (
	keyCR = 13
	keyLF = 10
)

// Confirm writes message to out and waits for the operator. On a terminal a
// single Enter key confirms and any other key declines. Other inputs are read
// a line at a time: an empty line, "y" or "yes" confirm.
func Confirm(in io.Reader, out io.Writer, message string) error {
	fmt.Fprint(out, message)

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return confirmKey(f, out)
	}
	return confirmLine(in, out)
}

func confirmKey(f *os.File, out io.Writer) error {
	fd := int(f.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return confirmLine(f, out)
	}
	defer term.Restore(fd, state)

	var key [1]byte
	_, err = f.Read(key[:])
	// raw mode suppresses the echoed newline
	fmt.Fprint(out, "\r\n")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeclined, err)
	}
	if key[0] == keyCR || key[0] == keyLF {
		return nil
	}
	return ErrDeclined
}

func confirmLine(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		fmt.Fprintln(out)
		return fmt.Errorf("%w: %v", ErrDeclined, err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return nil
	default:
		return ErrDeclined
	}
}
