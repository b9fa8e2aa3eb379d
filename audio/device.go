package audio

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

// ErrPickerCancelled is returned when the user aborts the device picker.
var ErrPickerCancelled = errors.New("device selection cancelled")

// SelectDevice lets the user pick a capture device with the arrow keys.
// With zero or one device there is nothing to choose: nil means "system
// default".
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	switch len(devices) {
	case 0:
		return nil, nil
	case 1:
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	cursor := 0
	render := func() {
		fmt.Fprint(os.Stderr, "\r\x1b[J")
		fmt.Fprint(os.Stderr, "Capture device (↑/↓ or j/k, enter to confirm):\r\n")
		for i, d := range devices {
			marker, tag := " ", ""
			if i == cursor {
				marker = ">"
			}
			if IsBluetooth(d.Name) {
				tag = " (bt)"
			}
			fmt.Fprintf(os.Stderr, " %s %s%s\r\n", marker, d.Name, tag)
		}
	}
	render()

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}

		move := 0
		switch {
		case n == 1 && (buf[0] == '\r' || buf[0] == '\n'):
			fmt.Fprint(os.Stderr, "\r\n")
			return &devices[cursor], nil
		case n == 1 && (buf[0] == 3 || buf[0] == 'q'): // ctrl+c
			fmt.Fprint(os.Stderr, "\r\n")
			return nil, ErrPickerCancelled
		case n == 1 && buf[0] == 'k':
			move = -1
		case n == 1 && buf[0] == 'j':
			move = 1
		case n == 3 && buf[0] == 0x1b && buf[1] == '[' && buf[2] == 'A':
			move = -1
		case n == 3 && buf[0] == 0x1b && buf[1] == '[' && buf[2] == 'B':
			move = 1
		}
		if next := cursor + move; next >= 0 && next < len(devices) {
			cursor = next
		}

		fmt.Fprintf(os.Stderr, "\x1b[%dA", len(devices)+1)
		render()
	}
}
