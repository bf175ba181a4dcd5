package display

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Counter names cycles by number, with nothing on screen
type Counter struct {
	// Start is the first number
	Start int

	// Limit is the number of names to produce; zero is unlimited
	Limit int

	// Interval is waited before every name after the first
	Interval time.Duration

	n int
}

// Next implements acquire.Sequencer
func (c *Counter) Next(ctx context.Context) (string, error) {
	if c.Limit > 0 && c.n >= c.Limit {
		return "", io.EOF
	}
	if c.n > 0 {
		if err := sleep(ctx, c.Interval); err != nil {
			return "", err
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}
	name := strconv.Itoa(c.Start + c.n)
	c.n++
	return name, nil
}

// Manual waits for the operator to press Enter before every capture.
// Typing "end" (or closing the input) finishes the session; any other text
// becomes the name of the capture.
type Manual struct {
	In     io.Reader
	Prompt io.Writer

	scn   *bufio.Scanner
	lines chan string
	count int
}

// Next implements acquire.Sequencer
func (m *Manual) Next(ctx context.Context) (string, error) {
	if m.lines == nil {
		m.lines = make(chan string)
		m.scn = bufio.NewScanner(m.In)
		go func() {
			defer close(m.lines)
			for m.scn.Scan() {
				m.lines <- m.scn.Text()
			}
		}()
	}
	if m.Prompt != nil {
		fmt.Fprint(m.Prompt, "Press Enter to capture images (\"end\" to stop)... ")
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-m.lines:
		if !ok {
			return "", io.EOF
		}
		line = strings.TrimSpace(line)
		if strings.EqualFold(line, "end") {
			return "", io.EOF
		}
		m.count++
		if line == "" {
			line = strconv.Itoa(m.count)
		}
		return line, nil
	}
}
