package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Neurotech-Hub/SOLAR-ControllerV3/host/serial"
)

// client is a thin line-oriented session with the master node.
type client struct {
	port serial.Port
	buf  []byte
	line []byte
}

func dial() (*client, error) {
	cfg := serial.DefaultConfig(device)
	cfg.Baud = baud
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return &client{port: port, buf: make([]byte, 256)}, nil
}

func (c *client) close() {
	c.port.Close()
}

// send writes one command line.
func (c *client) send(line string) error {
	if verbose {
		fmt.Println(">> " + line)
	}
	_, err := c.port.Write([]byte(line + "\n"))
	return err
}

// readLine assembles the next newline-terminated line. The port's read
// timeout makes each Read a bounded poll, so the deadline is honored
// even on a silent link.
func (c *client) readLine(deadline time.Time) (string, error) {
	for time.Now().Before(deadline) {
		n, err := c.port.Read(c.buf)
		if err != nil && err != io.EOF {
			return "", err
		}
		for _, b := range c.buf[:n] {
			switch b {
			case '\r':
			case '\n':
				if len(c.line) == 0 {
					continue
				}
				s := string(c.line)
				c.line = c.line[:0]
				return s, nil
			default:
				c.line = append(c.line, b)
			}
		}
	}
	return "", fmt.Errorf("timed out waiting for device response")
}

// collect prints incoming lines until a terminal token (EOT,
// PROGRAM_ACK, FRAME_SET, ERR) or the deadline. Returns an error for
// ERR lines so the exit code reflects the device's answer.
func (c *client) collect(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		line, err := c.readLine(deadline)
		if err != nil {
			return err
		}
		if !verbose && strings.HasPrefix(line, "DEBUG:") {
			continue
		}
		fmt.Println(line)
		switch {
		case strings.HasPrefix(line, "ERR:"):
			return fmt.Errorf("device reported %s", line)
		case line == "EOT",
			strings.HasPrefix(line, "PROGRAM_ACK:"),
			strings.HasPrefix(line, "FRAME_SET:"):
			return nil
		}
	}
}

// roundTrip is the common send-then-wait helper.
func roundTrip(line string, timeout time.Duration) error {
	c, err := dial()
	if err != nil {
		return err
	}
	defer c.close()
	if err := c.send(line); err != nil {
		return err
	}
	return c.collect(timeout)
}
