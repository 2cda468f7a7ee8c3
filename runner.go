package hotswap

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/hotswap/pkg/domain"
)

// Runner feeds update packets read from a stream into a coordinator.
// Each non-empty line is one JSON encoded UpdatePacket, which is how a bundler
// watcher process pipes its output into the coordinator.
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Headless bool
}

// NewRunner creates a Runner. Input and Output must be set before Run.
func NewRunner() *Runner {
	return &Runner{}
}

// Run reads packets until EOF or ctx is done. Lines that do not decode into a
// packet, including lines over the packet size limit, are reported as
// MalformedUpdate events and on Output, then skipped.
func (r *Runner) Run(ctx context.Context, c *Coordinator) error {
	if r.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}

	if !r.Headless {
		fmt.Fprintf(r.Output, "--- hotswap %s: reading update packets ---\n", Version)
	}

	limit := maxPacketSize()
	reader := bufio.NewReaderSize(r.Input, 64*1024)
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, readErr := readLine(reader, limit)
		if readErr != nil && !errors.Is(readErr, io.EOF) && !errors.Is(readErr, ErrPacketTooLarge) {
			return fmt.Errorf("input error: %w", readErr)
		}
		if errors.Is(readErr, ErrPacketTooLarge) {
			r.malformed(ctx, c, line, fmt.Errorf("%w: limit=%d", ErrPacketTooLarge, limit))
			continue
		}

		if err := r.handle(ctx, c, line, string(raw)); err != nil {
			return err
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
	}
	return c.Wait(ctx)
}

func (r *Runner) handle(ctx context.Context, c *Coordinator, line int, raw string) error {
	text, err := SanitizeLine(strings.TrimSpace(raw))
	if err != nil {
		r.malformed(ctx, c, line, err)
		return nil
	}
	if text == "" || strings.HasPrefix(text, "#") {
		return nil
	}

	var packet domain.UpdatePacket
	if err := json.Unmarshal([]byte(text), &packet); err != nil {
		r.malformed(ctx, c, line, fmt.Errorf("%w: %w", domain.ErrMalformedUpdate, err))
		return nil
	}
	if err := c.Enqueue(ctx, packet); err != nil {
		if errors.Is(err, domain.ErrMalformedUpdate) {
			// Already reported by the coordinator.
			fmt.Fprintf(r.Output, "line %d: %v\n", line, err)
			return nil
		}
		return fmt.Errorf("line %d: %w", line, err)
	}
	return nil
}

func (r *Runner) malformed(ctx context.Context, c *Coordinator, line int, err error) {
	fmt.Fprintf(r.Output, "line %d: %v\n", line, err)
	c.ReportMalformed(ctx, fmt.Sprintf("line %d", line), err)
}

// readLine returns the next line without its newline. A line longer than limit
// is consumed up to its newline and reported as ErrPacketTooLarge, so the
// stream stays usable for the packets after it.
func readLine(br *bufio.Reader, limit int) ([]byte, error) {
	var (
		line    []byte
		tooLong bool
	)
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit+2 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if tooLong {
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			return nil, ErrPacketTooLarge
		}
		return line, err
	}
}
