package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/relaycode/bubble/lib/logger"
	"golang.org/x/sync/errgroup"
)

// OutputPump concurrently drains a sandboxed command's stdout and stderr
// pipes so that neither can back-pressure the child, per spec.md §4.4.
type OutputPump struct {
	// maxCombined caps the length of CommandResult.Combined, in bytes. 0
	// means unbounded. A runaway command's own stdout/stderr are still
	// captured in full; only the combined rendering is truncated, so
	// Stdout/Stderr remain available for a caller that needs the whole
	// thing.
	maxCombined uint64
}

// NewOutputPump creates an OutputPump with no cap on Combined's length.
func NewOutputPump() *OutputPump { return &OutputPump{} }

// NewOutputPumpWithLimit creates an OutputPump that truncates Combined to
// maxCombined bytes, per the debug binary's BUBBLE_MAX_COMBINED_OUTPUT setting.
func NewOutputPumpWithLimit(maxCombined uint64) *OutputPump {
	return &OutputPump{maxCombined: maxCombined}
}

// Drain reads cmd's stdout and stderr concurrently to completion, then
// waits for the child to exit, and returns the assembled CommandResult.
// Both pipes are read in full even if one errors, so the exit code and
// whatever output was captured are never lost to a single stream's
// failure.
func (p *OutputPump) Drain(ctx context.Context, cmd *RunningCommand) (CommandResult, error) {
	return p.DrainLines(ctx, cmd, nil)
}

// LineFunc receives one line of output as it is read, tagged with the
// stream it came from ("stdout" or "stderr"), before Combined exists.
type LineFunc func(stream, line string)

// DrainLines is Drain plus an optional onLine callback invoked for every
// line as it is read off the child's pipes, so a caller such as
// bubbled's websocket route can forward lines to a client while the
// command is still running instead of waiting for Drain to return.
// onLine may be nil, in which case this behaves exactly like Drain.
func (p *OutputPump) DrainLines(ctx context.Context, cmd *RunningCommand, onLine LineFunc) (CommandResult, error) {
	log := logger.FromContext(ctx)

	var retStr, failStr string

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		retStr, err = drainLinesTo(cmd.Stdout(), "stdout", onLine)
		return err
	})
	g.Go(func() error {
		var err error
		failStr, err = drainLinesTo(cmd.Stderr(), "stderr", onLine)
		return err
	})

	drainErr := g.Wait()
	cmd.Stdout().Close()
	cmd.Stderr().Close()

	if drainErr != nil {
		log.WarnContext(ctx, "output pump: drain error", "invocation_id", cmd.InvocationID, "error", drainErr)
	}

	exitCode, err := cmd.Wait()
	if err != nil {
		return CommandResult{}, err
	}

	combined := buildCombined(exitCode, retStr, failStr)
	if p.maxCombined > 0 && uint64(len(combined)) > p.maxCombined {
		combined = truncateCombined(combined, p.maxCombined)
	}

	result := CommandResult{
		ExitCode:     exitCode,
		Stdout:       retStr,
		Stderr:       failStr,
		Combined:     combined,
		InvocationID: cmd.InvocationID,
	}
	return result, nil
}

// truncateCombined cuts combined down to maxBytes and appends a notice,
// so a caller can tell the capture was cut short rather than mistaking
// it for the whole output.
func truncateCombined(combined string, maxBytes uint64) string {
	notice := fmt.Sprintf("\n... [truncated, exceeded %d bytes]\n", maxBytes)
	cut := int(maxBytes)
	if cut > len(combined) {
		cut = len(combined)
	}
	return combined[:cut] + notice
}

// drainLinesTo reads r to EOF line by line, reassembling the text with a
// newline after every line (a final line without one gains one) and
// invoking onLine (if non-nil) for each line as it arrives. A
// scan error other than EOF is reported but whatever was read so far is
// still returned, since spec.md §4.4 treats the child's exit code as
// authoritative over a stream read glitch.
func drainLinesTo(r *os.File, stream string, onLine LineFunc) (string, error) {
	var b strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		b.WriteString(line)
		b.WriteByte('\n')
		if onLine != nil {
			onLine(stream, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return b.String(), fmt.Errorf("%w: %v", ErrStreamsUnavailable, err)
	}
	return b.String(), nil
}

// buildCombined renders the unified output string per spec.md §4.4: on
// success, stdout verbatim; on failure, stderr then stdout then the exit
// code line, with empty segments elided and exactly one newline between
// the segments that remain.
func buildCombined(exitCode int, retStr, failStr string) string {
	if exitCode == 0 {
		return retStr
	}

	var parts []string
	if s := strings.TrimRight(failStr, "\n"); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimRight(retStr, "\n"); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts, fmt.Sprintf("Exit code: %d", exitCode))

	return strings.Join(parts, "\n") + "\n"
}
