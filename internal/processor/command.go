package processor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

const maxLineBytes = 1 << 20

// CommandProcessor runs one external process per dispatch. The request is
// written to stdin as a single JSON object; the process answers with JSON
// lines on stdout. Lines are typed by a "type" field and the last line of
// type "result" carries the ProcessorResult. Other lines are logged.
type CommandProcessor struct {
	spec   ProviderSpec
	logger *slog.Logger
}

// NewCommandProcessor creates a processor for spec.
func NewCommandProcessor(spec ProviderSpec, logger *slog.Logger) *CommandProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandProcessor{spec: spec, logger: logger.With("provider", spec.Name)}
}

// line is the envelope of one stdout line.
type line struct {
	Type string `json:"type"`
	domain.ProcessorResult
}

// Process runs the command for req. Cancelling ctx kills the process.
func (c *CommandProcessor) Process(ctx context.Context, req domain.ProcessorRequest) (domain.ProcessorResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return domain.ProcessorResult{}, fmt.Errorf("encode request %s: %w", req.ProcessID, err)
	}

	cmd := exec.CommandContext(ctx, c.spec.Command, c.spec.Args...)
	cmd.Env = os.Environ()
	for k, v := range c.spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return domain.ProcessorResult{}, fmt.Errorf("stdout pipe for %s: %w", req.ProcessID, err)
	}
	if err := cmd.Start(); err != nil {
		return domain.ProcessorResult{}, domain.WrapEngineError(domain.ErrProviderUnavailable.Code, "start "+c.spec.Command, err)
	}

	var (
		result domain.ProcessorResult
		found  bool
	)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			c.logger.Debug("ignoring non-json processor output", "process_id", req.ProcessID)
			continue
		}
		if l.Type != "result" {
			c.logger.Debug("processor progress", "process_id", req.ProcessID, "type", l.Type)
			continue
		}
		result, found = l.ProcessorResult, true
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// Keep reading so the child is not blocked on a full pipe.
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return domain.ProcessorResult{}, ctx.Err()
	}
	if waitErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = waitErr.Error()
		}
		return domain.ProcessorResult{}, domain.NewEngineError(domain.ErrProcessorFailure.Code, msg)
	}
	if scanErr != nil {
		return domain.ProcessorResult{}, domain.WrapEngineError(domain.ErrProcessorProtocol.Code, "read output", scanErr)
	}
	if !found {
		return domain.ProcessorResult{}, domain.NewEngineError(domain.ErrProcessorProtocol.Code, "no result line in processor output")
	}
	if result.Outcome == "" {
		result.Outcome = domain.OutcomeSuccess
	}
	return result, nil
}
