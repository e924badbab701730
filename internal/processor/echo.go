package processor

import (
	"context"
	"fmt"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

// Echo is the built-in processor used when no external command is
// configured. It replies with the message body and fills the cognitive
// field matching the slot's term.
type Echo struct{}

// Process implements the kernel's Processor interface.
func (Echo) Process(ctx context.Context, req domain.ProcessorRequest) (domain.ProcessorResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProcessorResult{}, err
	}
	res := domain.ProcessorResult{
		Outcome: domain.OutcomeSuccess,
		Output:  req.Content,
	}
	note := fmt.Sprintf("%s/%s step %d: %s", req.Stream, req.Mode, req.Step, req.Subject)
	switch req.Term {
	case domain.TermSensoryInput, domain.TermPerception:
		res.Perception = note
	case domain.TermIdeaFormation, domain.TermMemoryEncoding:
		res.Thought = note
	default:
		res.Action = note
	}
	return res, nil
}
