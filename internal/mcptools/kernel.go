package mcptools

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Rogers-F/triad-kernel/internal/bridge"
	"github.com/Rogers-F/triad-kernel/internal/domain"
	"github.com/Rogers-F/triad-kernel/internal/kernel"
)

// StatusTool handles the kernel_status MCP tool.
type StatusTool struct {
	kernel *kernel.Kernel
}

// NewStatusTool creates a StatusTool.
func NewStatusTool(k *kernel.Kernel) *StatusTool {
	return &StatusTool{kernel: k}
}

// Definition returns the MCP tool definition for kernel_status.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("kernel_status",
		mcp.WithDescription(
			"Show the scheduler's position (step, cycle, stream cursors), metrics and live processes.",
		),
	)
}

// Handle processes the kernel_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.kernel.Status()), nil
}

// SubmitTool handles the submit_message MCP tool.
type SubmitTool struct {
	bridge *bridge.Bridge
}

// NewSubmitTool creates a SubmitTool.
func NewSubmitTool(b *bridge.Bridge) *SubmitTool {
	return &SubmitTool{bridge: b}
}

// Definition returns the MCP tool definition for submit_message.
func (t *SubmitTool) Definition() mcp.Tool {
	return mcp.NewTool("submit_message",
		mcp.WithDescription(
			"Submit an inbound message. The kernel scores it, schedules it onto a stream and "+
				"assembles a reply once the cognitive processor has handled it.",
		),
		mcp.WithString("from",
			mcp.Required(),
			mcp.Description("Sender address"),
		),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Comma-separated recipient addresses"),
		),
		mcp.WithString("subject",
			mcp.Description("Message subject"),
		),
		mcp.WithString("body",
			mcp.Description("Message body"),
		),
		mcp.WithString("id",
			mcp.Description("Origin message id (default: generated)"),
		),
		mcp.WithString("parent_id",
			mcp.Description("Live process to attach this message to as a child"),
		),
	)
}

// Handle processes the submit_message tool call.
func (t *SubmitTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from := req.GetString("from", "")
	if from == "" {
		return mcp.NewToolResultError("'from' is required"), nil
	}
	to := listArg(req, "to")
	if len(to) == 0 {
		return mcp.NewToolResultError("'to' is required"), nil
	}

	msg := domain.Message{
		ID:      req.GetString("id", ""),
		From:    from,
		To:      to,
		Subject: req.GetString("subject", ""),
		Body:    req.GetString("body", ""),
	}
	if msg.ID == "" {
		msg.ID = "mcp-" + uuid.NewString()
	}

	p, err := t.bridge.AcceptChild(ctx, req.GetString("parent_id", ""), msg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to submit message: %v", err)), nil
	}
	return jsonResult(p), nil
}

// GetTool handles the process_get MCP tool.
type GetTool struct {
	kernel *kernel.Kernel
}

// NewGetTool creates a GetTool.
func NewGetTool(k *kernel.Kernel) *GetTool {
	return &GetTool{kernel: k}
}

// Definition returns the MCP tool definition for process_get.
func (t *GetTool) Definition() mcp.Tool {
	return mcp.NewTool("process_get",
		mcp.WithDescription("Show a live process: state, assigned stream and step, cognitive context and history."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Process ID"),
		),
	)
}

// Handle processes the process_get tool call.
func (t *GetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	p, err := t.kernel.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("process %s: %v", id, err)), nil
	}
	return jsonResult(p), nil
}

// TerminateTool handles the process_terminate MCP tool.
type TerminateTool struct {
	kernel *kernel.Kernel
}

// NewTerminateTool creates a TerminateTool.
func NewTerminateTool(k *kernel.Kernel) *TerminateTool {
	return &TerminateTool{kernel: k}
}

// Definition returns the MCP tool definition for process_terminate.
func (t *TerminateTool) Definition() mcp.Tool {
	return mcp.NewTool("process_terminate",
		mcp.WithDescription("Terminate a live process. Its origin receives no reply."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Process ID"),
		),
		mcp.WithString("reason",
			mcp.Description("Termination reason (default: operator)"),
		),
	)
}

// Handle processes the process_terminate tool call.
func (t *TerminateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	reason := req.GetString("reason", "operator")
	if err := t.kernel.Terminate(id, reason); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to terminate %s: %v", id, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Process %s terminated (%s)", id, reason)), nil
}

// StimulateTool handles the process_stimulate MCP tool.
type StimulateTool struct {
	kernel *kernel.Kernel
}

// NewStimulateTool creates a StimulateTool.
func NewStimulateTool(k *kernel.Kernel) *StimulateTool {
	return &StimulateTool{kernel: k}
}

// Definition returns the MCP tool definition for process_stimulate.
func (t *StimulateTool) Definition() mcp.Tool {
	return mcp.NewTool("process_stimulate",
		mcp.WithDescription("Raise a live process's salience. The result is clamped to [0,1]."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Process ID"),
		),
		mcp.WithNumber("amount",
			mcp.Required(),
			mcp.Description("Salience to add, e.g. 0.2"),
		),
	)
}

// Handle processes the process_stimulate tool call.
func (t *StimulateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	amount, ok := floatArg(req, "amount", 0)
	if !ok {
		return mcp.NewToolResultError("'amount' must be a number"), nil
	}
	p, err := t.kernel.Stimulate(id, amount)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to stimulate %s: %v", id, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Process %s salience is now %.2f", id, p.Context.Salience)), nil
}
