package mcptools

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/Rogers-F/triad-kernel/internal/bridge"
	"github.com/Rogers-F/triad-kernel/internal/kernel"
)

const instructions = `Triad kernel: a phase-multiplexed scheduler for inbound messages.
Use submit_message to hand a message to the kernel, kernel_status to watch the
three streams advance, and process_get to follow one message through its steps.`

// NewServer creates an MCP server exposing the kernel's tools.
func NewServer(k *kernel.Kernel, b *bridge.Bridge) *server.MCPServer {
	s := server.NewMCPServer(
		k.Config().Name,
		kernel.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	statusTool := NewStatusTool(k)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	submitTool := NewSubmitTool(b)
	s.AddTool(submitTool.Definition(), submitTool.Handle)

	getTool := NewGetTool(k)
	s.AddTool(getTool.Definition(), getTool.Handle)

	terminateTool := NewTerminateTool(k)
	s.AddTool(terminateTool.Definition(), terminateTool.Handle)

	stimulateTool := NewStimulateTool(k)
	s.AddTool(stimulateTool.Definition(), stimulateTool.Handle)

	return s
}
