package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/patextra/patchlink/pkg/stats"
)

// MCPIngestor is the subset of Orchestrator the ingest MCP tool needs,
// satisfied by *Orchestrator; narrowed so RegisterIngest can be exercised
// against a test double without a real graph engine.
type MCPIngestor interface {
	Run(ctx context.Context, patchPath string, raw []byte) (*Report, error)
}

// HandleIngest is the handler function for the "ingest" tool: it reads and
// runs a single patch file through the full ingestion pipeline.
func HandleIngest(orchestrator MCPIngestor) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		arguments := request.Params.Arguments

		patchPath, ok := arguments["patch_path"].(string)
		if !ok {
			return nil, fmt.Errorf("patch_path must be a string")
		}

		raw, err := os.ReadFile(patchPath)
		if err != nil {
			return nil, fmt.Errorf("error reading patch file: %v", err)
		}

		report, err := orchestrator.Run(ctx, patchPath, raw)
		if err != nil {
			return nil, fmt.Errorf("error ingesting patch: %v", err)
		}

		resultText := fmt.Sprintf("Patch Ingestion Results\n\n")
		resultText += fmt.Sprintf("Patch: %s\n", patchPath)
		resultText += fmt.Sprintf("Patch node: %s\n", report.PatchID)
		resultText += fmt.Sprintf("Reversed: %t\n", report.Reversed)
		resultText += fmt.Sprintf("Vulnerable-code side-car: %t\n\n", report.Vulnerable)
		resultText += fmt.Sprintf("Files affected: %d/%d\n", report.Counters.ActualFilesAffected, report.Counters.OriginalFilesAffected)
		resultText += fmt.Sprintf("Hunks connected: %d/%d\n", report.Counters.ActualHunks, report.Counters.OriginalHunks)
		resultText += fmt.Sprintf("Lines added: %d/%d\n", report.Counters.ActualLinesAdded, report.Counters.OriginalLinesAdded)
		resultText += fmt.Sprintf("Lines removed: %d/%d\n", report.Counters.ActualLinesRemoved, report.Counters.OriginalLinesRemoved)
		resultText += fmt.Sprintf("Average hunk complexity: %.3f\n", report.Counters.AvgHunkComplexity)

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.TextContent{Type: "text", Text: resultText},
			},
		}, nil
	}
}

// RegisterIngest registers the "ingest" tool with the MCP server. The
// patch://{patch_path} resource template is registered separately by
// RegisterPatchResource.
func RegisterIngest(mcpServer *server.MCPServer, orchestrator MCPIngestor) {
	ingestTool := mcp.NewTool("ingest",
		mcp.WithDescription("Ingests a single unified-diff patch file, fuzzy-applies it, and links its effect into the code property graph"),
		mcp.WithString("patch_path",
			mcp.Description("Path to the patch file on disk"),
			mcp.Required(),
		),
	)

	wrappedHandler := stats.WrapHandler("ingest", HandleIngest(orchestrator))
	mcpServer.AddTool(ingestTool, wrappedHandler)
}
