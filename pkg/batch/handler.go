package batch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/patextra/patchlink/pkg/stats"
)

// HandleBatchIngest is the handler function for the "batch-ingest" tool: it
// runs every *.patch file in a directory through the Scheduler.
func HandleBatchIngest(scheduler *Scheduler) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		arguments := request.Params.Arguments

		dir, ok := arguments["directory"].(string)
		if !ok {
			return nil, fmt.Errorf("directory must be a string")
		}

		matches, err := filepath.Glob(filepath.Join(dir, "*.patch"))
		if err != nil {
			return nil, fmt.Errorf("error listing patch files: %v", err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no *.patch files found in %s", dir)
		}

		results := scheduler.Run(ctx, matches)

		resultText := fmt.Sprintf("Batch Ingestion Results\n\n")
		resultText += fmt.Sprintf("Directory: %s\n", dir)
		resultText += fmt.Sprintf("Patches processed: %d\n\n", len(results))

		succeeded := 0
		for _, r := range results {
			if r.Err != nil {
				resultText += fmt.Sprintf("  [FAILED] %s: %v\n", r.Path, r.Err)
				continue
			}
			succeeded++
			resultText += fmt.Sprintf("  [OK] %s: connected %d/%d hunks\n", r.Path,
				r.Report.Counters.ActualHunks, r.Report.Counters.OriginalHunks)
		}
		resultText += fmt.Sprintf("\n%d/%d patches succeeded\n", succeeded, len(results))

		exitCode := ExitCode(results)
		if exitCode != 0 {
			return nil, fmt.Errorf("no patch in %s was processable", dir)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.TextContent{Type: "text", Text: resultText},
			},
		}, nil
	}
}

// RegisterBatchIngest registers the "batch-ingest" tool with the MCP server.
func RegisterBatchIngest(mcpServer *server.MCPServer, scheduler *Scheduler) {
	batchTool := mcp.NewTool("batch-ingest",
		mcp.WithDescription("Ingests every *.patch file in a directory, bounded-concurrency, smallest files first"),
		mcp.WithString("directory",
			mcp.Description("Directory containing *.patch files"),
			mcp.Required(),
		),
	)

	wrappedHandler := stats.WrapHandler("batch-ingest", HandleBatchIngest(scheduler))
	mcpServer.AddTool(batchTool, wrappedHandler)
}
