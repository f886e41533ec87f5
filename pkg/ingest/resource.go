package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/patextra/patchlink/internal/graphengine"
)

// RegisterPatchResource registers the patch://{patch_path} resource
// template, mirroring the teacher's workspace://info/{session_id} template:
// reading it surfaces a PatchNode's persisted counters without re-running
// ingestion.
func RegisterPatchResource(mcpServer *server.MCPServer, engine graphengine.Engine) {
	handler := func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		uri := request.Params.URI
		patchPath := strings.TrimPrefix(uri, "patch://")
		if patchPath == uri {
			return nil, fmt.Errorf("unrecognized resource URI: %s", uri)
		}

		patchID, err := engine.CreatePatchNode(ctx, patchPath, "")
		if err != nil && err != graphengine.ErrDuplicatePatch {
			return nil, fmt.Errorf("patch not found: %s", patchPath)
		}

		counters, err := engine.GetPatchCounters(ctx, patchID)
		if err != nil {
			return nil, fmt.Errorf("error reading patch counters: %v", err)
		}

		text := fmt.Sprintf("Patch: %s\n", patchPath)
		text += fmt.Sprintf("reversed: %t\n", counters.Reversed)
		text += fmt.Sprintf("originalFilesAffected: %d\n", counters.OriginalFilesAffected)
		text += fmt.Sprintf("originalLinesAdded: %d\n", counters.OriginalLinesAdded)
		text += fmt.Sprintf("originalLinesRemoved: %d\n", counters.OriginalLinesRemoved)
		text += fmt.Sprintf("originalHunks: %d\n", counters.OriginalHunks)
		text += fmt.Sprintf("actualFilesAffected: %d\n", counters.ActualFilesAffected)
		text += fmt.Sprintf("actualLinesAdded: %d\n", counters.ActualLinesAdded)
		text += fmt.Sprintf("actualLinesRemoved: %d\n", counters.ActualLinesRemoved)
		text += fmt.Sprintf("actualHunks: %d\n", counters.ActualHunks)
		text += fmt.Sprintf("avgHunkComplexity: %.3f\n", counters.AvgHunkComplexity)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: "text/plain",
				Text:     text,
			},
		}, nil
	}

	mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"patch://{patch_path}",
			"Patch Ingestion Counters",
			mcp.WithTemplateMIMEType("text/plain"),
			mcp.WithTemplateDescription("Persisted ingestion counters for a patch node, keyed by patch path"),
		),
		handler,
	)
}
