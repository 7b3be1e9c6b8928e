package httpapi

import (
	"context"
	"encoding/json"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/brwse/ide-companion-bridge/internal/diffcoord"
)

var OpenDiffTool = sdk.Tool{
	Name:        "openDiff",
	Description: "Opens a diff view in the editor comparing the file on disk against proposed new content and returns once the editor has opened it; the user's accept/reject decision arrives later as an ide/diffAccepted or ide/diffRejected notification.",
}

type OpenDiffInput struct {
	FilePath   string `json:"filePath" jsonschema:"Absolute path to the file being diffed"`
	NewContent string `json:"newContent" jsonschema:"Proposed replacement content for the file"`
}

type OpenDiffOutput struct{}

var CloseDiffTool = sdk.Tool{
	Name:        "closeDiff",
	Description: "Closes any diff view open for the given file in the editor and returns the editor's last-known content for it, if any.",
}

type CloseDiffInput struct {
	FilePath string `json:"filePath" jsonschema:"Absolute path to the file whose diff view should be closed"`
}

type CloseDiffOutput struct {
	Content *string `json:"content,omitempty"`
}

// newOpenDiffHandler binds coordinator into an mcp.AddTool handler.
func newOpenDiffHandler(coordinator *diffcoord.Coordinator) func(context.Context, *sdk.CallToolRequest, OpenDiffInput) (*sdk.CallToolResult, any, error) {
	return func(ctx context.Context, req *sdk.CallToolRequest, args OpenDiffInput) (*sdk.CallToolResult, any, error) {
		if err := coordinator.ShowDiff(ctx, args.FilePath, args.NewContent); err != nil {
			return nil, nil, err
		}
		output := &OpenDiffOutput{}
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: "{}"}},
		}, output, nil
	}
}

// newCloseDiffHandler binds coordinator into an mcp.AddTool handler.
func newCloseDiffHandler(coordinator *diffcoord.Coordinator) func(context.Context, *sdk.CallToolRequest, CloseDiffInput) (*sdk.CallToolResult, any, error) {
	return func(ctx context.Context, req *sdk.CallToolRequest, args CloseDiffInput) (*sdk.CallToolResult, any, error) {
		content, err := coordinator.CloseDiff(ctx, args.FilePath)
		if err != nil {
			return nil, nil, err
		}
		output := &CloseDiffOutput{Content: content}
		encoded, err := json.Marshal(output)
		if err != nil {
			return nil, nil, err
		}
		return &sdk.CallToolResult{
			Content:           []sdk.Content{&sdk.TextContent{Text: string(encoded)}},
			StructuredContent: output,
		}, output, nil
	}
}
