package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer exposes the service as MCP tools.
func NewMCPServer(svc *Service, version string) *server.MCPServer {
	s := server.NewMCPServer("panelscribe-history", version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("list_interviews",
		mcp.WithDescription("List saved interviews, newest first."),
	), svc.listTool)

	s.AddTool(mcp.NewTool("get_interview",
		mcp.WithDescription("Get one saved interview with its full transcript and analysis."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Interview id")),
	), svc.getTool)

	s.AddTool(mcp.NewTool("export_interview",
		mcp.WithDescription("Export one interview as CSV or JSON."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Interview id")),
		mcp.WithString("format", mcp.Description("csv or json"), mcp.Enum("csv", "json")),
	), svc.exportTool)

	s.AddTool(mcp.NewTool("delete_interview",
		mcp.WithDescription("Delete one saved interview."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Interview id")),
	), svc.deleteTool)

	s.AddTool(mcp.NewTool("clear_interviews",
		mcp.WithDescription("Delete all saved interviews."),
		mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true")),
	), svc.clearTool)

	return s
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func lookupError(err error) (*mcp.CallToolResult, error) {
	if errors.Is(err, ErrNotFound) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return nil, err
}

func (svc *Service) listTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := svc.List()
	if err != nil {
		return nil, err
	}
	return jsonResult(list)
}

func (svc *Service) getTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := svc.Get(id)
	if err != nil {
		return lookupError(err)
	}
	return jsonResult(rec)
}

func (svc *Service) exportTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := svc.Get(id)
	if err != nil {
		return lookupError(err)
	}

	var buf bytes.Buffer
	switch format := req.GetString("format", "csv"); format {
	case "csv":
		err = WriteCSV(&buf, rec)
	case "json":
		err = WriteJSON(&buf, rec)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown format %q", format)), nil
	}
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (svc *Service) deleteTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := svc.Delete(id); err != nil {
		return lookupError(err)
	}
	return mcp.NewToolResultText("Interview deleted: " + id), nil
}

func (svc *Service) clearTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !req.GetBool("confirm", false) {
		return mcp.NewToolResultError("confirm must be true to delete all interviews"), nil
	}
	n, err := svc.Clear()
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted %d interviews", n)), nil
}
