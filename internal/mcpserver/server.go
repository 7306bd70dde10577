// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes tessera workspace tools for LLM integration via stdio transport.
//
// Workspaces live in the memory of the process serving the tools. A stdio
// server started with `tessera mcp` shares remembered geometry with the HTTP
// server through the geometry store, but not its open tiles.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tessera/internal/apperr"
	"github.com/starford/tessera/internal/tile"
	"github.com/starford/tessera/internal/tileservice"
	"github.com/starford/tessera/internal/workspace"
)

// sessionNote is appended to every tool that reads or changes open tiles.
const sessionNote = " Workspaces belong to this MCP session; tiles opened in the web app are not visible here."

const layoutRulesURI = "tessera://layout-rules"

// Server wraps the MCP server with tessera tools.
type Server struct {
	mcp *server.MCPServer
	svc *tileservice.Service
}

// New creates a new MCP server with all tessera tools registered.
func New(svc *tileservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Tessera",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	workspaceArgs := []mcp.ToolOption{
		mcp.WithString("workspace", mcp.Description("Workspace id: quick-notes, journal or project-<id>")),
		mcp.WithString("project", mcp.Description("Project id; selects workspace project-<id> when workspace is omitted")),
	}
	tileArgs := func(desc string, extra ...mcp.ToolOption) []mcp.ToolOption {
		opts := append([]mcp.ToolOption{mcp.WithDescription(desc + sessionNote)}, workspaceArgs...)
		opts = append(opts,
			mcp.WithString("kind", mcp.Required(), mcp.Enum("note", "journal", "quick-note"), mcp.Description("Tile kind")),
			mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
		)
		return append(opts, extra...)
	}

	s.mcp.AddTool(mcp.NewTool("list_workspaces",
		mcp.WithDescription("List the workspaces that have tiles or were touched this session."+sessionNote),
	), s.listWorkspaces)

	s.mcp.AddTool(mcp.NewTool("list_tiles",
		append([]mcp.ToolOption{
			mcp.WithDescription("List the tiles of a workspace with their geometry, z-index and paint order." + sessionNote),
		}, workspaceArgs...)...,
	), s.listTiles)

	s.mcp.AddTool(mcp.NewTool("open_tile", tileArgs(
		"Open a record as a tile. It appears at its remembered geometry, or the workspace is auto-tiled.",
		mcp.WithString("title", mcp.Description("Display title")),
		mcp.WithString("payload", mcp.Description("Optional JSON payload for the kind, e.g. {\"date\":\"2024-05-01\"} for journal")),
	)...), s.openTile)

	s.mcp.AddTool(mcp.NewTool("close_tile", tileArgs(
		"Close a tile. The remaining tiles are re-tiled.",
	)...), s.closeTile)

	s.mcp.AddTool(mcp.NewTool("bring_to_front", tileArgs(
		"Raise a tile above every other tile in the workspace.",
	)...), s.bringToFront)

	s.mcp.AddTool(mcp.NewTool("move_tile", tileArgs(
		"Move or resize a tile. Only the supplied fields change; the result is remembered.",
		mcp.WithNumber("x", mcp.Description("Left edge")),
		mcp.WithNumber("y", mcp.Description("Top edge")),
		mcp.WithNumber("width", mcp.Description("Width")),
		mcp.WithNumber("height", mcp.Description("Height")),
	)...), s.moveTile)

	s.mcp.AddTool(mcp.NewTool("toggle_fullscreen", tileArgs(
		"Enter or leave fullscreen for a tile. At most one tile per workspace is fullscreen.",
	)...), s.toggleFullscreen)

	s.mcp.AddTool(mcp.NewTool("forget_geometry",
		mcp.WithDescription("Forget the remembered geometry of a record so the next open auto-tiles."),
		mcp.WithString("kind", mcp.Required(), mcp.Enum("note", "journal", "quick-note"), mcp.Description("Tile kind")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
	), s.forgetGeometry)

	s.mcp.AddTool(mcp.NewTool("preview_layout",
		mcp.WithDescription("Compute the auto-tile rectangles for a tile count without changing anything."),
		mcp.WithNumber("count", mcp.Required(), mcp.Description("Number of tiles")),
		mcp.WithNumber("width", mcp.Description("Canvas width (default from settings)")),
		mcp.WithNumber("height", mcp.Description("Canvas height (default from settings)")),
	), s.previewLayout)

	s.mcp.AddTool(mcp.NewTool("get_layout_rules",
		mcp.WithDescription("Returns how tessera places, re-tiles and stacks tiles."),
	), s.getLayoutRules)

	s.mcp.AddResource(
		mcp.NewResource(layoutRulesURI, "Layout Rules",
			mcp.WithResourceDescription("How tiles are auto-tiled, remembered and stacked."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLayoutRulesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func errResult(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("tile is not open in this workspace")
	}
	return mcp.NewToolResultError(err.Error())
}

// requireWorkspace reads the workspace id, or derives it from a project id.
func requireWorkspace(req mcp.CallToolRequest) (string, error) {
	if ws := req.GetString("workspace", ""); ws != "" {
		return ws, nil
	}
	if project := req.GetString("project", ""); project != "" {
		return workspace.ForProject(project), nil
	}
	return "", errors.New("workspace or project is required")
}

func requireTile(req mcp.CallToolRequest) (string, tile.ID, error) {
	ws, err := requireWorkspace(req)
	if err != nil {
		return "", tile.ID{}, err
	}
	id, err := requireID(req)
	return ws, id, err
}

func requireID(req mcp.CallToolRequest) (tile.ID, error) {
	kind, err := req.RequireString("kind")
	if err != nil {
		return tile.ID{}, err
	}
	id, err := req.RequireString("id")
	if err != nil {
		return tile.ID{}, err
	}
	return tileservice.ParseID(kind, id)
}

// optionalFloat returns a pointer to the named number argument, or nil when
// it was not supplied.
func optionalFloat(req mcp.CallToolRequest, name string) *float64 {
	if _, ok := req.GetArguments()[name]; !ok {
		return nil
	}
	v := req.GetFloat(name, 0)
	return &v
}

func (s *Server) listWorkspaces(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws := s.svc.Workspaces()
	if len(ws) == 0 {
		return mcp.NewToolResultText("no workspaces yet"), nil
	}
	return mcp.NewToolResultText(strings.Join(ws, "\n")), nil
}

func (s *Server) listTiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, err := requireWorkspace(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap, err := s.svc.Snapshot(ws)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(snap)
}

func (s *Server) openTile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, err := requireWorkspace(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var payload json.RawMessage
	if raw := req.GetString("payload", ""); raw != "" {
		payload = json.RawMessage(raw)
	}
	d, err := tileservice.BuildDescriptor(kind, id, req.GetString("title", ""), payload)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, err := s.svc.OpenTile(ctx, ws, d)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(t)
}

func (s *Server) closeTile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, id, err := requireTile(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.CloseTile(ws, id); err != nil {
		return errResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("closed: %s", id)), nil
}

func (s *Server) bringToFront(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, id, err := requireTile(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, err := s.svc.BringToFront(ws, id)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(t)
}

func (s *Server) moveTile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, id, err := requireTile(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p := tile.Partial{
		X:      optionalFloat(req, "x"),
		Y:      optionalFloat(req, "y"),
		Width:  optionalFloat(req, "width"),
		Height: optionalFloat(req, "height"),
	}
	if p.Empty() {
		return mcp.NewToolResultError("supply at least one of x, y, width, height"), nil
	}
	t, err := s.svc.UpdateGeometry(ws, id, p)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(t)
}

func (s *Server) toggleFullscreen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, id, err := requireTile(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	on, err := s.svc.ToggleFullscreen(ws, id)
	if err != nil {
		return errResult(err), nil
	}
	if on {
		return mcp.NewToolResultText(fmt.Sprintf("fullscreen: %s", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("windowed: %s", id)), nil
}

func (s *Server) forgetGeometry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.DeleteRemembered(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultText(fmt.Sprintf("nothing remembered for %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("forgotten: %s", id)), nil
}

func (s *Server) previewLayout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	count, err := req.RequireFloat("count")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n := int(count)
	if n < 0 || n > 64 {
		return mcp.NewToolResultError("count must be between 0 and 64"), nil
	}
	settings := s.svc.Settings()
	scheme, rects, err := s.svc.PreviewLayout(n,
		req.GetFloat("width", settings.CanvasWidth),
		req.GetFloat("height", settings.CanvasHeight),
		settings.Gap)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"scheme": scheme,
		"rects":  rects,
	})
}

func (s *Server) getLayoutRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(LayoutRules), nil
}

func (s *Server) readLayoutRulesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      layoutRulesURI,
			MIMEType: "text/markdown",
			Text:     LayoutRules,
		},
	}, nil
}
