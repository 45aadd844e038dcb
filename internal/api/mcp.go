package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/jarvis/internal/assistant"
	"github.com/kalambet/jarvis/internal/profile"
	"github.com/kalambet/jarvis/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Assistant *assistant.Assistant
	Profiles  *profile.Manager
	Journal   *storage.Store // optional; the recent resource is omitted without it
}

// NewMCPServer creates an MCP server with the jarvis tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"jarvis",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("jarvis: run assistant commands for a local profile, classify utterances and get suggestions."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("command",
			mcp.WithDescription("Run an utterance as one assistant turn for a profile and return the outcome."),
			mcp.WithString("profile", mcp.Description("Profile name"), mcp.Required()),
			mcp.WithString("utterance", mcp.Description("What the user said or typed"), mcp.Required()),
		),
		mcpCommand(deps),
	)

	s.AddTool(
		mcp.NewTool("classify",
			mcp.WithDescription("Return the command category an utterance would be routed to, without running it."),
			mcp.WithString("utterance", mcp.Description("Text to classify"), mcp.Required()),
		),
		mcpClassify(deps),
	)

	s.AddTool(
		mcp.NewTool("suggest",
			mcp.WithDescription("List command categories whose learned words start with a prefix."),
			mcp.WithString("prefix", mcp.Description("Word prefix"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of categories (default 3)")),
		),
		mcpSuggest(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"jarvis://profiles",
			"Profiles",
			mcp.WithResourceDescription("Known profiles with location and session state"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfiles(deps),
	)

	if deps.Journal != nil {
		s.AddResource(
			mcp.NewResource(
				"jarvis://recent",
				"Recent Interactions",
				mcp.WithResourceDescription("Last 10 processed turns across all profiles"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceRecent(deps),
		)
	}

	return s
}

func mcpCommand(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("profile")
		if err != nil {
			return mcpError("profile is required"), nil
		}
		utterance, err := req.RequireString("utterance")
		if err != nil {
			return mcpError("utterance is required"), nil
		}

		out, err := deps.Assistant.Process(ctx, name, utterance)
		if errors.Is(err, profile.ErrNotFound) {
			return mcpError(fmt.Sprintf("profile %q not found", name)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("command failed: %v", err)), nil
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal outcome: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpClassify(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		utterance, err := req.RequireString("utterance")
		if err != nil {
			return mcpError("utterance is required"), nil
		}
		m, ok := deps.Assistant.Classify(utterance)
		if !ok {
			return mcpText("no category: the utterance would be handled as conversation"), nil
		}
		return mcpText(fmt.Sprintf("%s (%s)", m.Category, m.Source)), nil
	}
}

func mcpSuggest(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prefix, err := req.RequireString("prefix")
		if err != nil {
			return mcpError("prefix is required"), nil
		}
		limit := req.GetInt("limit", 3)
		if limit <= 0 {
			limit = 3
		}
		if limit > 20 {
			limit = 20
		}

		got := deps.Assistant.Suggest(prefix, limit)
		if got == nil {
			got = []string{}
		}
		b, err := json.Marshal(got)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal suggestions: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceProfiles(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type profileSummary struct {
			Name          string `json:"name"`
			Location      string `json:"location,omitempty"`
			Contacts      int    `json:"contacts"`
			Authenticated bool   `json:"authenticated"`
		}

		names := deps.Profiles.Names()
		summaries := make([]profileSummary, 0, len(names))
		for _, name := range names {
			p, err := deps.Profiles.Get(name)
			if err != nil {
				// Deleted since Names was read.
				continue
			}
			summaries = append(summaries, profileSummary{
				Name:          p.Name,
				Location:      p.Location,
				Contacts:      len(p.Contacts),
				Authenticated: deps.Profiles.IsAuthenticated(name, ""),
			})
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profiles: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interactions, err := deps.Journal.RecentInteractions("", 10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent interactions: %w", err)
		}

		type interactionSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Profile   string `json:"profile"`
			Utterance string `json:"utterance"`
			Category  string `json:"category,omitempty"`
			Status    string `json:"status"`
		}

		summaries := make([]interactionSummary, len(interactions))
		for i, ix := range interactions {
			utterance := ix.Utterance
			if utf8.RuneCountInString(utterance) > 200 {
				runes := []rune(utterance)
				utterance = string(runes[:200]) + "..."
			}
			summaries[i] = interactionSummary{
				ID:        ix.ID,
				CreatedAt: ix.CreatedAt.Format(time.RFC3339),
				Profile:   ix.Profile,
				Utterance: utterance,
				Category:  ix.Category,
				Status:    ix.Status,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interactions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
