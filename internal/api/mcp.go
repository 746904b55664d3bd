package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/frontdesk/internal/ledger"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Ledger  Ledger
	Policy  Answerer
	Version string
}

// NewMCPServer creates an MCP server exposing the supervisor tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"frontdesk",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("frontdesk: answer caller questions, review escalated requests and teach answers."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_question",
			mcp.WithDescription("Ask the front desk a caller question. Unknown questions are escalated to a supervisor."),
			mcp.WithString("question", mcp.Description("The caller's question"), mcp.Required()),
			mcp.WithString("caller_id", mcp.Description("Caller or session id (generated when omitted)")),
		),
		mcpAskQuestion(deps),
	)

	s.AddTool(
		mcp.NewTool("list_pending_requests",
			mcp.WithDescription("List escalated requests waiting for a supervisor answer, newest first."),
			mcp.WithString("status", mcp.Description("pending (default), resolved, unresolved or all")),
		),
		mcpListRequests(deps),
	)

	s.AddTool(
		mcp.NewTool("resolve_request",
			mcp.WithDescription("Answer a pending request. The answer is learned for future callers."),
			mcp.WithString("id", mcp.Description("Request id, e.g. req_3"), mcp.Required()),
			mcp.WithString("answer", mcp.Description("Answer text"), mcp.Required()),
		),
		mcpResolveRequest(deps),
	)

	s.AddTool(
		mcp.NewTool("list_learned_answers",
			mcp.WithDescription("List every learned question and answer."),
		),
		mcpListLearned(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"ledger://learned",
			"Learned Answers",
			mcp.WithResourceDescription("Learned question/answer table as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceLearned(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"ledger://pending",
			"Pending Requests",
			mcp.WithResourceDescription("Requests waiting for a supervisor as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePending(deps),
	)

	return s
}

func mcpAskQuestion(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		callerID := req.GetString("caller_id", "")
		if callerID == "" {
			callerID = "mcp-" + uuid.NewString()
		}

		ans, err := deps.Policy.Answer(ctx, question, callerID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to answer: %v", err)), nil
		}

		b, err := json.Marshal(ans)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListRequests(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var reqs []ledger.Request
		switch status := req.GetString("status", ""); status {
		case "", string(ledger.StatusPending):
			reqs = deps.Ledger.PendingRequests()
		case "all":
			reqs = deps.Ledger.Requests("")
		case string(ledger.StatusResolved), string(ledger.StatusUnresolved):
			reqs = deps.Ledger.Requests(ledger.Status(status))
		default:
			return mcpError(fmt.Sprintf("unknown status %q", status)), nil
		}

		if len(reqs) == 0 {
			return mcpText("[]"), nil
		}
		b, err := json.Marshal(reqs)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal requests: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResolveRequest(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		answer, err := req.RequireString("answer")
		if err != nil {
			return mcpError("answer is required"), nil
		}

		resolved, err := deps.Ledger.ResolveRequest(id, answer)
		switch {
		case err == nil:
		case errors.Is(err, ledger.ErrPersistence):
			return mcpText(fmt.Sprintf("Resolved %s (%q) but the ledger could not be saved: %v", resolved.ID, resolved.Question, err)), nil
		default:
			return mcpError(fmt.Sprintf("failed to resolve: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Resolved %s: %q -> %q", resolved.ID, resolved.Question, answer)), nil
	}
}

func mcpListLearned(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(deps.Ledger.LearnedAnswers())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal learned answers: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceLearned(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Ledger.LearnedAnswers())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal learned answers: %w", err)
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

func mcpResourcePending(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		pending := deps.Ledger.PendingRequests()
		if pending == nil {
			pending = []ledger.Request{}
		}
		b, err := json.Marshal(pending)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pending requests: %w", err)
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
