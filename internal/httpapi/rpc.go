// JSON-RPC 2.0 tool-calling surface exposed over MCP. A single POST
// endpoint dispatches initialize, tools/list, and tools/call by method
// name into a small registry of ToolFuncs, one per supported tool.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/reviewdeck/reviewd/internal/backend"
	"github.com/reviewdeck/reviewd/internal/reviewerr"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ToolFunc implements one named MCP tool, translating JSON arguments
// into a session-manager call and back.
type ToolFunc func(ctx context.Context, s *Server, args map[string]any) (any, error)

var toolRegistry = map[string]ToolFunc{
	"list_sessions":         toolListSessions,
	"get_or_create_session": toolGetOrCreateSession,
	"register_files":        toolRegisterFiles,
	"unregister_files":      toolUnregisterFiles,
	"get_review_state":      toolGetReviewState,
	"get_pending_feedback":  toolGetPendingFeedback,
	"add_comment":           toolAddComment,
	"resolve_comment":       toolResolveComment,
	"unresolve_comment":     toolUnresolveComment,
	"submit_review":         toolSubmitReview,
	"get_context":           toolGetContext,
	"list_directory":        toolListDirectory,
	"get_file_content":      toolGetFileContent,
	"get_history":           toolGetHistory,
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32600, Message: "invalid request"}})
		return
	}

	switch req.Method {
	case "initialize":
		writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo":      map[string]any{"name": "reviewd", "version": "0.1.0"},
		}})
	case "tools/list":
		writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{"tools": toolNames()}})
	case "tools/call":
		s.handleToolCall(w, req)
	default:
		writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: "method not found"}})
	}
}

func toolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleToolCall(w http.ResponseWriter, req rpcRequest) {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32602, Message: "invalid params"}})
		return
	}

	fn, ok := toolRegistry[params.Name]
	if !ok {
		writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: "unknown tool: " + params.Name}})
		return
	}

	result, err := fn(context.Background(), s, params.Arguments)
	if err != nil {
		code := -32603
		message := err.Error()
		if rerr, ok := reviewerr.As(err); ok {
			code = rerr.Kind.RPCCode()
			message = rerr.Message
		}
		writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{
			"content": []map[string]any{{"type": "text", "text": message}},
			"isError": true,
		}, Error: &rpcError{Code: code, Message: message}})
		return
	}

	encoded, _ := json.Marshal(result)
	writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{
		"content": []map[string]any{{"type": "text", "text": string(encoded)}},
	}})
}

func toolListSessions(ctx context.Context, s *Server, args map[string]any) (any, error) {
	return s.Sessions.ListAll(ctx)
}

func toolGetOrCreateSession(ctx context.Context, s *Server, args map[string]any) (any, error) {
	if prRef, ok := args["pr_reference"].(string); ok && prRef != "" {
		targetBranch, _ := args["target_branch"].(string)
		return s.createHostedSession(ctx, prRef, targetBranch)
	}
	repoPath, _ := args["repo_path"].(string)
	if repoPath == "" {
		return nil, reviewerr.New(reviewerr.KindValidation, "repo_path is required")
	}
	targetBranch, _ := args["target_branch"].(string)
	project, _ := args["project"].(string)
	if project == "" {
		project = repoPath
	}
	branch, _ := args["branch"].(string)
	return s.Sessions.GetOrCreateLocal(ctx, project, repoPath, branch, targetBranch)
}

func toolRegisterFiles(ctx context.Context, s *Server, args map[string]any) (any, error) {
	id, _ := args["session_id"].(string)
	agentID, _ := args["agent_id"].(string)
	if id == "" || agentID == "" {
		return nil, reviewerr.New(reviewerr.KindValidation, "session_id and agent_id are required")
	}
	paths := stringSlice(args["paths"])
	if err := s.Sessions.RegisterFiles(ctx, id, agentID, paths); err != nil {
		return nil, err
	}
	s.Events.Emit(id, "files-changed", map[string]any{"paths": paths, "action": "register"})
	return map[string]any{"ok": true}, nil
}

func toolUnregisterFiles(ctx context.Context, s *Server, args map[string]any) (any, error) {
	id, _ := args["session_id"].(string)
	paths := stringSlice(args["paths"])
	if err := s.Sessions.UnregisterFiles(ctx, id, paths); err != nil {
		return nil, err
	}
	s.Events.Emit(id, "files-changed", map[string]any{"paths": paths, "action": "unregister"})
	return map[string]any{"ok": true}, nil
}

func toolGetReviewState(ctx context.Context, s *Server, args map[string]any) (any, error) {
	id, _ := args["session_id"].(string)
	return s.Sessions.GetReviewState(ctx, id)
}

// toolGetPendingFeedback returns every unresolved thread across a
// session, the subset an AI coding agent should act on next.
func toolGetPendingFeedback(ctx context.Context, s *Server, args map[string]any) (any, error) {
	id, _ := args["session_id"].(string)
	threads, err := s.Sessions.GetThreads(ctx, id)
	if err != nil {
		return nil, err
	}
	var pending []any
	for _, t := range threads {
		if !t.Comment.Resolved {
			pending = append(pending, t)
		}
	}
	return map[string]any{"pending": pending}, nil
}

func toolAddComment(ctx context.Context, s *Server, args map[string]any) (any, error) {
	id, _ := args["session_id"].(string)
	text, _ := args["text"].(string)
	author, _ := args["author"].(string)
	if id == "" || text == "" || author == "" {
		return nil, reviewerr.New(reviewerr.KindValidation, "session_id, text and author are required")
	}
	file, _ := args["file"].(string)
	side, _ := args["side"].(string)
	parentID, _ := args["parent_id"].(string)
	line := intArg(args["line"])
	return s.Sessions.AddComment(ctx, id, backend.AddCommentParams{
		ParentID: parentID, File: file, Line: line, Side: side, Author: author, Body: text,
	})
}

func toolResolveComment(ctx context.Context, s *Server, args map[string]any) (any, error) {
	id, _ := args["session_id"].(string)
	commentID, _ := args["comment_id"].(string)
	if err := s.Sessions.ResolveComment(ctx, id, commentID); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func toolUnresolveComment(ctx context.Context, s *Server, args map[string]any) (any, error) {
	id, _ := args["session_id"].(string)
	commentID, _ := args["comment_id"].(string)
	if err := s.Sessions.UnresolveComment(ctx, id, commentID); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

// toolSubmitReview pushes the session's branch and reconciles its
// hosted pull request, the terminal action an agent takes once pending
// feedback is addressed.
func toolSubmitReview(ctx context.Context, s *Server, args map[string]any) (any, error) {
	id, _ := args["session_id"].(string)
	sess, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Coordinator == nil {
		return nil, reviewerr.New(reviewerr.KindValidation, "push coordination is not configured")
	}
	return s.Coordinator.Push(ctx, sess)
}

func toolGetContext(ctx context.Context, s *Server, args map[string]any) (any, error) {
	id, _ := args["session_id"].(string)
	file, _ := args["file"].(string)
	from, to := intArg(args["from"]), intArg(args["to"])
	if from < 1 || to < 1 || from > to {
		return nil, reviewerr.New(reviewerr.KindValidation, "from/to must be integers >= 1 with from <= to")
	}
	content, found, err := s.Sessions.GetFileContent(ctx, id, file, backend.SideHead, &from, &to)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, reviewerr.New(reviewerr.KindNotFound, "file not found")
	}
	return map[string]any{"file": file, "from": from, "to": to, "lines": splitIntoLineObjects(content, from)}, nil
}

func toolListDirectory(ctx context.Context, s *Server, args map[string]any) (any, error) {
	id, _ := args["session_id"].(string)
	files, err := s.Sessions.EffectiveFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"files": files}, nil
}

func toolGetFileContent(ctx context.Context, s *Server, args map[string]any) (any, error) {
	id, _ := args["session_id"].(string)
	file, _ := args["file"].(string)
	side := backend.SideHead
	if s, ok := args["side"].(string); ok && s == "base" {
		side = backend.SideBase
	}
	content, found, err := s.Sessions.GetFileContent(ctx, id, file, side, nil, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{"file": file, "found": found, "content": content}, nil
}

// toolGetHistory returns the session's comment threads in creation
// order, giving an agent the full review history for a session.
func toolGetHistory(ctx context.Context, s *Server, args map[string]any) (any, error) {
	id, _ := args["session_id"].(string)
	return s.Sessions.GetThreads(ctx, id)
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intArg(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
