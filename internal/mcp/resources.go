package mcp

import (
	"context"
	"encoding/json"

	"github.com/claude/liftlog/internal/workout"
	"github.com/mark3labs/mcp-go/mcp"
)

const recentSessionsLimit = 20

func (h *handlers) activeSession(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uid := UserIDFromContext(ctx)

	sess, err := h.ds.ActiveSession(ctx, uid)
	if err != nil {
		return nil, err
	}

	body := map[string]any{"session": nil}
	if sess != nil {
		body["session"] = sess
		sets, err := h.ds.ListSets(ctx, uid, sess.ID)
		if err != nil {
			h.log.Warn("active_session: set query failed", "session_id", sess.ID, "error", err)
		} else {
			body["exercises"] = workout.NewLedger(sets).Summary()
		}
	}

	return jsonContents(req.Params.URI, body)
}

func (h *handlers) recentSessions(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sessions, err := h.ds.RecentSessions(ctx, UserIDFromContext(ctx), recentSessionsLimit)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, sessions)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
