package tools

import (
	"context"
	"strings"

	"github.com/af-corp/aegis-chat/internal/llm"
	"github.com/af-corp/aegis-chat/internal/types"
)

const defaultImportance = 5

// MemoryWriter persists a fact about a user.
type MemoryWriter interface {
	SaveFact(ctx context.Context, userID, content string, importance int) error
}

// OrderRouter places an order for a user.
type OrderRouter interface {
	RouteOrder(ctx context.Context, order types.Order) (types.Order, error)
}

// WebsiteSink stores a generated single-page website and returns its id.
type WebsiteSink interface {
	SaveWebsite(ctx context.Context, userID, title, html string) (string, error)
}

func saveMemoryTool(w MemoryWriter) Tool {
	return &handler[SaveMemoryArgs]{
		kind: KindSaveMemory,
		description: "Remember a durable fact about the user (preferences, circumstances, goals) for future " +
			"conversations. Do not store secrets or one-off details.",
		schema: llm.Schema{
			Type: "object",
			Properties: map[string]llm.Property{
				"content":    {Type: "string", Description: "The fact, as a short third-person sentence"},
				"importance": {Type: "integer", Description: "How important the fact is, 1-10 (default 5)"},
			},
			Required: []string{"content"},
		},
		requiresUser: true,
		exec: func(ctx context.Context, userID string, args SaveMemoryArgs) (any, error) {
			importance := args.Importance
			if importance == 0 {
				importance = defaultImportance
			}
			content := strings.TrimSpace(args.Content)
			if err := w.SaveFact(ctx, userID, content, importance); err != nil {
				return nil, err
			}
			return map[string]any{"saved": content, "importance": importance}, nil
		},
	}
}

func routeOrderTool(o OrderRouter) Tool {
	return &handler[RouteOrderArgs]{
		kind:        KindRouteOrder,
		description: "Place an order for a product on the user's behalf. Only call after the user confirmed it.",
		schema: llm.Schema{
			Type: "object",
			Properties: map[string]llm.Property{
				"product":  {Type: "string", Description: "Product name or SKU"},
				"quantity": {Type: "integer", Description: "Number of units (1-1000)"},
				"notes":    {Type: "string", Description: "Delivery or product notes"},
			},
			Required: []string{"product", "quantity"},
		},
		requiresUser: true,
		exec: func(ctx context.Context, userID string, args RouteOrderArgs) (any, error) {
			return o.RouteOrder(ctx, types.Order{
				UserID:   userID,
				Product:  strings.TrimSpace(args.Product),
				Quantity: args.Quantity,
				Notes:    strings.TrimSpace(args.Notes),
			})
		},
	}
}

func emitWebsiteTool(s WebsiteSink) Tool {
	return &handler[EmitWebsiteArgs]{
		kind:        KindEmitWebsite,
		description: "Publish a complete single-file HTML website (inline CSS and JS) built for the user.",
		schema: llm.Schema{
			Type: "object",
			Properties: map[string]llm.Property{
				"title": {Type: "string", Description: "Short title of the site"},
				"html":  {Type: "string", Description: "The complete HTML document"},
			},
			Required: []string{"title", "html"},
		},
		exec: func(ctx context.Context, userID string, args EmitWebsiteArgs) (any, error) {
			id, err := s.SaveWebsite(ctx, userID, strings.TrimSpace(args.Title), args.HTML)
			if err != nil {
				return nil, err
			}
			return map[string]any{"id": id, "title": strings.TrimSpace(args.Title), "bytes": len(args.HTML)}, nil
		},
	}
}
