package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/vire-screener/internal/common"
	"github.com/bobmcallan/vire-screener/internal/interfaces"
	"github.com/bobmcallan/vire-screener/internal/models"
	"github.com/bobmcallan/vire-screener/internal/services/screen"
)

// handleGetVersion implements the get_version tool
func handleGetVersion() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := fmt.Sprintf("Vire Screener MCP Server\nVersion: %s\nBuild: %s\nCommit: %s\nStatus: OK",
			common.GetVersion(), common.GetBuild(), common.GetGitCommit())
		return textResult(result), nil
	}
}

// handleParseQuery implements the parse_query tool
func handleParseQuery(qs interfaces.QueryService, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := request.RequireString("query")
		if err != nil || text == "" {
			return errorResult("Error: query parameter is required"), nil
		}

		filter, err := qs.ParseQuery(ctx, text)
		if err != nil {
			logger.Error().Err(err).Str("query", text).Msg("Parse query failed")
			return errorResult(fmt.Sprintf("Parse error: %v", err)), nil
		}

		data, err := json.MarshalIndent(filter, "", "  ")
		if err != nil {
			return errorResult(fmt.Sprintf("Encode error: %v", err)), nil
		}
		return textResult(formatFilterSummary(filter) + "\n```json\n" + string(data) + "\n```\n"), nil
	}
}

// handleScreenQuery implements the screen_query tool
func handleScreenQuery(ss interfaces.ScreenService, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := request.RequireString("query")
		if err != nil || text == "" {
			return errorResult("Error: query parameter is required"), nil
		}

		resp, err := ss.ScreenQuery(ctx, &models.ScreenQueryRequest{
			Query:   text,
			Symbols: request.GetStringSlice("symbols", nil),
			Limit:   request.GetInt("limit", 0),
		})
		if err != nil {
			if errors.Is(err, screen.ErrNoDataset) {
				return errorResult("No price data stored for the requested symbols"), nil
			}
			logger.Error().Err(err).Str("query", text).Msg("Screen query failed")
			return errorResult(fmt.Sprintf("Screen error: %v", err)), nil
		}

		return textResult(formatScreenResponse(text, resp)), nil
	}
}

// handleListRules implements the list_rules tool
func handleListRules(qs interfaces.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return textResult(formatRules(qs.Rules())), nil
	}
}

// handleListSymbols implements the list_symbols tool
func handleListSymbols(bars interfaces.BarStore, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbols, err := bars.ListSymbols(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("List symbols failed")
			return errorResult(fmt.Sprintf("Storage error: %v", err)), nil
		}
		return textResult(formatSymbols(symbols)), nil
	}
}

// handleRecentParses implements the recent_parses tool
func handleRecentParses(audit interfaces.AuditSink, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", 20)
		if limit > 200 {
			limit = 200
		}
		events, err := audit.ListParseEvents(ctx, limit)
		if err != nil {
			logger.Error().Err(err).Msg("List parse events failed")
			return errorResult(fmt.Sprintf("Storage error: %v", err)), nil
		}
		return textResult(formatParseEvents(events)), nil
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message),
		},
		IsError: true,
	}
}
