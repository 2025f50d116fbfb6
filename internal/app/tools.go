package app

import "github.com/mark3labs/mcp-go/mcp"

// createGetVersionTool returns the get_version tool definition
func createGetVersionTool() mcp.Tool {
	return mcp.NewTool("get_version",
		mcp.WithDescription("Get the Vire Screener server version and status. Use this to verify connectivity."),
	)
}

// createParseQueryTool returns the parse_query tool definition
func createParseQueryTool() mcp.Tool {
	return mcp.NewTool("parse_query",
		mcp.WithDescription("Translate a plain-English stock screening query (e.g. 'RSI above 70', '50-day EMA crosses above 200-day SMA') into a structured filter. Returns the filter as JSON, including which parser produced it."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Screening query in plain English"),
		),
	)
}

// createScreenQueryTool returns the screen_query tool definition
func createScreenQueryTool() mcp.Tool {
	return mcp.NewTool("screen_query",
		mcp.WithDescription("Parse a plain-English screening query and run it against the stored daily price data. Returns the matching symbols at their latest bar with the indicator value that triggered the match."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Screening query in plain English"),
		),
		mcp.WithArray("symbols",
			mcp.WithStringItems(),
			mcp.Description("Restrict the screen to these symbols (default: every stored symbol)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results to return (default and cap: server max_results)"),
		),
	)
}

// createListRulesTool returns the list_rules tool definition
func createListRulesTool() mcp.Tool {
	return mcp.NewTool("list_rules",
		mcp.WithDescription("List the built-in pattern rules in match order. Queries matching one of these are parsed without calling a model."),
	)
}

// createListSymbolsTool returns the list_symbols tool definition
func createListSymbolsTool() mcp.Tool {
	return mcp.NewTool("list_symbols",
		mcp.WithDescription("List the symbols with stored price data."),
	)
}

// createRecentParsesTool returns the recent_parses tool definition
func createRecentParsesTool() mcp.Tool {
	return mcp.NewTool("recent_parses",
		mcp.WithDescription("Show the most recent query parses: which tier answered, the model used and whether the query was understood."),
		mcp.WithNumber("limit",
			mcp.Description("Number of events to return (default: 20)"),
		),
	)
}
