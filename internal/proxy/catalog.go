package proxy

import (
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "bundocs-mcp"
	searchToolName  = "SearchBun"
	docsResourceURI = "bun://docs"
)

// initializeResult reports the fixed capabilities of the bridge. The
// capability objects are intentionally empty: the catalog never changes.
func initializeResult(version string) map[string]any {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"resources": map[string]any{},
		},
		"serverInfo": mcp.Implementation{Name: serverName, Version: version},
	}
}

// toolCatalog lists the single search tool exposed by the docs endpoint.
func toolCatalog() mcp.ListToolsResult {
	return mcp.ListToolsResult{Tools: []mcp.Tool{
		mcp.NewTool(searchToolName,
			mcp.WithDescription("Search Bun documentation"),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Search query"),
			),
		),
	}}
}

// resourceCatalog lists the single searchable docs resource.
func resourceCatalog() mcp.ListResourcesResult {
	return mcp.ListResourcesResult{Resources: []mcp.Resource{{
		URI:         docsResourceURI,
		Name:        "Bun Documentation",
		Description: "Search and browse Bun documentation",
		MIMEType:    "application/json",
	}}}
}

// resourceContents wraps an upstream search payload in the MCP resource
// read shape, echoing the requested URI.
func resourceContents(uri string, payload []byte) map[string]any {
	return map[string]any{
		"contents": []mcp.TextResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(payload),
		}},
	}
}
