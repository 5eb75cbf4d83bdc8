package cache

// Key namespaces shared with the cleanup jobs. Keys are "<scope>:<namespace>:<id>",
// where scope is usually a user or workspace id.
const (
	ToolsPattern = "*:mcp:tools:*"
	OAuthPattern = "*:mcp:oauth:*"
	PKCEPattern  = "*:pkce:*"
)

// ToolsKey returns the key caching an MCP server's tool list.
func ToolsKey(scope, server string) string { return scope + ":mcp:tools:" + server }

// OAuthKey returns the key caching MCP OAuth state for a server.
func OAuthKey(scope, server string) string { return scope + ":mcp:oauth:" + server }

// PKCEKey returns the key holding a PKCE code verifier for an OAuth state value.
func PKCEKey(scope, state string) string { return scope + ":pkce:" + state }
