package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the cordon MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolListThreats = mcp.NewTool("list_threats",
	mcp.WithDescription(
		"List recent threat records detected by the cordon gateway. "+
			"Shows threat ID, caller, target, severity level and vulnerability type. "+
			"Use this to get an overview before inspecting individual threats."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of threats to return (default 20)")),
)

var ToolInspectThreat = mcp.NewTool("inspect_threat",
	mcp.WithDescription(
		"Inspect a single threat in detail: the recorded call attempt, the heuristic "+
			"that fired, its reason, freeze state, and any analyst verdict already on file. "+
			"Use this before submitting a verdict or resolving a frozen call."),
	mcp.WithString("threat_id",
		mcp.Required(),
		mcp.Description("The threat ID, a 32-byte hex hash (e.g. '0xabc...')")),
)

var ToolListFrozen = mcp.NewTool("list_frozen",
	mcp.WithDescription(
		"List calls currently held frozen by the gateway, with their initiator, "+
			"freeze expiry and resolution status. Frozen calls wait for a verdict or "+
			"an owner override before they can execute or be reverted."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of frozen calls to return (default 50)")),
)

var ToolPendingAnalyses = mcp.NewTool("pending_analyses",
	mcp.WithDescription(
		"List analysis requests that still need an analyst verdict. "+
			"Each entry is a suspicious call the gateway flagged and wants a "+
			"second opinion on. Work through these with inspect_threat and submit_verdict."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of pending requests to return (default 20)")),
)

var ToolSubmitVerdict = mcp.NewTool("submit_verdict",
	mcp.WithDescription(
		"Submit an analyst verdict for a pending threat. The verdict records your "+
			"analysis text and a suggested action (execute, revert or simulate). "+
			"Marking the verdict critical escalates the threat to CRITICAL severity, "+
			"which blocks self-resolution by the initiator."),
	mcp.WithString("threat_id",
		mcp.Required(),
		mcp.Description("The threat ID from pending_analyses or inspect_threat")),
	mcp.WithString("suggested_action",
		mcp.Required(),
		mcp.Description("Recommended resolution: 'execute' (call looks safe), 'revert' (call is malicious), or 'simulate' (needs another look)"),
		mcp.Enum("execute", "revert", "simulate")),
	mcp.WithString("analysis",
		mcp.Description("Free-text explanation of the verdict")),
	mcp.WithBoolean("is_critical",
		mcp.Description("Set true if the threat is confirmed malicious and must not be self-resolved")),
)

var ToolResolveThreat = mcp.NewTool("resolve_threat",
	mcp.WithDescription(
		"Resolve a frozen call with owner authority. 'execute' releases the original "+
			"call to its target, 'revert' cancels it permanently, 'simulate' requests a "+
			"fresh analysis instead of resolving. Requires the admin secret to be configured."),
	mcp.WithString("threat_id",
		mcp.Required(),
		mcp.Description("The threat ID of the frozen call")),
	mcp.WithString("action",
		mcp.Required(),
		mcp.Description("Resolution action: 'execute', 'revert' or 'simulate'"),
		mcp.Enum("execute", "revert", "simulate")),
)

var ToolGatewayStats = mcp.NewTool("gateway_stats",
	mcp.WithDescription(
		"Get gateway-wide protection statistics: calls forwarded, threats detected, "+
			"threats mitigated and total value of prevented losses."),
)
