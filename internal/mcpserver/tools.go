package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the admin core MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolListDisputes = mcp.NewTool("list_disputes",
	mcp.WithDescription(
		"List marketplace disputes, newest first. "+
			"Returns dispute ids, statuses, priorities, and reasons. "+
			"Use this to find disputes before drilling into one."),
	mcp.WithString("status",
		mcp.Description("Filter by workflow status"),
		mcp.Enum("open", "under_review", "escalated", "resolved")),
	mcp.WithString("priority",
		mcp.Description("Filter by priority"),
		mcp.Enum("low", "medium", "high")),
	mcp.WithString("raised_by",
		mcp.Description("Filter by which side opened the dispute"),
		mcp.Enum("buyer", "seller")),
	mcp.WithString("search",
		mcp.Description("Free-text search over reason, description, and order id")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of disputes to return (default 20, max 100)")),
)

var ToolGetDispute = mcp.NewTool("get_dispute",
	mcp.WithDescription(
		"Get the full detail view for one dispute: current status, the disputed "+
			"order, the resolution if settled, and evidence split by which side "+
			"submitted it."),
	mcp.WithString("dispute_id",
		mcp.Required(),
		mcp.Description("The dispute id (e.g. 'dsp_a1b2c3')")),
)

var ToolGetTimeline = mcp.NewTool("get_dispute_timeline",
	mcp.WithDescription(
		"Get the chronological timeline of a dispute: every message and every "+
			"piece of evidence, interleaved in the order they arrived. "+
			"Use this to understand how the dispute unfolded."),
	mcp.WithString("dispute_id",
		mcp.Required(),
		mcp.Description("The dispute id")),
)

var ToolGetAuditLog = mcp.NewTool("get_dispute_audit_log",
	mcp.WithDescription(
		"Get the append-only audit trail for a dispute: who did what and when, "+
			"including status changes, resolution decisions, and escrow settlement "+
			"results. This is the authoritative record for compliance review."),
	mcp.WithString("dispute_id",
		mcp.Required(),
		mcp.Description("The dispute id")),
)

var ToolGetStats = mcp.NewTool("get_dispute_stats",
	mcp.WithDescription(
		"Get workload counters across all disputes: how many are open, under "+
			"review, escalated, and resolved, plus the average hours to resolution."),
)

var ToolUpdateStatus = mcp.NewTool("update_dispute_status",
	mcp.WithDescription(
		"Move a dispute to a new workflow status. Only forward moves are "+
			"allowed: open to under_review, under_review to escalated. "+
			"Resolving is done with resolve_dispute, never through this tool."),
	mcp.WithString("dispute_id",
		mcp.Required(),
		mcp.Description("The dispute id")),
	mcp.WithString("status",
		mcp.Required(),
		mcp.Description("The target status"),
		mcp.Enum("under_review", "escalated")),
)

var ToolAddMessage = mcp.NewTool("add_dispute_message",
	mcp.WithDescription(
		"Post an admin message to the dispute's communication thread. "+
			"Both parties can see it. The thread closes once the dispute is resolved."),
	mcp.WithString("dispute_id",
		mcp.Required(),
		mcp.Description("The dispute id")),
	mcp.WithString("message",
		mcp.Required(),
		mcp.Description("The message text to post")),
)

var ToolResolveDispute = mcp.NewTool("resolve_dispute",
	mcp.WithDescription(
		"Settle a dispute with a final outcome and execute the matching escrow "+
			"action. The dispute must be under review or escalated. This is "+
			"irreversible: a resolved dispute can never be reopened. "+
			"Outcomes: refund_buyer (full refund), release_seller (full release), "+
			"partial_refund (split between both sides), no_action (close with no "+
			"money movement)."),
	mcp.WithString("dispute_id",
		mcp.Required(),
		mcp.Description("The dispute id")),
	mcp.WithString("outcome",
		mcp.Required(),
		mcp.Description("The resolution outcome"),
		mcp.Enum("refund_buyer", "release_seller", "partial_refund", "no_action")),
	mcp.WithString("amount",
		mcp.Description("Refund amount for partial_refund (e.g. '400.00'). Must be positive and strictly below the order amount. Ignored for other outcomes.")),
	mcp.WithString("notes",
		mcp.Required(),
		mcp.Description("Reasoning for the decision, recorded in the audit trail")),
)
