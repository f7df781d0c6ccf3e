package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *AdminClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *AdminClient) *Handlers {
	return &Handlers{client: client}
}

// HandleListDisputes lists disputes matching the filters.
func (h *Handlers) HandleListDisputes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := req.GetString("status", "")
	priority := req.GetString("priority", "")
	raisedBy := req.GetString("raised_by", "")
	search := req.GetString("search", "")
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListDisputes(ctx, status, priority, raisedBy, search, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list disputes: %v", err)), nil
	}

	text, err := formatDisputeList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse disputes: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetDispute returns the detail view for one dispute.
func (h *Handlers) HandleGetDispute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	disputeID := req.GetString("dispute_id", "")
	if disputeID == "" {
		return mcp.NewToolResultError("dispute_id is required"), nil
	}

	raw, err := h.client.GetDispute(ctx, disputeID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get dispute: %v", err)), nil
	}

	text, err := formatDisputeDetail(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse dispute: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetTimeline returns the merged message/evidence timeline.
func (h *Handlers) HandleGetTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	disputeID := req.GetString("dispute_id", "")
	if disputeID == "" {
		return mcp.NewToolResultError("dispute_id is required"), nil
	}

	raw, err := h.client.GetTimeline(ctx, disputeID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get timeline: %v", err)), nil
	}

	text, err := formatTimeline(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse timeline: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetAuditLog returns the audit trail for a dispute.
func (h *Handlers) HandleGetAuditLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	disputeID := req.GetString("dispute_id", "")
	if disputeID == "" {
		return mcp.NewToolResultError("dispute_id is required"), nil
	}

	raw, err := h.client.GetAuditLog(ctx, disputeID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get audit log: %v", err)), nil
	}

	text, err := formatAuditLog(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse audit log: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetStats returns queue counters.
func (h *Handlers) HandleGetStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get stats: %v", err)), nil
	}

	var st struct {
		Open               int     `json:"open"`
		UnderReview        int     `json:"underReview"`
		Escalated          int     `json:"escalated"`
		Resolved           int     `json:"resolved"`
		AvgResolutionHours float64 `json:"avgResolutionHours"`
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse stats: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("Dispute queue:\n")
	fmt.Fprintf(&sb, "  Open:         %d\n", st.Open)
	fmt.Fprintf(&sb, "  Under review: %d\n", st.UnderReview)
	fmt.Fprintf(&sb, "  Escalated:    %d\n", st.Escalated)
	fmt.Fprintf(&sb, "  Resolved:     %d\n", st.Resolved)
	if st.Resolved > 0 {
		fmt.Fprintf(&sb, "  Avg time to resolution: %.1f hours\n", st.AvgResolutionHours)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleUpdateStatus moves a dispute along the workflow.
func (h *Handlers) HandleUpdateStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	disputeID := req.GetString("dispute_id", "")
	if disputeID == "" {
		return mcp.NewToolResultError("dispute_id is required"), nil
	}
	status := req.GetString("status", "")
	if status == "" {
		return mcp.NewToolResultError("status is required"), nil
	}

	raw, err := h.client.UpdateStatus(ctx, disputeID, status)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Status change failed: %v", err)), nil
	}

	var d disputeView
	if err := json.Unmarshal(raw, &d); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse dispute: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Dispute %s is now %s.", d.ID, d.Status)), nil
}

// HandleAddMessage posts an admin message to the thread.
func (h *Handlers) HandleAddMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	disputeID := req.GetString("dispute_id", "")
	if disputeID == "" {
		return mcp.NewToolResultError("dispute_id is required"), nil
	}
	message := req.GetString("message", "")
	if message == "" {
		return mcp.NewToolResultError("message is required"), nil
	}

	raw, err := h.client.AddMessage(ctx, disputeID, message)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to post message: %v", err)), nil
	}

	var m struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse message: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Message posted to dispute %s (id %s). Both parties can see it.", disputeID, m.ID)), nil
}

// HandleResolveDispute settles a dispute and reports the escrow outcome.
func (h *Handlers) HandleResolveDispute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	disputeID := req.GetString("dispute_id", "")
	if disputeID == "" {
		return mcp.NewToolResultError("dispute_id is required"), nil
	}
	outcome := req.GetString("outcome", "")
	if outcome == "" {
		return mcp.NewToolResultError("outcome is required"), nil
	}
	notes := req.GetString("notes", "")
	if notes == "" {
		return mcp.NewToolResultError("notes is required"), nil
	}
	amount := req.GetString("amount", "")

	raw, err := h.client.Resolve(ctx, disputeID, outcome, amount, notes)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Resolution failed: %v", err)), nil
	}

	var res struct {
		Dispute      disputeView `json:"dispute"`
		EscrowAction struct {
			Type          string `json:"type"`
			Amount        string `json:"amount"`
			RefundAmount  string `json:"refundAmount"`
			ReleaseAmount string `json:"releaseAmount"`
			Status        string `json:"status"`
			TransactionID string `json:"transactionId"`
			Message       string `json:"message"`
		} `json:"escrowAction"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse resolution: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Dispute %s resolved: %s\n", res.Dispute.ID, outcome)
	a := res.EscrowAction
	switch a.Type {
	case "refund":
		fmt.Fprintf(&sb, "Escrow action: refund %s to the buyer\n", a.Amount)
	case "release":
		fmt.Fprintf(&sb, "Escrow action: release %s to the seller\n", a.Amount)
	case "partial_refund":
		fmt.Fprintf(&sb, "Escrow action: refund %s to the buyer, release %s to the seller\n", a.RefundAmount, a.ReleaseAmount)
	default:
		sb.WriteString("Escrow action: none (no money moved)\n")
	}
	if a.Type != "none" {
		fmt.Fprintf(&sb, "Settlement status: %s\n", a.Status)
		if a.TransactionID != "" {
			fmt.Fprintf(&sb, "Transaction: %s\n", a.TransactionID)
		}
		if a.Status != "success" && a.Message != "" {
			fmt.Fprintf(&sb, "Note: %s\n", a.Message)
		}
		if a.Status == "pending" {
			sb.WriteString("The escrow transfer did not complete yet; reconciliation will retry it. The dispute decision itself is final.\n")
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// --- Formatting helpers ---

type disputeView struct {
	ID          string `json:"id"`
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	RaisedBy    string `json:"raisedBy"`
	Reason      string `json:"reason"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	Resolution  *struct {
		Outcome        string `json:"outcome"`
		Amount         string `json:"amount"`
		Notes          string `json:"notes"`
		ResolvedBy     string `json:"resolvedBy"`
		ResolvedByName string `json:"resolvedByName"`
		ResolvedAt     string `json:"resolvedAt"`
	} `json:"resolution"`
}

func formatDisputeList(raw json.RawMessage) (string, error) {
	var resp struct {
		Disputes   []disputeView `json:"disputes"`
		NextCursor string        `json:"nextCursor"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Disputes) == 0 {
		return "No disputes found matching your criteria.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d dispute(s):\n\n", len(resp.Disputes))
	for i, d := range resp.Disputes {
		fmt.Fprintf(&sb, "%d. %s [%s, %s priority]\n", i+1, d.ID, d.Status, d.Priority)
		fmt.Fprintf(&sb, "   Order %s, raised by the %s: %s\n", d.OrderID, d.RaisedBy, d.Reason)
		if d.Resolution != nil {
			fmt.Fprintf(&sb, "   Resolved: %s\n", d.Resolution.Outcome)
		}
		if i < len(resp.Disputes)-1 {
			sb.WriteString("\n")
		}
	}
	if resp.NextCursor != "" {
		sb.WriteString("\n\nMore disputes exist; narrow the filters or raise the limit.")
	}
	return sb.String(), nil
}

func formatDisputeDetail(raw json.RawMessage) (string, error) {
	var det struct {
		Dispute disputeView `json:"dispute"`
		Order   *struct {
			ID       string `json:"id"`
			Amount   string `json:"amount"`
			Currency string `json:"currency"`
			BuyerID  string `json:"buyerId"`
			SellerID string `json:"sellerId"`
		} `json:"order"`
		Messages []struct {
			SenderRole string `json:"senderRole"`
			Message    string `json:"message"`
		} `json:"messages"`
		BuyerEvidence  []evidenceView `json:"buyerEvidence"`
		SellerEvidence []evidenceView `json:"sellerEvidence"`
	}
	if err := json.Unmarshal(raw, &det); err != nil {
		return "", err
	}

	d := det.Dispute
	var sb strings.Builder
	fmt.Fprintf(&sb, "Dispute %s [%s, %s priority]\n", d.ID, d.Status, d.Priority)
	fmt.Fprintf(&sb, "Raised by the %s: %s\n", d.RaisedBy, d.Reason)
	if d.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", d.Description)
	}

	if det.Order != nil {
		o := det.Order
		fmt.Fprintf(&sb, "\nOrder %s: %s %s (buyer %s, seller %s)\n", o.ID, o.Amount, o.Currency, o.BuyerID, o.SellerID)
	} else {
		fmt.Fprintf(&sb, "\nOrder %s: snapshot unavailable\n", d.OrderID)
	}

	if r := d.Resolution; r != nil {
		fmt.Fprintf(&sb, "\nResolution: %s", r.Outcome)
		if r.Amount != "" && r.Amount != "0.00" {
			fmt.Fprintf(&sb, " (%s)", r.Amount)
		}
		sb.WriteString("\n")
		who := r.ResolvedByName
		if who == "" {
			who = r.ResolvedBy
		}
		fmt.Fprintf(&sb, "Decided by %s: %s\n", who, r.Notes)
	}

	fmt.Fprintf(&sb, "\nMessages: %d\n", len(det.Messages))
	writeEvidenceSide(&sb, "Buyer evidence", det.BuyerEvidence)
	writeEvidenceSide(&sb, "Seller evidence", det.SellerEvidence)
	return sb.String(), nil
}

type evidenceView struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	Description string `json:"description"`
	UploadedAt  string `json:"uploadedAt"`
}

func writeEvidenceSide(sb *strings.Builder, label string, items []evidenceView) {
	fmt.Fprintf(sb, "%s: %d\n", label, len(items))
	for _, e := range items {
		detail := e.Description
		if detail == "" {
			detail = e.URL
		}
		fmt.Fprintf(sb, "  - [%s] %s\n", e.Type, detail)
	}
}

func formatTimeline(raw json.RawMessage) (string, error) {
	var resp struct {
		Timeline []struct {
			Kind    string `json:"kind"`
			At      string `json:"at"`
			Message *struct {
				SenderRole string `json:"senderRole"`
				SenderName string `json:"senderName"`
				Message    string `json:"message"`
			} `json:"message"`
			Evidence *evidenceView `json:"evidence"`
		} `json:"timeline"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Timeline) == 0 {
		return "The dispute has no activity yet.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Timeline (%d events):\n\n", len(resp.Timeline))
	for _, it := range resp.Timeline {
		switch {
		case it.Message != nil:
			who := it.Message.SenderName
			if who == "" {
				who = it.Message.SenderRole
			}
			fmt.Fprintf(&sb, "%s  message from %s (%s): %s\n", it.At, who, it.Message.SenderRole, it.Message.Message)
		case it.Evidence != nil:
			detail := it.Evidence.Description
			if detail == "" {
				detail = it.Evidence.URL
			}
			fmt.Fprintf(&sb, "%s  evidence (%s): %s\n", it.At, it.Evidence.Type, detail)
		}
	}
	return sb.String(), nil
}

func formatAuditLog(raw json.RawMessage) (string, error) {
	var resp struct {
		AuditLogs []struct {
			Action      string `json:"action"`
			Severity    string `json:"severity"`
			ActorID     string `json:"actorId"`
			ActorName   string `json:"actorName"`
			Description string `json:"description"`
			CreatedAt   string `json:"createdAt"`
		} `json:"auditLogs"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.AuditLogs) == 0 {
		return "The audit trail is empty.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Audit trail (%d entries):\n\n", len(resp.AuditLogs))
	for _, e := range resp.AuditLogs {
		actor := e.ActorName
		if actor == "" {
			actor = e.ActorID
		}
		fmt.Fprintf(&sb, "%s  %s", e.CreatedAt, e.Action)
		if e.Severity == "WARNING" {
			sb.WriteString(" [WARNING]")
		}
		fmt.Fprintf(&sb, "\n  by %s: %s\n", actor, e.Description)
	}
	return sb.String(), nil
}
