package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	cfg := Config{
		APIURL:    ts.URL,
		AdminID:   "adm_test",
		AdminName: "Test Admin",
	}
	client := NewAdminClient(cfg)
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// Client tests
// ============================================================

func TestClient_AdminHeaders(t *testing.T) {
	var gotID, gotName string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Admin-Id")
		gotName = r.Header.Get("X-Admin-Name")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewAdminClient(Config{APIURL: ts.URL, AdminID: "adm_7", AdminName: "Priya"})
	_, err := client.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "adm_7", gotID)
	assert.Equal(t, "Priya", gotName)
}

func TestClient_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "workflow_error",
			"message": "The requested status change is not a valid transition",
		})
	}))
	defer ts.Close()

	client := NewAdminClient(Config{APIURL: ts.URL, AdminID: "adm_1"})
	_, err := client.UpdateStatus(context.Background(), "dsp_1", "escalated")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "not a valid transition")
}

func TestClient_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewAdminClient(Config{APIURL: ts.URL, AdminID: "adm_1"})
	_, err := client.GetStats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_ConnectionRefused(t *testing.T) {
	client := NewAdminClient(Config{APIURL: "http://127.0.0.1:1", AdminID: "adm_1"})
	_, err := client.GetStats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_CancelledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewAdminClient(Config{APIURL: ts.URL, AdminID: "adm_1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.GetStats(ctx)
	require.Error(t, err)
}

func TestClient_ListDisputes_QueryParams(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		assert.Equal(t, "high", r.URL.Query().Get("priority"))
		assert.Equal(t, "buyer", r.URL.Query().Get("raised_by"))
		assert.Equal(t, "refund", r.URL.Query().Get("search"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"disputes":[]}`))
	}))
	defer ts.Close()

	client := NewAdminClient(Config{APIURL: ts.URL, AdminID: "adm_1"})
	_, err := client.ListDisputes(context.Background(), "open", "high", "buyer", "refund", 5)
	require.NoError(t, err)
}

func TestClient_ListDisputes_EmptyParams(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("status"))
		assert.Empty(t, r.URL.Query().Get("limit"), "limit=0 should not be sent")
		_, _ = w.Write([]byte(`{"disputes":[]}`))
	}))
	defer ts.Close()

	client := NewAdminClient(Config{APIURL: ts.URL, AdminID: "adm_1"})
	_, err := client.ListDisputes(context.Background(), "", "", "", "", 0)
	require.NoError(t, err)
}

func TestClient_AddMessage_Body(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/disputes/dsp_1/messages", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var m map[string]string
		require.NoError(t, json.Unmarshal(body, &m))
		assert.Equal(t, "admin", m["senderRole"])
		assert.Equal(t, "please upload the tracking number", m["message"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"msg_1"}`))
	}))
	defer ts.Close()

	client := NewAdminClient(Config{APIURL: ts.URL, AdminID: "adm_1"})
	_, err := client.AddMessage(context.Background(), "dsp_1", "please upload the tracking number")
	require.NoError(t, err)
}

func TestClient_Resolve_OmitsEmptyAmount(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var m map[string]string
		require.NoError(t, json.Unmarshal(body, &m))
		_, hasAmount := m["amount"]
		assert.False(t, hasAmount, "amount should be omitted when empty")
		assert.Equal(t, "refund_buyer", m["outcome"])
		_, _ = w.Write([]byte(`{"dispute":{"id":"dsp_1"}}`))
	}))
	defer ts.Close()

	client := NewAdminClient(Config{APIURL: ts.URL, AdminID: "adm_1"})
	_, err := client.Resolve(context.Background(), "dsp_1", "refund_buyer", "", "full refund")
	require.NoError(t, err)
}

// ============================================================
// Handler tests
// ============================================================

func TestHandleListDisputes_Empty(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"disputes":[],"count":0}`))
	}))
	defer cleanup()

	result, err := h.HandleListDisputes(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No disputes found")
}

func TestHandleListDisputes_Formats(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"disputes": [
				{"id":"dsp_1","orderId":"ord_1","status":"open","priority":"high","raisedBy":"buyer","reason":"item not received"},
				{"id":"dsp_2","orderId":"ord_2","status":"resolved","priority":"low","raisedBy":"seller","reason":"chargeback abuse",
				 "resolution":{"outcome":"release_seller"}}
			],
			"count": 2,
			"nextCursor": "abc123"
		}`))
	}))
	defer cleanup()

	result, err := h.HandleListDisputes(context.Background(), makeRequest(map[string]any{"status": "open"}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 dispute(s)")
	assert.Contains(t, text, "dsp_1 [open, high priority]")
	assert.Contains(t, text, "raised by the buyer: item not received")
	assert.Contains(t, text, "Resolved: release_seller")
	assert.Contains(t, text, "More disputes exist")
}

func TestHandleGetDispute_RequiresID(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API should not be called")
	}))
	defer cleanup()

	result, err := h.HandleGetDispute(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "dispute_id is required")
}

func TestHandleGetDispute_Formats(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/disputes/dsp_1", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"dispute": {
				"id":"dsp_1","orderId":"ord_1","status":"resolved","priority":"medium",
				"raisedBy":"buyer","reason":"item not received","description":"Package never arrived.",
				"resolution":{"outcome":"partial_refund","amount":"400.00","notes":"both at fault",
					"resolvedBy":"adm_1","resolvedByName":"Ana"}
			},
			"order": {"id":"ord_1","amount":"999.99","currency":"USD","buyerId":"buyer_1","sellerId":"seller_1"},
			"messages": [{"senderRole":"buyer","message":"where is it"}],
			"evidence": [],
			"buyerEvidence": [{"type":"text","description":"no delivery notice"}],
			"sellerEvidence": []
		}`))
	}))
	defer cleanup()

	result, err := h.HandleGetDispute(context.Background(), makeRequest(map[string]any{"dispute_id": "dsp_1"}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Dispute dsp_1 [resolved, medium priority]")
	assert.Contains(t, text, "Order ord_1: 999.99 USD")
	assert.Contains(t, text, "Resolution: partial_refund (400.00)")
	assert.Contains(t, text, "Decided by Ana: both at fault")
	assert.Contains(t, text, "Buyer evidence: 1")
	assert.Contains(t, text, "no delivery notice")
	assert.Contains(t, text, "Seller evidence: 0")
}

func TestHandleGetDispute_MissingOrder(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"dispute": {"id":"dsp_1","orderId":"ord_gone","status":"open","priority":"low","raisedBy":"seller","reason":"x"},
			"messages": [], "evidence": [], "buyerEvidence": [], "sellerEvidence": []
		}`))
	}))
	defer cleanup()

	result, err := h.HandleGetDispute(context.Background(), makeRequest(map[string]any{"dispute_id": "dsp_1"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Order ord_gone: snapshot unavailable")
}

func TestHandleGetDispute_NotFound(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "not_found", "message": "Dispute not found"})
	}))
	defer cleanup()

	result, err := h.HandleGetDispute(context.Background(), makeRequest(map[string]any{"dispute_id": "dsp_x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Dispute not found")
}

func TestHandleGetTimeline_Formats(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/disputes/dsp_1/timeline", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"timeline": [
				{"kind":"message","at":"2026-08-01T10:00:00.000Z","message":{"senderRole":"buyer","message":"never arrived"}},
				{"kind":"evidence","at":"2026-08-01T11:00:00.000Z","evidence":{"type":"image","url":"https://img/1.png"}},
				{"kind":"message","at":"2026-08-01T12:00:00.000Z","message":{"senderRole":"admin","senderName":"Ana","message":"reviewing"}}
			],
			"count": 3
		}`))
	}))
	defer cleanup()

	result, err := h.HandleGetTimeline(context.Background(), makeRequest(map[string]any{"dispute_id": "dsp_1"}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Timeline (3 events)")
	assert.Contains(t, text, "message from buyer (buyer): never arrived")
	assert.Contains(t, text, "evidence (image): https://img/1.png")
	assert.Contains(t, text, "message from Ana (admin): reviewing")
}

func TestHandleGetAuditLog_Formats(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/disputes/dsp_1/audit-logs", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"auditLogs": [
				{"action":"DISPUTE_OPENED","severity":"INFO","actorId":"buyer_1","description":"Dispute opened","createdAt":"2026-08-01T10:00:00Z"},
				{"action":"DISPUTE_RESOLVED","severity":"WARNING","actorId":"adm_1","actorName":"Ana","description":"Resolved: refund_buyer","createdAt":"2026-08-02T10:00:00Z"}
			],
			"count": 2
		}`))
	}))
	defer cleanup()

	result, err := h.HandleGetAuditLog(context.Background(), makeRequest(map[string]any{"dispute_id": "dsp_1"}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Audit trail (2 entries)")
	assert.Contains(t, text, "DISPUTE_OPENED")
	assert.Contains(t, text, "DISPUTE_RESOLVED [WARNING]")
	assert.Contains(t, text, "by Ana: Resolved: refund_buyer")
}

func TestHandleGetStats_Formats(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"open":4,"underReview":2,"escalated":1,"resolved":10,"avgResolutionHours":36.5}`))
	}))
	defer cleanup()

	result, err := h.HandleGetStats(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Open:         4")
	assert.Contains(t, text, "Escalated:    1")
	assert.Contains(t, text, "Avg time to resolution: 36.5 hours")
}

func TestHandleUpdateStatus(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v1/disputes/dsp_1/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"dsp_1","status":"under_review"}`))
	}))
	defer cleanup()

	result, err := h.HandleUpdateStatus(context.Background(), makeRequest(map[string]any{
		"dispute_id": "dsp_1", "status": "under_review",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Dispute dsp_1 is now under_review.")
}

func TestHandleUpdateStatus_MissingArgs(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API should not be called")
	}))
	defer cleanup()

	result, err := h.HandleUpdateStatus(context.Background(), makeRequest(map[string]any{"dispute_id": "dsp_1"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "status is required")
}

func TestHandleAddMessage(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"msg_9","disputeId":"dsp_1"}`))
	}))
	defer cleanup()

	result, err := h.HandleAddMessage(context.Background(), makeRequest(map[string]any{
		"dispute_id": "dsp_1", "message": "please share the tracking number",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Message posted to dispute dsp_1 (id msg_9)")
}

func TestHandleAddMessage_ThreadClosed(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "workflow_error",
			"message": "A resolved dispute is closed to this operation",
		})
	}))
	defer cleanup()

	result, err := h.HandleAddMessage(context.Background(), makeRequest(map[string]any{
		"dispute_id": "dsp_1", "message": "too late",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "closed to this operation")
}

func TestHandleResolveDispute_PartialRefund(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/disputes/dsp_1/resolve", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var m map[string]string
		require.NoError(t, json.Unmarshal(body, &m))
		assert.Equal(t, "partial_refund", m["outcome"])
		assert.Equal(t, "400.00", m["amount"])
		_, _ = w.Write([]byte(`{
			"dispute": {"id":"dsp_1","status":"resolved"},
			"escrowAction": {"type":"partial_refund","refundAmount":"400.00","releaseAmount":"599.99",
				"status":"success","transactionId":"txn_42"},
			"auditLogIds": ["aud_1","aud_2"]
		}`))
	}))
	defer cleanup()

	result, err := h.HandleResolveDispute(context.Background(), makeRequest(map[string]any{
		"dispute_id": "dsp_1", "outcome": "partial_refund", "amount": "400.00", "notes": "both at fault",
	}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Dispute dsp_1 resolved: partial_refund")
	assert.Contains(t, text, "refund 400.00 to the buyer, release 599.99 to the seller")
	assert.Contains(t, text, "Settlement status: success")
	assert.Contains(t, text, "Transaction: txn_42")
}

func TestHandleResolveDispute_NoAction(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"dispute": {"id":"dsp_1","status":"resolved"},
			"escrowAction": {"type":"none","status":"success"}
		}`))
	}))
	defer cleanup()

	result, err := h.HandleResolveDispute(context.Background(), makeRequest(map[string]any{
		"dispute_id": "dsp_1", "outcome": "no_action", "notes": "claim unsupported",
	}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Escrow action: none")
	assert.NotContains(t, text, "Settlement status")
}

func TestHandleResolveDispute_PendingSettlement(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"dispute": {"id":"dsp_1","status":"resolved"},
			"escrowAction": {"type":"refund","amount":"999.99","status":"pending","message":"escrow service outage"}
		}`))
	}))
	defer cleanup()

	result, err := h.HandleResolveDispute(context.Background(), makeRequest(map[string]any{
		"dispute_id": "dsp_1", "outcome": "refund_buyer", "notes": "refund approved",
	}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "refund 999.99 to the buyer")
	assert.Contains(t, text, "Settlement status: pending")
	assert.Contains(t, text, "escrow service outage")
	assert.Contains(t, text, "reconciliation will retry")
}

func TestHandleResolveDispute_MissingNotes(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API should not be called")
	}))
	defer cleanup()

	result, err := h.HandleResolveDispute(context.Background(), makeRequest(map[string]any{
		"dispute_id": "dsp_1", "outcome": "refund_buyer",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "notes is required")
}

func TestHandleResolveDispute_ValidationErrorSurfaced(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "validation_error",
			"message": "amount must be below the order amount",
			"field":   "amount",
		})
	}))
	defer cleanup()

	result, err := h.HandleResolveDispute(context.Background(), makeRequest(map[string]any{
		"dispute_id": "dsp_1", "outcome": "partial_refund", "amount": "1000.00", "notes": "x",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "amount must be below the order amount")
}
