package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crossmarket/admincore/internal/dispute"
	"github.com/crossmarket/admincore/internal/logging"
	"github.com/crossmarket/admincore/internal/order"
)

// writeDisputeError maps service errors onto the API's error envelope.
func writeDisputeError(c *gin.Context, err error) {
	var ve *dispute.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "validation_error",
			"message": ve.Field + " " + ve.Reason,
			"field":   ve.Field,
		})
	case errors.Is(err, dispute.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "workflow_error",
			"message": "The requested status change is not a valid transition",
		})
	case errors.Is(err, dispute.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "workflow_error",
			"message": "A resolved dispute is closed to this operation",
		})
	case errors.Is(err, dispute.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "conflict",
			"message": "The dispute was modified concurrently; reload and retry",
		})
	case errors.Is(err, dispute.ErrDisputeNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Dispute not found",
		})
	case errors.Is(err, order.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Order not found",
		})
	default:
		logging.L(c.Request.Context()).Error("dispute operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}
}

// listDisputesHandler handles GET /v1/disputes
func (s *Server) listDisputesHandler(c *gin.Context) {
	f := dispute.Filter{
		Status:   dispute.Status(c.Query("status")),
		Priority: dispute.Priority(c.Query("priority")),
		RaisedBy: dispute.Party(c.Query("raised_by")),
		Search:   c.Query("search"),
		Cursor:   c.Query("cursor"),
		Limit:    intQuery(c, "limit", 20),
	}

	disputes, next, err := s.disputes.List(c.Request.Context(), f)
	if err != nil {
		writeDisputeError(c, err)
		return
	}
	if disputes == nil {
		disputes = []*dispute.Dispute{}
	}

	resp := gin.H{"disputes": disputes, "count": len(disputes)}
	if next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// disputeStatsHandler handles GET /v1/disputes/stats
func (s *Server) disputeStatsHandler(c *gin.Context) {
	st, err := s.disputes.Stats(c.Request.Context())
	if err != nil {
		writeDisputeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// getDisputeHandler handles GET /v1/disputes/:id
func (s *Server) getDisputeHandler(c *gin.Context) {
	det, err := s.disputes.GetDispute(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDisputeError(c, err)
		return
	}
	c.JSON(http.StatusOK, det)
}

// timelineHandler handles GET /v1/disputes/:id/timeline
func (s *Server) timelineHandler(c *gin.Context) {
	items, err := s.disputes.Timeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDisputeError(c, err)
		return
	}
	if items == nil {
		items = []*dispute.TimelineItem{}
	}
	c.JSON(http.StatusOK, gin.H{"timeline": items, "count": len(items)})
}

// auditLogsHandler handles GET /v1/disputes/:id/audit-logs
func (s *Server) auditLogsHandler(c *gin.Context) {
	entries, err := s.disputes.AuditLog(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDisputeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auditLogs": entries, "count": len(entries)})
}

// openDisputeHandler handles POST /v1/disputes
func (s *Server) openDisputeHandler(c *gin.Context) {
	var req dispute.OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	d, err := s.disputes.Open(c.Request.Context(), req)
	if err != nil {
		writeDisputeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// updateStatusHandler handles PATCH /v1/disputes/:id/status
func (s *Server) updateStatusHandler(c *gin.Context) {
	var req struct {
		Status dispute.Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body: status is required",
		})
		return
	}

	d, err := s.disputes.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, actorFrom(c))
	if err != nil {
		writeDisputeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// resolveHandler handles POST /v1/disputes/:id/resolve
func (s *Server) resolveHandler(c *gin.Context) {
	var req dispute.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	res, err := s.disputes.Resolve(c.Request.Context(), c.Param("id"), req, actorFrom(c))
	if err != nil {
		writeDisputeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// addMessageHandler handles POST /v1/disputes/:id/messages
func (s *Server) addMessageHandler(c *gin.Context) {
	var req dispute.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	// Console operators post as themselves unless the request says otherwise
	// (marketplace relays set the sender explicitly).
	if req.SenderID == "" {
		actor := actorFrom(c)
		req.SenderID = actor.ID
		req.SenderName = actor.Name
		if req.SenderRole == "" {
			req.SenderRole = dispute.RoleAdmin
		}
	}

	m, err := s.disputes.AddMessage(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeDisputeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// addEvidenceHandler handles POST /v1/disputes/:id/evidence
func (s *Server) addEvidenceHandler(c *gin.Context) {
	var req dispute.EvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	e, err := s.disputes.AddEvidence(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeDisputeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func intQuery(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	var n int
	for _, r := range v {
		if r < '0' || r > '9' {
			return fallback
		}
		n = n*10 + int(r-'0')
		if n > 1000 {
			return fallback
		}
	}
	return n
}
