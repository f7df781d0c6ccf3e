package dispute

import (
	"context"
	"strings"
	"time"

	"github.com/crossmarket/admincore/internal/audit"
	"github.com/crossmarket/admincore/internal/idgen"
	"github.com/crossmarket/admincore/internal/metrics"
	"github.com/crossmarket/admincore/internal/traces"
)

// MessageRequest appends to a dispute's correspondence thread.
type MessageRequest struct {
	SenderRole Role   `json:"senderRole"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName,omitempty"`
	Message    string `json:"message"`
}

// AddMessage appends a message to an active dispute's thread. Resolved
// disputes are closed to correspondence.
func (s *Service) AddMessage(ctx context.Context, disputeID string, req MessageRequest) (*Message, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.AddMessage", traces.DisputeID(disputeID))
	defer span.End()

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return nil, invalid("message", "is required")
	}
	if req.SenderRole != RoleBuyer && req.SenderRole != RoleSeller && req.SenderRole != RoleAdmin {
		return nil, invalid("senderRole", "must be buyer, seller, or admin")
	}
	if req.SenderID == "" {
		return nil, invalid("senderId", "is required")
	}

	mu := s.lock(disputeID)
	mu.Lock()
	defer mu.Unlock()

	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.IsResolved() {
		return nil, ErrInvalidState
	}

	now := time.Now().UTC()
	m := &Message{
		ID:         idgen.WithPrefix("msg_"),
		DisputeID:  d.ID,
		SenderRole: req.SenderRole,
		SenderID:   req.SenderID,
		SenderName: req.SenderName,
		Message:    req.Message,
		CreatedAt:  now,
	}
	entry := &audit.Entry{
		DisputeID:   d.ID,
		Action:      audit.ActionMessageAdded,
		Severity:    audit.SeverityInfo,
		ActorID:     req.SenderID,
		ActorName:   req.SenderName,
		Description: "Message added by " + string(req.SenderRole),
		Metadata: map[string]any{
			"messageId": m.ID,
			"role":      string(req.SenderRole),
		},
		CreatedAt: now,
	}

	if _, err := s.store.AddMessage(ctx, m, entry); err != nil {
		return nil, err
	}

	metrics.DisputeMessagesTotal.WithLabelValues(string(req.SenderRole)).Inc()
	return m, nil
}

// EvidenceRequest attaches supporting material to a dispute.
type EvidenceRequest struct {
	Type        EvidenceType `json:"type"`
	UploadedBy  string       `json:"uploadedBy"`
	URL         string       `json:"url,omitempty"`
	Description string       `json:"description,omitempty"`
}

// AddEvidence attaches evidence to an active dispute. The uploader must
// be a party to the disputed order; which side the evidence supports is
// derived from that at read time.
func (s *Service) AddEvidence(ctx context.Context, disputeID string, req EvidenceRequest) (*Evidence, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.AddEvidence", traces.DisputeID(disputeID))
	defer span.End()

	switch req.Type {
	case EvidenceImage, EvidenceDocument:
		if req.URL == "" {
			return nil, invalid("url", "is required for image and document evidence")
		}
	case EvidenceText:
		if strings.TrimSpace(req.Description) == "" {
			return nil, invalid("description", "is required for text evidence")
		}
	default:
		return nil, invalid("type", "must be image, document, or text")
	}
	if req.UploadedBy == "" {
		return nil, invalid("uploadedBy", "is required")
	}

	mu := s.lock(disputeID)
	mu.Lock()
	defer mu.Unlock()

	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.IsResolved() {
		return nil, ErrInvalidState
	}

	ord, err := s.orders.Get(ctx, d.OrderID)
	if err != nil {
		return nil, err
	}
	if !ord.IsParty(req.UploadedBy) {
		return nil, invalid("uploadedBy", "is not a party to this order")
	}

	now := time.Now().UTC()
	e := &Evidence{
		ID:          idgen.WithPrefix("evd_"),
		DisputeID:   d.ID,
		Type:        req.Type,
		UploadedBy:  req.UploadedBy,
		URL:         req.URL,
		Description: req.Description,
		UploadedAt:  now,
	}
	entry := &audit.Entry{
		DisputeID:   d.ID,
		Action:      audit.ActionEvidenceAdded,
		Severity:    audit.SeverityInfo,
		ActorID:     req.UploadedBy,
		Description: "Evidence added (" + string(req.Type) + ")",
		Metadata: map[string]any{
			"evidenceId": e.ID,
			"type":       string(req.Type),
		},
		CreatedAt: now,
	}

	if _, err := s.store.AddEvidence(ctx, e, entry); err != nil {
		return nil, err
	}
	return e, nil
}

// AuditLog returns the dispute's audit trail in chronological order.
func (s *Service) AuditLog(ctx context.Context, disputeID string) ([]*audit.Entry, error) {
	if _, err := s.store.Get(ctx, disputeID); err != nil {
		return nil, err
	}
	return s.auditLog.ListByDispute(ctx, disputeID)
}
