package models

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tripkeeper/internal/server/docstore"
)

type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

func (o OpType) Valid() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

type TargetType string

const (
	TargetPlan    TargetType = "plan"
	TargetEvent   TargetType = "event"
	TargetDayMemo TargetType = "dayMemo"
)

func (t TargetType) Valid() bool {
	switch t {
	case TargetPlan, TargetEvent, TargetDayMemo:
		return true
	}
	return false
}

// Collection is the plan-scoped collection holding targets of this type.
// Plans themselves live at the top level and return "".
func (t TargetType) Collection() string {
	switch t {
	case TargetEvent:
		return CollectionEvents
	case TargetDayMemo:
		return CollectionDayMemos
	}
	return ""
}

type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
	ApprovalExpired  ApprovalState = "expired"
)

// Proposal field names.
const (
	FieldProposalType  = "proposalType"
	FieldBundleID      = "bundleId"
	FieldOperations    = "operations"
	FieldApprovalState = "approvalState"
	FieldRequestedAt   = "requestedAt"
	FieldApprovedAt    = "approvedAt"
	FieldRejectedAt    = "rejectedAt"
	FieldExpiresAt     = "expiresAt"
)

// Operation is one create/update/delete instruction of a proposal.
type Operation struct {
	Op              OpType         `json:"op"`
	TargetType      TargetType     `json:"targetType"`
	TargetID        string         `json:"targetId,omitempty"`
	Patch           map[string]any `json:"patch,omitempty"`
	DraftData       map[string]any `json:"draftData,omitempty"`
	OverrideAllowed bool           `json:"overrideAllowed,omitempty"`
}

var ErrInvalidOperations = errors.New("invalid operations format")

// Validate checks the operation's enums.
func (o Operation) Validate() error {
	if !o.Op.Valid() {
		return fmt.Errorf("%w: unknown op %q", ErrInvalidOperations, o.Op)
	}
	if !o.TargetType.Valid() {
		return fmt.Errorf("%w: unknown targetType %q", ErrInvalidOperations, o.TargetType)
	}
	return nil
}

// ToData renders the operation as stored in a proposal document.
func (o Operation) ToData() map[string]any {
	d := map[string]any{
		"op":         string(o.Op),
		"targetType": string(o.TargetType),
	}
	if o.TargetID != "" {
		d["targetId"] = o.TargetID
	}
	if o.Patch != nil {
		d["patch"] = o.Patch
	}
	if o.DraftData != nil {
		d["draftData"] = o.DraftData
	}
	if o.OverrideAllowed {
		d["overrideAllowed"] = true
	}
	return d
}

func decodeOperation(v any) (Operation, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Operation{}, fmt.Errorf("%w: operation is not an object", ErrInvalidOperations)
	}
	op := Operation{
		Op:              OpType(String(m, "op")),
		TargetType:      TargetType(String(m, "targetType")),
		TargetID:        String(m, "targetId"),
		OverrideAllowed: Bool(m, "overrideAllowed"),
	}
	if p, ok := m["patch"]; ok && p != nil {
		if op.Patch, ok = p.(map[string]any); !ok {
			return Operation{}, fmt.Errorf("%w: patch is not an object", ErrInvalidOperations)
		}
	}
	if p, ok := m["draftData"]; ok && p != nil {
		if op.DraftData, ok = p.(map[string]any); !ok {
			return Operation{}, fmt.Errorf("%w: draftData is not an object", ErrInvalidOperations)
		}
	}
	return op, op.Validate()
}

type ChangeProposal struct {
	ID            string
	PlanID        string
	OwnerUID      string
	ProposalType  OpType
	ApprovalState ApprovalState
	Operations    []Operation
	Version       any
}

// DecodeProposal reads a proposal document. It fails with
// ErrInvalidOperations when the stored operation list is malformed.
func DecodeProposal(doc *docstore.Doc) (ChangeProposal, error) {
	d := doc.Data
	p := ChangeProposal{
		ID:            doc.ID(),
		PlanID:        String(d, FieldPlanID),
		OwnerUID:      String(d, FieldOwnerUID),
		ProposalType:  OpType(String(d, FieldProposalType)),
		ApprovalState: ApprovalState(String(d, FieldApprovalState)),
		Version:       d[FieldVersion],
	}

	raw, ok := d[FieldOperations].([]any)
	if !ok {
		return p, fmt.Errorf("%w: operations is not a list", ErrInvalidOperations)
	}
	p.Operations = make([]Operation, 0, len(raw))
	for i, v := range raw {
		op, err := decodeOperation(v)
		if err != nil {
			return p, fmt.Errorf("operation %d: %w", i, err)
		}
		p.Operations = append(p.Operations, op)
	}
	return p, nil
}
