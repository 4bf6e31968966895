package types

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventSignaturesRequested EventType = "SignaturesRequested"
	EventRoleSigned          EventType = "RoleSigned"
	EventWorkflowCompleted   EventType = "WorkflowCompleted"
	EventWorkflowRejected    EventType = "WorkflowRejected"
	EventDelegationRequested EventType = "DelegationRequested"
)

// Event is the envelope handed to the Notification Dispatcher and written to the outbox.
type Event struct {
	ID         string          `json:"event_id"`
	Type       EventType       `json:"event_type"`
	ContractID string          `json:"contract_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type SignaturesRequested struct {
	ContractID    string `json:"contract_id"`
	TenantName    string `json:"tenant_name,omitempty"`
	TenantContact string `json:"tenant_contact,omitempty"`
	OwnerName     string `json:"owner_name,omitempty"`
	OwnerContact  string `json:"owner_contact,omitempty"`
	RequestedBy   string `json:"requested_by,omitempty"`
}

type RoleSigned struct {
	ContractID string    `json:"contract_id"`
	Role       Role      `json:"role"`
	SignerName string    `json:"signer_name"`
	SignedAt   time.Time `json:"signed_at"`
	NextRole   Role      `json:"next_role,omitempty"`
}

type WorkflowCompleted struct {
	ContractID string `json:"contract_id"`
}

// WorkflowRejected carries the assignee that was cleared by the rejection so the
// delegate still hears about it.
type WorkflowRejected struct {
	ContractID     string `json:"contract_id"`
	Reason         string `json:"reason"`
	RejectedBy     string `json:"rejected_by,omitempty"`
	PendingRole    Role   `json:"pending_role,omitempty"`
	PendingName    string `json:"pending_name,omitempty"`
	PendingContact string `json:"pending_contact,omitempty"`
}

type DelegationRequested struct {
	ContractID  string `json:"contract_id"`
	Role        Role   `json:"role"`
	ToName      string `json:"to_name"`
	ToContact   string `json:"to_contact,omitempty"`
	CCRequester bool   `json:"cc_requester"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// NewEvent marshals payload into an envelope. The id is assigned by the caller.
func NewEvent(id string, typ EventType, contractID string, at time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         id,
		Type:       typ,
		ContractID: contractID,
		OccurredAt: at,
		Data:       data,
	}, nil
}

func (e Event) Decode(dst any) error {
	return json.Unmarshal(e.Data, dst)
}
