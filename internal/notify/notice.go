package notify

type Kind string

const (
	KindInvite Kind = "invite"
	KindCC     Kind = "cc"
	KindInfo   Kind = "info"
)

type Recipient struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Role    string `json:"role,omitempty"`
}

// Notice is one message to one recipient over one channel. Channel is empty
// until the Router assigns it.
type Notice struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	ContractID string    `json:"contract_id"`
	Recipient  Recipient `json:"recipient"`
	Kind       Kind      `json:"kind"`
	Channel    string    `json:"channel,omitempty"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
}
