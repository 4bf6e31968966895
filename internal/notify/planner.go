package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/ports"
	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
)

// WorkflowReader is the part of the workflow store the planner needs.
type WorkflowReader interface {
	Load(ctx context.Context, contractID string) (types.Workflow, error)
}

// Planner decides who hears about an event. Contacts missing from the payload
// are looked up in the contract directory.
type Planner struct {
	directory ports.ContractDirectory
	workflows WorkflowReader
}

func NewPlanner(directory ports.ContractDirectory, workflows WorkflowReader) *Planner {
	return &Planner{directory: directory, workflows: workflows}
}

func (p *Planner) Plan(ctx context.Context, ev types.Event) ([]Notice, error) {
	switch ev.Type {
	case types.EventSignaturesRequested:
		var d types.SignaturesRequested
		if err := ev.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		subject := "Please sign rental contract " + ev.ContractID
		body := "Signatures were requested"
		if d.RequestedBy != "" {
			body += " by " + d.RequestedBy
		}
		body += ". The tenant signs first, then the owner."
		return dedupe([]Notice{
			notice(ev, Recipient{Name: d.TenantName, Contact: d.TenantContact, Role: string(types.RoleTenant)}, KindInvite, subject, body),
			notice(ev, Recipient{Name: d.OwnerName, Contact: d.OwnerContact, Role: string(types.RoleOwner)}, KindInvite, subject, body),
		}), nil

	case types.EventRoleSigned:
		var d types.RoleSigned
		if err := ev.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		if d.NextRole == "" {
			return nil, nil
		}
		next, err := p.expected(ctx, ev.ContractID, d.NextRole)
		if err != nil {
			return nil, err
		}
		body := fmt.Sprintf("%s signed as %s. It is now your turn to sign as %s.", d.SignerName, d.Role, d.NextRole)
		return dedupe([]Notice{notice(ev, next, KindInfo, "Your signature is needed on contract "+ev.ContractID, body)}), nil

	case types.EventWorkflowCompleted:
		wf, err := p.workflows.Load(ctx, ev.ContractID)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", ev.ContractID, err)
		}
		out := make([]Notice, 0, len(wf.Signatures))
		for _, s := range wf.Signatures {
			r := Recipient{Name: s.SignerName, Contact: s.SignerContact, Role: string(s.Role)}
			out = append(out, notice(ev, r, KindInfo, "Contract "+ev.ContractID+" is active", "All parties have signed. The contract is now active."))
		}
		return dedupe(out), nil

	case types.EventWorkflowRejected:
		var d types.WorkflowRejected
		if err := ev.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		parties, err := p.parties(ctx, ev.ContractID)
		if err != nil {
			return nil, err
		}
		if d.PendingContact != "" {
			parties = append(parties, Recipient{Name: d.PendingName, Contact: d.PendingContact, Role: string(d.PendingRole)})
		}
		body := "The signing workflow was rejected."
		if d.Reason != "" {
			body = fmt.Sprintf("The signing workflow was rejected: %s.", d.Reason)
		}
		out := make([]Notice, 0, len(parties))
		for _, r := range parties {
			out = append(out, notice(ev, r, KindInfo, "Contract "+ev.ContractID+" was rejected", body))
		}
		return dedupe(out), nil

	case types.EventDelegationRequested:
		var d types.DelegationRequested
		if err := ev.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		by := d.RequestedBy
		if by == "" {
			by = "The " + string(d.Role)
		}
		out := []Notice{notice(ev,
			Recipient{Name: d.ToName, Contact: d.ToContact, Role: string(d.Role)},
			KindInvite,
			"You were asked to sign contract "+ev.ContractID,
			fmt.Sprintf("%s asked you to sign as %s.", by, d.Role),
		)}
		if d.CCRequester {
			// The requester is the role's own party; their contact lives in the directory.
			owner, err := p.directory.DefaultSigner(ctx, ev.ContractID, d.Role)
			if err != nil && !errors.Is(err, ports.ErrContractNotFound) {
				return nil, err
			}
			out = append(out, notice(ev, Recipient{Name: owner.Name, Contact: owner.Contact, Role: string(d.Role)}, KindCC,
				"Copy: delegation on contract "+ev.ContractID,
				fmt.Sprintf("%s will sign as %s on your behalf.", d.ToName, d.Role)))
		}
		return dedupe(out), nil

	default:
		return nil, nil
	}
}

// expected is the assignee of role when one is set, else the contract's party.
func (p *Planner) expected(ctx context.Context, contractID string, role types.Role) (Recipient, error) {
	wf, err := p.workflows.Load(ctx, contractID)
	if err != nil {
		return Recipient{}, fmt.Errorf("load %s: %w", contractID, err)
	}
	if a := wf.PendingAssignee; a != nil && a.Role == role {
		return Recipient{Name: a.Signer.Name, Contact: a.Signer.Contact, Role: string(role)}, nil
	}
	s, err := p.directory.DefaultSigner(ctx, contractID, role)
	if err != nil && !errors.Is(err, ports.ErrContractNotFound) {
		return Recipient{}, err
	}
	return Recipient{Name: s.Name, Contact: s.Contact, Role: string(role)}, nil
}

// parties is every known person on the contract: directory parties, signers and
// a pending assignee.
func (p *Planner) parties(ctx context.Context, contractID string) ([]Recipient, error) {
	var out []Recipient
	for _, role := range types.Roles {
		s, err := p.directory.DefaultSigner(ctx, contractID, role)
		if errors.Is(err, ports.ErrContractNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Recipient{Name: s.Name, Contact: s.Contact, Role: string(role)})
	}
	wf, err := p.workflows.Load(ctx, contractID)
	if err != nil && !errors.Is(err, ports.ErrWorkflowNotFound) {
		return nil, fmt.Errorf("load %s: %w", contractID, err)
	}
	for _, s := range wf.Signatures {
		out = append(out, Recipient{Name: s.SignerName, Contact: s.SignerContact, Role: string(s.Role)})
	}
	if a := wf.PendingAssignee; a != nil {
		out = append(out, Recipient{Name: a.Signer.Name, Contact: a.Signer.Contact, Role: string(a.Role)})
	}
	return out, nil
}

func notice(ev types.Event, r Recipient, kind Kind, subject string, body string) Notice {
	r.Name = strings.TrimSpace(r.Name)
	r.Contact = strings.TrimSpace(r.Contact)
	return Notice{
		EventID:    ev.ID,
		EventType:  string(ev.Type),
		ContractID: ev.ContractID,
		Recipient:  r,
		Kind:       kind,
		Subject:    subject,
		Body:       body,
	}
}

// dedupe drops notices without a contact and repeated contacts, keeping the first.
func dedupe(in []Notice) []Notice {
	seen := make(map[string]bool, len(in))
	out := make([]Notice, 0, len(in))
	for _, n := range in {
		key := strings.ToLower(n.Recipient.Contact)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}
