package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
	"github.com/jacksonlee411/lease-signflow/pkg/logger"
	"github.com/jacksonlee411/lease-signflow/pkg/uuidv7"
)

var newInvitationID = uuidv7.NewString

// Dispatcher turns workflow events into delivered notices: plan, route, send.
// It never changes workflow state.
type Dispatcher struct {
	planner  *Planner
	router   *Router
	senders  map[string]Sender
	fallback Sender
}

// NewDispatcher wires senders by channel. Channels without a sender go to
// fallback, or are skipped with a warning when fallback is nil.
func NewDispatcher(planner *Planner, router *Router, senders map[string]Sender, fallback Sender) *Dispatcher {
	return &Dispatcher{planner: planner, router: router, senders: senders, fallback: fallback}
}

var _ Subscriber = (*Dispatcher)(nil)

func (d *Dispatcher) Handle(ctx context.Context, ev types.Event) error {
	notices, err := d.planner.Plan(ctx, ev)
	if err != nil {
		return err
	}
	_, err = d.deliver(ctx, notices)
	return err
}

// InviteObservers sends an informational notice to each observer and returns
// the number of notices delivered.
func (d *Dispatcher) InviteObservers(ctx context.Context, contractID string, observers []types.Observer, note string) (int, error) {
	id, err := newInvitationID()
	if err != nil {
		return 0, err
	}
	body := "You were invited to follow the signing of contract " + contractID + "."
	if note = strings.TrimSpace(note); note != "" {
		body += " " + note
	}
	notices := make([]Notice, 0, len(observers))
	for _, o := range observers {
		notices = append(notices, Notice{
			EventID:    id,
			EventType:  "ObserverInvited",
			ContractID: contractID,
			Recipient:  Recipient{Name: strings.TrimSpace(o.Name), Contact: strings.TrimSpace(o.Contact), Role: "observer"},
			Kind:       KindInfo,
			Subject:    "Following contract " + contractID,
			Body:       body,
		})
	}
	return d.deliver(ctx, dedupe(notices))
}

func (d *Dispatcher) deliver(ctx context.Context, notices []Notice) (int, error) {
	var errs []error
	sent := 0
	for _, n := range notices {
		channels, err := d.router.Channels(n)
		if err != nil {
			return sent, err
		}
		if len(channels) == 0 {
			logger.Warn(ctx, "notice has no channel", "contract_id", n.ContractID, "contact", n.Recipient.Contact)
			continue
		}
		for _, ch := range channels {
			n.Channel = ch
			s, ok := d.senders[ch]
			if !ok {
				s = d.fallback
			}
			if s == nil {
				logger.Warn(ctx, "no sender for channel", "channel", ch, "contract_id", n.ContractID)
				continue
			}
			if err := s.Send(ctx, n); err != nil {
				errs = append(errs, fmt.Errorf("%s to %s: %w", ch, n.Recipient.Contact, err))
				continue
			}
			sent++
		}
	}
	return sent, errors.Join(errs...)
}
