package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
	"github.com/jacksonlee411/lease-signflow/modules/signing/infrastructure/persistence"
	"github.com/jacksonlee411/lease-signflow/pkg/logger"
)

func newTestDispatcher(t *testing.T, senders map[string]Sender, fallback Sender) *Dispatcher {
	t.Helper()
	r, err := NewRouter(DefaultRules())
	require.NoError(t, err)
	return NewDispatcher(NewPlanner(seedDirectory(), persistence.NewMemoryStore()), r, senders, fallback)
}

func TestDispatcher_HandleRoutesPerChannel(t *testing.T) {
	email, sms := &recordingSender{}, &recordingSender{}
	d := newTestDispatcher(t, map[string]Sender{"email": email, "sms": sms}, nil)

	err := d.Handle(context.Background(), event(t, types.EventSignaturesRequested, types.SignaturesRequested{
		ContractID: "c-1", TenantContact: "salim@example.com", OwnerContact: "+905550000001",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"email:salim@example.com"}, email.contacts())
	assert.Equal(t, []string{"sms:+905550000001"}, sms.contacts())
}

func TestDispatcher_FallbackAndErrors(t *testing.T) {
	fallback := &recordingSender{}
	failing := &recordingSender{err: errors.New("gateway down")}
	d := newTestDispatcher(t, map[string]Sender{"email": failing}, fallback)

	err := d.Handle(context.Background(), event(t, types.EventSignaturesRequested, types.SignaturesRequested{
		ContractID: "c-1", TenantContact: "salim@example.com", OwnerContact: "+905550000001",
	}))
	require.ErrorContains(t, err, "gateway down")
	assert.Equal(t, []string{"sms:+905550000001", "whatsapp:+905550000001"}, fallback.contacts())
}

func TestDispatcher_InviteObservers(t *testing.T) {
	email := &recordingSender{}
	d := newTestDispatcher(t, map[string]Sender{"email": email}, nil)

	sent, err := d.InviteObservers(context.Background(), "c-1", []types.Observer{
		{Name: "Lawyer", Contact: "law@example.com"},
		{Name: "Lawyer again", Contact: "LAW@example.com"},
		{Name: "Landline", Contact: "0212"},
	}, "please review")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, email.notices, 1)
	n := email.notices[0]
	assert.Equal(t, "observer", n.Recipient.Role)
	assert.Equal(t, KindInfo, n.Kind)
	assert.Contains(t, n.Body, "please review")
	assert.NotEmpty(t, n.EventID)
}

func TestBus_PublishIsolatesSubscriberErrors(t *testing.T) {
	var calls atomic.Int32
	bus := NewBus(SubscriberFunc(func(context.Context, types.Event) error {
		calls.Add(1)
		return errors.New("boom")
	}))
	bus.Subscribe(SubscriberFunc(func(context.Context, types.Event) error {
		calls.Add(1)
		return nil
	}))

	bus.Publish(context.Background(), types.Event{ID: "e-1"}, types.Event{ID: "e-2"})
	assert.EqualValues(t, 4, calls.Load())

	err := bus.Deliver(context.Background(), types.Event{ID: "e-3"})
	require.EqualError(t, err, "boom")
}

func TestWebhookSender(t *testing.T) {
	var got Notice
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		if got.Recipient.Contact == "fail@example.com" {
			http.Error(w, "no such mailbox", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "secret", time.Second)
	ctx := logger.WithRequestID(context.Background(), "req-1")
	n := Notice{EventID: "e-1", Channel: "email", ContractID: "c-1", Recipient: Recipient{Contact: "a@example.com"}}
	require.NoError(t, s.Send(ctx, n))
	assert.Equal(t, "c-1", got.ContractID)
	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
	assert.Equal(t, "req-1", headers.Get("X-Request-ID"))
	assert.Equal(t, "e-1:email:a@example.com", headers.Get("Idempotency-Key"))

	n.Recipient.Contact = "fail@example.com"
	err := s.Send(ctx, n)
	require.ErrorContains(t, err, "status 502")
	assert.ErrorContains(t, err, "no such mailbox")
}

func TestLogSender(t *testing.T) {
	require.NoError(t, LogSender{}.Send(context.Background(), Notice{Channel: "email"}))
}
