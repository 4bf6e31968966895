package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jacksonlee411/lease-signflow/internal/routing"
	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
	"github.com/jacksonlee411/lease-signflow/modules/signing/services"
	"github.com/jacksonlee411/lease-signflow/pkg/authz"
	"github.com/jacksonlee411/lease-signflow/pkg/httperr"
)

const maxBodyBytes = 64 << 10

type WorkflowAPI interface {
	GetState(ctx context.Context, contractID string) (types.Snapshot, error)
	RequestSignatures(ctx context.Context, contractID string, requestedBy string) (types.Snapshot, error)
	Sign(ctx context.Context, contractID string, req services.SignRequest) (types.Snapshot, error)
	Reject(ctx context.Context, contractID string, reason string, rejectedBy string) (types.Snapshot, error)
	Delegate(ctx context.Context, contractID string, req services.DelegateRequest) (types.Snapshot, error)
}

type ObserverInviter interface {
	InviteObservers(ctx context.Context, contractID string, observers []types.Observer, note string) (int, error)
}

type WorkflowController struct {
	Service WorkflowAPI
	Inviter ObserverInviter
}

type signAPIRequest struct {
	Role          string `json:"role"`
	SignerName    string `json:"signer_name"`
	SignerContact string `json:"signer_contact"`
}

type rejectAPIRequest struct {
	Reason string `json:"reason"`
}

type delegateAPIRequest struct {
	Role        string `json:"role"`
	ToName      string `json:"to_name"`
	ToContact   string `json:"to_contact"`
	CCRequester bool   `json:"cc_requester"`
}

type observersAPIRequest struct {
	Observers []types.Observer `json:"observers"`
	Note      string           `json:"note"`
}

// Register mounts the workflow endpoints under /signing/api.
func (c WorkflowController) Register(r *routing.Router) {
	const base = "/signing/api/contracts/{contract_id}"
	rc := routing.RouteClassInternalAPI
	r.Handle(rc, http.MethodGet, base+"/workflow", http.HandlerFunc(c.HandleGetState))
	r.Handle(rc, http.MethodPost, base+"/workflow:request", http.HandlerFunc(c.HandleRequestSignatures))
	r.Handle(rc, http.MethodPost, base+"/workflow:reject", http.HandlerFunc(c.HandleReject))
	r.Handle(rc, http.MethodPost, base+"/signatures", http.HandlerFunc(c.HandleSign))
	r.Handle(rc, http.MethodPost, base+"/delegation", http.HandlerFunc(c.HandleDelegate))
	r.Handle(rc, http.MethodPost, base+"/observers", http.HandlerFunc(c.HandleInviteObservers))
}

func (c WorkflowController) HandleGetState(w http.ResponseWriter, r *http.Request) {
	snap, err := c.Service.GetState(r.Context(), chi.URLParam(r, "contract_id"))
	if err != nil {
		writeWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (c WorkflowController) HandleRequestSignatures(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	snap, err := c.Service.RequestSignatures(r.Context(), chi.URLParam(r, "contract_id"), p.Actor())
	if err != nil {
		writeWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (c WorkflowController) HandleSign(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req signAPIRequest
	if err := decodeJSON(r, &req); err != nil {
		writeWorkflowError(w, r, err)
		return
	}
	role, ok := types.ParseRole(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, string(types.KindInvalidArgument), "role must be tenant, owner or admin")
		return
	}

	snap, err := c.Service.Sign(r.Context(), chi.URLParam(r, "contract_id"), services.SignRequest{
		Role:          role,
		ActingAs:      types.Role(p.Role),
		SignerName:    req.SignerName,
		SignerContact: req.SignerContact,
		OriginHint:    originHint(r),
	})
	if err != nil {
		writeWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (c WorkflowController) HandleReject(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req rejectAPIRequest
	if err := decodeJSON(r, &req); err != nil {
		writeWorkflowError(w, r, err)
		return
	}
	snap, err := c.Service.Reject(r.Context(), chi.URLParam(r, "contract_id"), strings.TrimSpace(req.Reason), p.Actor())
	if err != nil {
		writeWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (c WorkflowController) HandleDelegate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req delegateAPIRequest
	if err := decodeJSON(r, &req); err != nil {
		writeWorkflowError(w, r, err)
		return
	}
	role, ok := types.ParseRole(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, string(types.KindInvalidArgument), "role must be tenant, owner or admin")
		return
	}
	snap, err := c.Service.Delegate(r.Context(), chi.URLParam(r, "contract_id"), services.DelegateRequest{
		Role:        role,
		ToName:      req.ToName,
		ToContact:   req.ToContact,
		CCRequester: req.CCRequester,
		RequestedBy: p.Actor(),
	})
	if err != nil {
		writeWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleInviteObservers notifies observers about the contract. The workflow
// itself is only read, to reject unknown contracts.
func (c WorkflowController) HandleInviteObservers(w http.ResponseWriter, r *http.Request) {
	if _, ok := principal(w, r); !ok {
		return
	}
	if c.Inviter == nil {
		writeError(w, r, http.StatusNotFound, "not_found", "observer invitations are not enabled")
		return
	}
	var req observersAPIRequest
	if err := decodeJSON(r, &req); err != nil {
		writeWorkflowError(w, r, err)
		return
	}
	observers := make([]types.Observer, 0, len(req.Observers))
	for _, o := range req.Observers {
		o.Name = strings.TrimSpace(o.Name)
		o.Contact = strings.TrimSpace(o.Contact)
		if o.Contact == "" {
			writeError(w, r, http.StatusBadRequest, string(types.KindInvalidArgument), "every observer needs a contact")
			return
		}
		observers = append(observers, o)
	}
	if len(observers) == 0 {
		writeError(w, r, http.StatusBadRequest, string(types.KindInvalidArgument), "observers is required")
		return
	}

	contractID := chi.URLParam(r, "contract_id")
	snap, err := c.Service.GetState(r.Context(), contractID)
	if err != nil {
		writeWorkflowError(w, r, err)
		return
	}
	sent, err := c.Inviter.InviteObservers(r.Context(), snap.ContractID, observers, strings.TrimSpace(req.Note))
	if err != nil {
		writeWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"contract_id": snap.ContractID,
		"invited":     len(observers),
		"notices":     sent,
	})
}

func principal(w http.ResponseWriter, r *http.Request) (authz.Principal, bool) {
	p, ok := authz.PrincipalFrom(r.Context())
	if !ok || p.Role == "" {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return authz.Principal{}, false
	}
	return p, true
}

// decodeJSON accepts an empty body as the zero value.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return httperr.NewBadRequestCode("bad_json", "bad json")
	}
	if len(body) > maxBodyBytes {
		return httperr.NewBadRequestCode("invalid_request", "request body too large")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		if _, ok := errors.AsType[*json.UnmarshalTypeError](err); ok {
			return httperr.NewBadRequestCode("bad_json", err.Error())
		}
		return httperr.NewBadRequestCode("bad_json", "bad json")
	}
	return nil
}

// originHint is the first X-Forwarded-For hop, else the remote host.
func originHint(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
