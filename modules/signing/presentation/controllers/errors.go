package controllers

import (
	"errors"
	"net/http"

	"github.com/jacksonlee411/lease-signflow/internal/routing"
	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
	"github.com/jacksonlee411/lease-signflow/pkg/httperr"
	"github.com/jacksonlee411/lease-signflow/pkg/logger"
)

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string) {
	routing.WriteError(w, r, routing.RouteClassInternalAPI, status, code, message)
}

var kindStatus = map[types.ErrorKind]int{
	types.KindInvalidTransition:   http.StatusConflict,
	types.KindAlreadySigned:       http.StatusConflict,
	types.KindOutOfOrderSignature: http.StatusUnprocessableEntity,
	types.KindWorkflowTerminal:    http.StatusLocked,
	types.KindLedgerCorruption:    http.StatusInternalServerError,
	types.KindElapsedTimeAnomaly:  http.StatusInternalServerError,
	types.KindConcurrencyConflict: http.StatusConflict,
	types.KindRoleMismatch:        http.StatusForbidden,
	types.KindContractNotFound:    http.StatusNotFound,
	types.KindInvalidArgument:     http.StatusBadRequest,
}

func writeWorkflowError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := errors.AsType[*types.Error](err); ok && e != nil {
		status, known := kindStatus[e.Kind]
		if !known {
			status = http.StatusInternalServerError
		}
		msg := e.Message
		if e.Kind == types.KindLedgerCorruption {
			msg = "signature trail is inconsistent; the contract has been escalated"
		}
		writeError(w, r, status, string(e.Kind), msg)
		return
	}
	if httperr.IsBadRequest(err) {
		writeError(w, r, http.StatusBadRequest, httperr.CodeOf(err), err.Error())
		return
	}
	logger.Error(r.Context(), "signing request failed", "error", err, "path", r.URL.Path)
	writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
}
