package handler

import (
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/crmbridge/bridge-server/internal/errors"
	"github.com/crmbridge/bridge-server/internal/model"
	"github.com/crmbridge/bridge-server/internal/service"
)

// CRMHandler serves the contact and activity logging routes. Every route runs
// behind the session token middleware.
type CRMHandler struct {
	dispatcher *service.Dispatcher
	contacts   *service.ContactService
	calls      *service.CallLogService
	messages   *service.MessageLogService
}

func NewCRMHandler(
	dispatcher *service.Dispatcher,
	contacts *service.ContactService,
	calls *service.CallLogService,
	messages *service.MessageLogService,
) *CRMHandler {
	return &CRMHandler{
		dispatcher: dispatcher,
		contacts:   contacts,
		calls:      calls,
		messages:   messages,
	}
}

// GET /contact?phoneNumber=&overridingFormat=&isExtension=
func (h *CRMHandler) FindContact(w http.ResponseWriter, r *http.Request) {
	sess, err := resolveSession(r, h.dispatcher)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	result, err := h.contacts.FindContact(r.Context(), sess, service.FindContactParams{
		PhoneNumber:      q.Get("phoneNumber"),
		OverridingFormat: q.Get("overridingFormat"),
		IsExtension:      queryBool(q.Get("isExtension")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /contact
func (h *CRMHandler) CreateContact(w http.ResponseWriter, r *http.Request) {
	sess, err := resolveSession(r, h.dispatcher)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		PhoneNumber    string `json:"phoneNumber"`
		NewContactName string `json:"newContactName"`
		NewContactType string `json:"newContactType"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.contacts.CreateContact(r.Context(), sess, service.CreateContactParams{
		PhoneNumber:    req.PhoneNumber,
		NewContactName: req.NewContactName,
		NewContactType: req.NewContactType,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /callLog
func (h *CRMHandler) AddCallLog(w http.ResponseWriter, r *http.Request) {
	sess, err := resolveSession(r, h.dispatcher)
	if err != nil {
		writeError(w, err)
		return
	}

	var req model.AddCallLogRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.calls.AddCallLog(r.Context(), sess, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GET /callLog?sessionIds=a,b&requireDetails=
func (h *CRMHandler) GetCallLog(w http.ResponseWriter, r *http.Request) {
	sess, err := resolveSession(r, h.dispatcher)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	var sessionIDs []string
	for _, id := range strings.Split(q.Get("sessionIds"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			sessionIDs = append(sessionIDs, id)
		}
	}
	if len(sessionIDs) == 0 {
		writeError(w, apperrors.MissingRequired("sessionIds"))
		return
	}

	result, err := h.calls.GetCallLog(r.Context(), sess, sessionIDs, queryBool(q.Get("requireDetails")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PATCH /callLog
func (h *CRMHandler) UpdateCallLog(w http.ResponseWriter, r *http.Request) {
	sess, err := resolveSession(r, h.dispatcher)
	if err != nil {
		writeError(w, err)
		return
	}

	var req model.UpdateCallLogRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.calls.UpdateCallLog(r.Context(), sess, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /messageLog
func (h *CRMHandler) AddMessageLog(w http.ResponseWriter, r *http.Request) {
	sess, err := resolveSession(r, h.dispatcher)
	if err != nil {
		writeError(w, err)
		return
	}

	var req model.AddMessageLogRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.messages.AddMessageLog(r.Context(), sess, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func queryBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
