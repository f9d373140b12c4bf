/**
 * @description
 * HTTP handlers for the functions endpoints: referred-user provisioning,
 * push notification fan-out, and the contact privacy gate.
 *
 * Key features:
 * - Authorization: the middleware establishes identity; these handlers
 *   enforce that the token subject matches the acted-on user, with the
 *   service-role key bypassing that check.
 * - Status contract: business outcomes — including late authorization
 *   failures — are returned as HTTP 200 with an {ok, error} body. Only a
 *   missing or invalid credential (401, middleware) and unsupported
 *   methods (405, router) use non-200 codes. Mobile clients branch on the
 *   body, not the status line.
 *
 * @dependencies
 * - github.com/google/uuid: For parsing identifiers.
 * - The service's internal packages for the workflow services.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/VineMe-App/vineme-backend/internal/app"
	"github.com/VineMe-App/vineme-backend/internal/domain"
	"github.com/VineMe-App/vineme-backend/internal/store"
)

// errorCodeDuplicateReferral is the one machine-readable error code the
// provisioning endpoint exposes.
const errorCodeDuplicateReferral = "DUPLICATE_REFERRAL"

// ProvisioningWorkflow is the provisioning service surface the handlers use.
type ProvisioningWorkflow interface {
	ProvisionReferredUser(ctx context.Context, input app.ProvisionInput) (*app.ProvisionResult, error)
}

// ContactGate is the contact access service surface the handlers use.
type ContactGate interface {
	RequestContactAccess(ctx context.Context, req app.ContactAccessRequest) (*domain.ContactDetails, error)
}

// Notifier is the push fan-out surface the handlers use.
type Notifier interface {
	NotifyUser(ctx context.Context, userID uuid.UUID, title, body string, data map[string]interface{}) (int, error)
}

// ReferralLimiter throttles provisioning per referrer. A nil limiter
// disables throttling.
type ReferralLimiter interface {
	Consume(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// FunctionHandlers bundles the handlers and their dependencies.
type FunctionHandlers struct {
	provisioning   ProvisioningWorkflow
	contacts       ContactGate
	push           Notifier
	limiter        ReferralLimiter
	referralPerMin int
}

// NewFunctionHandlers creates a new instance of FunctionHandlers.
func NewFunctionHandlers(provisioning ProvisioningWorkflow, contacts ContactGate, push Notifier, limiter ReferralLimiter, referralPerMin int) *FunctionHandlers {
	return &FunctionHandlers{
		provisioning:   provisioning,
		contacts:       contacts,
		push:           push,
		limiter:        limiter,
		referralPerMin: referralPerMin,
	}
}

type createReferredUserRequest struct {
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	Note       string `json:"note,omitempty"`
	ReferrerID string `json:"referrerId"`
	GroupID    string `json:"groupId,omitempty"`
}

type createReferredUserResponse struct {
	OK                 bool   `json:"ok"`
	UserID             string `json:"userId,omitempty"`
	ReferralID         string `json:"referralId,omitempty"`
	ReferralCreated    bool   `json:"referralCreated"`
	MembershipCreated  bool   `json:"membershipCreated"`
	ReusedExistingUser bool   `json:"reusedExistingUser"`
	Error              string `json:"error,omitempty"`
	ErrorCode          string `json:"errorCode,omitempty"`
}

// HandleCreateReferredUser provisions an account and referral for the
// candidate named in the request body.
func (h *FunctionHandlers) HandleCreateReferredUser(w http.ResponseWriter, r *http.Request) {
	var req createReferredUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBodyError(w, "invalid JSON body")
		return
	}

	referrerID, err := uuid.Parse(req.ReferrerID)
	if err != nil {
		writeBodyError(w, "referrerId must be a valid UUID")
		return
	}

	// The token subject must be the referrer; trusted backend callers
	// authenticate with the service-role key instead.
	if !IsServiceRole(r.Context()) {
		subject, ok := GetAuthUserID(r.Context())
		if !ok || subject != req.ReferrerID {
			writeBodyError(w, "callers may only refer on their own behalf")
			return
		}
	}

	if h.limiter != nil && h.referralPerMin > 0 {
		count, retryAfter, limitErr := h.limiter.Consume(r.Context(), "referral", req.ReferrerID, h.referralPerMin, time.Minute)
		if limitErr != nil {
			log.Printf("Warning: referral rate limit check failed for %s: %v", req.ReferrerID, limitErr)
		} else if count > h.referralPerMin {
			writeBodyError(w, fmt.Sprintf("too many referrals, retry in %d seconds", retryAfter))
			return
		}
	}

	input := app.ProvisionInput{
		ReferrerID: referrerID,
		Email:      req.Email,
		Phone:      req.Phone,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Note:       req.Note,
	}
	if req.GroupID != "" {
		groupID, err := uuid.Parse(req.GroupID)
		if err != nil {
			writeBodyError(w, "groupId must be a valid UUID")
			return
		}
		input.GroupID = &groupID
	}

	result, err := h.provisioning.ProvisionReferredUser(r.Context(), input)
	if err != nil {
		resp := createReferredUserResponse{OK: false, Error: err.Error()}
		if errors.Is(err, store.ErrDuplicateReferral) {
			resp.Error = "a referral already exists for this person"
			resp.ErrorCode = errorCodeDuplicateReferral
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp := createReferredUserResponse{
		OK:                 true,
		UserID:             result.UserID.String(),
		ReferralCreated:    result.ReferralCreated,
		MembershipCreated:  result.MembershipCreated,
		ReusedExistingUser: result.ReusedExistingUser,
	}
	if result.ReferralID != nil {
		resp.ReferralID = result.ReferralID.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

type pushNotifyRequest struct {
	UserID string                 `json:"userId"`
	Title  string                 `json:"title"`
	Body   string                 `json:"body"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

type pushNotifyResponse struct {
	OK    bool   `json:"ok"`
	Sent  int    `json:"sent,omitempty"`
	Error string `json:"error,omitempty"`
}

// HandlePushNotify fans one notification out to every device registered to
// the target user.
func (h *FunctionHandlers) HandlePushNotify(w http.ResponseWriter, r *http.Request) {
	var req pushNotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBodyError(w, "invalid JSON body")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeBodyError(w, "userId must be a valid UUID")
		return
	}
	if req.Title == "" && req.Body == "" {
		writeBodyError(w, "a title or body is required")
		return
	}

	// Users may only notify themselves; the service-role key is for the
	// backend pipelines that notify on their behalf.
	if !IsServiceRole(r.Context()) {
		subject, ok := GetAuthUserID(r.Context())
		if !ok || subject != req.UserID {
			writeBodyError(w, "callers may only notify themselves")
			return
		}
	}

	sent, err := h.push.NotifyUser(r.Context(), userID, req.Title, req.Body, req.Data)
	if err != nil {
		writeJSON(w, http.StatusOK, pushNotifyResponse{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, pushNotifyResponse{OK: true, Sent: sent})
}

type contactAccessRequest struct {
	UserID     string   `json:"userId"`
	GroupID    string   `json:"groupId"`
	Fields     []string `json:"fields"`
	AccessType string   `json:"accessType,omitempty"`
}

type contactAccessResponse struct {
	OK      bool                   `json:"ok"`
	Contact *domain.ContactDetails `json:"contact,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// HandleContactAccess gates a leader's request for a member's contact
// fields and records granted accesses.
func (h *FunctionHandlers) HandleContactAccess(w http.ResponseWriter, r *http.Request) {
	subject, ok := GetAuthUserID(r.Context())
	if !ok {
		// Contact access is always a person acting, never a pipeline.
		writeBodyError(w, "contact access requires a user session")
		return
	}

	var req contactAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBodyError(w, "invalid JSON body")
		return
	}

	accessorID, err := uuid.Parse(subject)
	if err != nil {
		writeBodyError(w, "session subject is not a valid UUID")
		return
	}
	targetID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeBodyError(w, "userId must be a valid UUID")
		return
	}
	groupID, err := uuid.Parse(req.GroupID)
	if err != nil {
		writeBodyError(w, "groupId must be a valid UUID")
		return
	}

	details, err := h.contacts.RequestContactAccess(r.Context(), app.ContactAccessRequest{
		AccessorID: accessorID,
		TargetID:   targetID,
		GroupID:    groupID,
		Fields:     req.Fields,
		AccessType: req.AccessType,
	})
	if err != nil {
		if errors.Is(err, app.ErrContactAccessDenied) {
			writeJSON(w, http.StatusOK, contactAccessResponse{OK: false, Error: "contact access denied"})
			return
		}
		writeJSON(w, http.StatusOK, contactAccessResponse{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, contactAccessResponse{OK: true, Contact: details})
}

func writeBodyError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": false, "error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
