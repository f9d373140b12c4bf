package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/VineMe-App/vineme-backend/internal/app"
	"github.com/VineMe-App/vineme-backend/internal/domain"
	"github.com/VineMe-App/vineme-backend/internal/store"
)

const (
	testJWTSecret  = "test-jwt-secret"
	testServiceKey = "test-service-role-key"
	testIssuer     = "https://id.example.test/auth/v1"
)

type stubWorkflow struct {
	result *app.ProvisionResult
	err    error
	input  app.ProvisionInput
	calls  int
}

func (s *stubWorkflow) ProvisionReferredUser(ctx context.Context, input app.ProvisionInput) (*app.ProvisionResult, error) {
	s.calls++
	s.input = input
	return s.result, s.err
}

type stubGate struct {
	details *domain.ContactDetails
	err     error
	request app.ContactAccessRequest
}

func (s *stubGate) RequestContactAccess(ctx context.Context, req app.ContactAccessRequest) (*domain.ContactDetails, error) {
	s.request = req
	return s.details, s.err
}

type stubNotifier struct {
	sent   int
	err    error
	userID uuid.UUID
	calls  int
}

func (s *stubNotifier) NotifyUser(ctx context.Context, userID uuid.UUID, title, body string, data map[string]interface{}) (int, error) {
	s.calls++
	s.userID = userID
	return s.sent, s.err
}

type stubLimiter struct {
	count      int
	retryAfter int
	err        error
}

func (s *stubLimiter) Consume(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return s.count, s.retryAfter, s.err
}

type handlerFixture struct {
	workflow *stubWorkflow
	gate     *stubGate
	notifier *stubNotifier
	limiter  *stubLimiter
	router   http.Handler
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		workflow: &stubWorkflow{result: &app.ProvisionResult{UserID: uuid.New(), ReferralCreated: true}},
		gate:     &stubGate{details: &domain.ContactDetails{}},
		notifier: &stubNotifier{sent: 1},
		limiter:  &stubLimiter{count: 1},
	}
	handlers := NewFunctionHandlers(f.workflow, f.gate, f.notifier, f.limiter, 10)
	f.router = NewRouter(handlers, RouterConfig{
		Auth: AuthConfig{
			JWTSecret:        testJWTSecret,
			ServiceRoleKey:   testServiceKey,
			ExpectedAudience: "authenticated",
			ExpectedIssuer:   testIssuer,
		},
	})
	return f
}

func signSessionToken(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject,
		"aud": "authenticated",
		"iss": testIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}, auth func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != nil {
		auth(req)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func asBearer(t *testing.T, subject string) func(*http.Request) {
	token := signSessionToken(t, subject)
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func asServiceRole(req *http.Request) {
	req.Header.Set("x-service-role-key", testServiceKey)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestCreateReferredUserRequiresCredentials(t *testing.T) {
	f := newHandlerFixture()

	rec := doJSON(t, f.router, http.MethodPost, "/functions/create-referred-user", map[string]string{}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}
	if f.workflow.calls != 0 {
		t.Fatal("expected the workflow not to run")
	}
}

func TestCreateReferredUserRejectsUnsupportedMethod(t *testing.T) {
	f := newHandlerFixture()

	rec := doJSON(t, f.router, http.MethodGet, "/functions/create-referred-user", nil, asServiceRole)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rec.Code)
	}
}

func TestCreateReferredUserHappyPath(t *testing.T) {
	f := newHandlerFixture()
	referrerID := uuid.New()
	referralID := uuid.New()
	f.workflow.result = &app.ProvisionResult{
		UserID:            uuid.New(),
		ReferralID:        &referralID,
		ReferralCreated:   true,
		MembershipCreated: true,
	}
	groupID := uuid.New()

	rec := doJSON(t, f.router, http.MethodPost, "/functions/create-referred-user", map[string]string{
		"email":      "someone@example.com",
		"referrerId": referrerID.String(),
		"groupId":    groupID.String(),
	}, asBearer(t, referrerID.String()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["ok"] != true {
		t.Fatalf("expected ok=true, got %v", body)
	}
	if body["referralId"] != referralID.String() {
		t.Fatalf("expected referral id in response, got %v", body["referralId"])
	}
	if body["membershipCreated"] != true {
		t.Fatalf("expected membershipCreated=true, got %v", body)
	}

	if f.workflow.input.ReferrerID != referrerID {
		t.Fatal("expected the referrer to be passed through")
	}
	if f.workflow.input.GroupID == nil || *f.workflow.input.GroupID != groupID {
		t.Fatal("expected the group to be passed through")
	}
}

func TestCreateReferredUserBusinessFailuresStay200(t *testing.T) {
	referrerID := uuid.New()

	tests := []struct {
		name      string
		body      interface{}
		auth      func(*testing.T, *handlerFixture) func(*http.Request)
		setup     func(*handlerFixture)
		wantError string
		wantCode  string
	}{
		{
			name: "invalid json",
			body: "not-json",
			auth: func(t *testing.T, f *handlerFixture) func(*http.Request) { return asBearer(t, referrerID.String()) },
		},
		{
			name: "malformed referrer id",
			body: map[string]string{"email": "a@b.c", "referrerId": "not-a-uuid"},
			auth: func(t *testing.T, f *handlerFixture) func(*http.Request) { return asBearer(t, referrerID.String()) },
		},
		{
			name: "subject referrer mismatch",
			body: map[string]string{"email": "a@b.c", "referrerId": referrerID.String()},
			auth: func(t *testing.T, f *handlerFixture) func(*http.Request) { return asBearer(t, uuid.NewString()) },
		},
		{
			name: "malformed group id",
			body: map[string]string{"email": "a@b.c", "referrerId": referrerID.String(), "groupId": "nope"},
			auth: func(t *testing.T, f *handlerFixture) func(*http.Request) { return asBearer(t, referrerID.String()) },
		},
		{
			name: "duplicate referral carries the error code",
			body: map[string]string{"email": "a@b.c", "referrerId": referrerID.String()},
			auth: func(t *testing.T, f *handlerFixture) func(*http.Request) { return asBearer(t, referrerID.String()) },
			setup: func(f *handlerFixture) {
				f.workflow.err = store.ErrDuplicateReferral
			},
			wantError: "a referral already exists for this person",
			wantCode:  errorCodeDuplicateReferral,
		},
		{
			name: "workflow failure",
			body: map[string]string{"email": "a@b.c", "referrerId": referrerID.String()},
			auth: func(t *testing.T, f *handlerFixture) func(*http.Request) { return asBearer(t, referrerID.String()) },
			setup: func(f *handlerFixture) {
				f.workflow.err = app.ErrChurchRequired
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture()
			if tt.setup != nil {
				tt.setup(f)
			}

			rec := doJSON(t, f.router, http.MethodPost, "/functions/create-referred-user", tt.body, tt.auth(t, f))
			if rec.Code != http.StatusOK {
				t.Fatalf("expected business failures to return 200, got %d", rec.Code)
			}
			body := decodeBody(t, rec)
			if body["ok"] != false {
				t.Fatalf("expected ok=false, got %v", body)
			}
			if tt.wantError != "" && body["error"] != tt.wantError {
				t.Fatalf("expected error %q, got %v", tt.wantError, body["error"])
			}
			if tt.wantCode != "" && body["errorCode"] != tt.wantCode {
				t.Fatalf("expected errorCode %q, got %v", tt.wantCode, body["errorCode"])
			}
			if tt.wantCode == "" && body["errorCode"] != nil {
				t.Fatalf("expected no errorCode, got %v", body["errorCode"])
			}
		})
	}
}

func TestCreateReferredUserServiceRoleBypassesSubjectCheck(t *testing.T) {
	f := newHandlerFixture()
	referrerID := uuid.New()

	rec := doJSON(t, f.router, http.MethodPost, "/functions/create-referred-user", map[string]string{
		"email":      "a@b.c",
		"referrerId": referrerID.String(),
	}, asServiceRole)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["ok"] != true {
		t.Fatalf("expected the service role to act for any referrer, got %v", body)
	}
}

func TestCreateReferredUserThrottlesPerReferrer(t *testing.T) {
	f := newHandlerFixture()
	f.limiter.count = 11
	f.limiter.retryAfter = 42
	referrerID := uuid.New()

	rec := doJSON(t, f.router, http.MethodPost, "/functions/create-referred-user", map[string]string{
		"email":      "a@b.c",
		"referrerId": referrerID.String(),
	}, asBearer(t, referrerID.String()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["ok"] != false {
		t.Fatalf("expected the request to be throttled, got %v", body)
	}
	if f.workflow.calls != 0 {
		t.Fatal("expected the workflow not to run while throttled")
	}
}

func TestCreateReferredUserLimiterFailureIsIgnored(t *testing.T) {
	f := newHandlerFixture()
	f.limiter.err = context.DeadlineExceeded
	referrerID := uuid.New()

	rec := doJSON(t, f.router, http.MethodPost, "/functions/create-referred-user", map[string]string{
		"email":      "a@b.c",
		"referrerId": referrerID.String(),
	}, asBearer(t, referrerID.String()))

	if body := decodeBody(t, rec); body["ok"] != true {
		t.Fatalf("expected the request to proceed when the limiter is down, got %v", body)
	}
}

func TestPushNotify(t *testing.T) {
	userID := uuid.New()

	t.Run("happy path", func(t *testing.T) {
		f := newHandlerFixture()
		f.notifier.sent = 3

		rec := doJSON(t, f.router, http.MethodPost, "/functions/push-notify", map[string]string{
			"userId": userID.String(),
			"title":  "Welcome",
		}, asBearer(t, userID.String()))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["ok"] != true || body["sent"] != float64(3) {
			t.Fatalf("expected 3 sent, got %v", body)
		}
		if f.notifier.userID != userID {
			t.Fatal("expected the target user to be passed through")
		}
	})

	t.Run("requires a title or body", func(t *testing.T) {
		f := newHandlerFixture()

		rec := doJSON(t, f.router, http.MethodPost, "/functions/push-notify", map[string]string{
			"userId": userID.String(),
		}, asBearer(t, userID.String()))

		if body := decodeBody(t, rec); body["ok"] != false {
			t.Fatalf("expected a body error, got %v", body)
		}
		if f.notifier.calls != 0 {
			t.Fatal("expected no send for an empty notification")
		}
	})

	t.Run("subject must match the target user", func(t *testing.T) {
		f := newHandlerFixture()

		rec := doJSON(t, f.router, http.MethodPost, "/functions/push-notify", map[string]string{
			"userId": userID.String(),
			"title":  "Welcome",
		}, asBearer(t, uuid.NewString()))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected a 200 body error, got %d", rec.Code)
		}
		if body := decodeBody(t, rec); body["ok"] != false {
			t.Fatalf("expected ok=false, got %v", body)
		}
	})

	t.Run("service role may notify anyone", func(t *testing.T) {
		f := newHandlerFixture()

		rec := doJSON(t, f.router, http.MethodPost, "/functions/push-notify", map[string]string{
			"userId": userID.String(),
			"title":  "Welcome",
		}, asServiceRole)

		if body := decodeBody(t, rec); body["ok"] != true {
			t.Fatalf("expected the service role to notify any user, got %v", body)
		}
	})
}

func TestContactAccess(t *testing.T) {
	targetID := uuid.New()
	groupID := uuid.New()
	accessorID := uuid.New()

	request := map[string]interface{}{
		"userId":  targetID.String(),
		"groupId": groupID.String(),
		"fields":  []string{"email"},
	}

	t.Run("grant returns the contact fields", func(t *testing.T) {
		f := newHandlerFixture()
		email := "member@example.com"
		f.gate.details = &domain.ContactDetails{Email: &email}

		rec := doJSON(t, f.router, http.MethodPost, "/contacts/access", request, asBearer(t, accessorID.String()))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["ok"] != true {
			t.Fatalf("expected a grant, got %v", body)
		}
		contact, ok := body["contact"].(map[string]interface{})
		if !ok || contact["email"] != email {
			t.Fatalf("expected the contact email, got %v", body["contact"])
		}
		if f.gate.request.AccessorID != accessorID {
			t.Fatal("expected the accessor to come from the session subject")
		}
	})

	t.Run("denial is a 200 body error", func(t *testing.T) {
		f := newHandlerFixture()
		f.gate.err = app.ErrContactAccessDenied

		rec := doJSON(t, f.router, http.MethodPost, "/contacts/access", request, asBearer(t, accessorID.String()))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["ok"] != false || body["error"] != "contact access denied" {
			t.Fatalf("expected a denial body, got %v", body)
		}
	})

	t.Run("service role is rejected", func(t *testing.T) {
		f := newHandlerFixture()

		rec := doJSON(t, f.router, http.MethodPost, "/contacts/access", request, asServiceRole)

		if body := decodeBody(t, rec); body["ok"] != false {
			t.Fatalf("expected contact access to require a user session, got %v", body)
		}
	})
}
