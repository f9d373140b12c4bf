/**
 * @description
 * This file defines the Go structs that map to the identity provider's admin
 * API (GoTrue). These models are used to construct request bodies and parse
 * responses when managing auth users with service-role credentials.
 *
 * @dependencies
 * - None. These are plain Go structs.
 *
 * @notes
 * - The admin list endpoint pages through every auth user; there is no
 *   direct lookup-by-email or lookup-by-phone at scale, which is why the
 *   provisioning workflow scans pages.
 */
package domain

import "time"

// AuthUser is an account in the identity provider's user store.
type AuthUser struct {
	ID               string                 `json:"id"`
	Email            string                 `json:"email"`
	Phone            string                 `json:"phone"`
	EmailConfirmedAt *time.Time             `json:"email_confirmed_at,omitempty"`
	PhoneConfirmedAt *time.Time             `json:"phone_confirmed_at,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UserMetadata     map[string]interface{} `json:"user_metadata,omitempty"`
}

// AuthUserPage is one page of the admin user listing.
type AuthUserPage struct {
	Users []AuthUser `json:"users"`
	Aud   string     `json:"aud,omitempty"`
}

// InviteUserRequest asks the identity provider to invite a new user by
// email. The provider sends its own invitation mail.
type InviteUserRequest struct {
	Email string                 `json:"email"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// UpdateAuthUserRequest patches an existing auth user. Only non-empty
// fields are sent.
type UpdateAuthUserRequest struct {
	Email        string                 `json:"email,omitempty"`
	Phone        string                 `json:"phone,omitempty"`
	EmailConfirm bool                   `json:"email_confirm,omitempty"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
}

// GenerateLinkRequest asks the provider to generate (and mail) a
// verification or sign-in link of the given type, e.g. "signup",
// "magiclink", "recovery".
type GenerateLinkRequest struct {
	Type       string `json:"type"`
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// GenerateLinkResponse carries the generated action link.
type GenerateLinkResponse struct {
	ActionLink       string `json:"action_link"`
	EmailOTP         string `json:"email_otp,omitempty"`
	HashedToken      string `json:"hashed_token,omitempty"`
	VerificationType string `json:"verification_type,omitempty"`
}
