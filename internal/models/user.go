// Package models defines types shared across internal packages.
package models

// User is the identity record returned by the auth endpoints.
type User struct {
	ID           string `json:"id" yaml:"id"`
	Email        string `json:"email" yaml:"email"`
	FullName     string `json:"full_name,omitempty" yaml:"full_name,omitempty"`
	Phone        string `json:"phone,omitempty" yaml:"phone,omitempty"`
	BusinessType string `json:"business_type,omitempty" yaml:"business_type,omitempty"`
	IsActive     bool   `json:"is_active" yaml:"is_active"`
	CreatedAt    string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// TokenResponse is the body of a successful magic token exchange.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	User         *User  `json:"user"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are
// left unchanged on the server.
type ProfileUpdate struct {
	FullName     *string `json:"full_name,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	BusinessType *string `json:"business_type,omitempty"`
}

// Empty reports whether the update carries no fields.
func (p ProfileUpdate) Empty() bool {
	return p.FullName == nil && p.Phone == nil && p.BusinessType == nil
}
