// README: One-time code record bound to a contact channel.
package otp

import (
    "strings"
    "time"

    "giftwave/internal/modules/validation"
    "giftwave/internal/types"
)

type Type string

const (
    TypePhone Type = "phone"
    TypeCNIC  Type = "cnic"
    TypeEmail Type = "email"
)

func (t Type) Valid() bool {
    return t == TypePhone || t == TypeCNIC || t == TypeEmail
}

type Status string

const (
    StatusPending  Status = "pending"
    StatusVerified Status = "verified"
    StatusExpired  Status = "expired"
    StatusFailed   Status = "failed"
)

const (
    DefaultMaxAttempts = 3
    DefaultTTL         = 5 * time.Minute
)

// Channels is the contact bundle a code is bound to. Phone and email may be
// verified together with a single code.
type Channels struct {
    Phone string `json:"phone,omitempty"`
    Email string `json:"email,omitempty"`
    CNIC  string `json:"cnic,omitempty"`
}

// Key identifies the verification session for these channels.
func (c Channels) Key() string {
    parts := make([]string, 0, 3)
    if c.Phone != "" {
        parts = append(parts, "phone="+validation.NormalizePhone(c.Phone))
    }
    if c.Email != "" {
        parts = append(parts, "email="+strings.ToLower(strings.TrimSpace(c.Email)))
    }
    if c.CNIC != "" {
        parts = append(parts, "cnic="+validation.NormalizeCNIC(c.CNIC))
    }
    return strings.Join(parts, "|")
}

func (c Channels) Empty() bool {
    return c.Phone == "" && c.Email == "" && c.CNIC == ""
}

type Verification struct {
    ID          types.ID   `json:"id"`
    UserID      *types.ID  `json:"userId,omitempty"`
    Channels    Channels   `json:"channels"`
    Type        Type       `json:"otpType"`
    Code        string     `json:"-"`
    Status      Status     `json:"status"`
    Attempts    int        `json:"attempts"`
    MaxAttempts int        `json:"maxAttempts"`
    ExpiresAt   time.Time  `json:"expiresAt"`
    CreatedAt   time.Time  `json:"createdAt"`
    VerifiedAt  *time.Time `json:"verifiedAt,omitempty"`
}

func (v *Verification) Terminal() bool {
    return v.Status != StatusPending
}
