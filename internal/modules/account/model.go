// README: User accounts, rider approval states and review audit records.
package account

import (
    "time"

    "giftwave/internal/types"
)

type UserType string

const (
    UserTypeSender UserType = "sender"
    UserTypeRider  UserType = "rider"
)

type RiderStatus string

const (
    RiderPending  RiderStatus = "pending"
    RiderApproved RiderStatus = "approved"
    RiderRejected RiderStatus = "rejected"
    RiderBanned   RiderStatus = "banned"
)

// MaxLoginAttempts consecutive wrong passwords block the account.
const MaxLoginAttempts = 5

const lockoutReason = "Too many failed login attempts"

type User struct {
    ID              types.ID    `json:"id"`
    Email           string      `json:"email"`
    Phone           string      `json:"phoneNumber"`
    FullName        string      `json:"fullName"`
    UserType        UserType    `json:"userType"`
    CNIC            string      `json:"cnic,omitempty"`
    City            string      `json:"city,omitempty"`
    RiderStatus     RiderStatus `json:"riderStatus,omitempty"`
    StatusReason    string      `json:"statusReason,omitempty"`
    ProfileImageURL string      `json:"profileImageURL,omitempty"`
    AverageRating   float64     `json:"averageRating"`
    TotalDeliveries int         `json:"totalDeliveries"`
    IsEmailVerified bool        `json:"isEmailVerified"`
    IsPhoneVerified bool        `json:"isPhoneVerified"`
    IsAdmin         bool        `json:"isAdmin,omitempty"`
    FirebaseUID     string      `json:"-"`
    PasswordHash    string      `json:"-"`
    LoginAttempts   int         `json:"loginAttempts"`
    IsBlocked       bool        `json:"isBlocked"`
    BlockedReason   string      `json:"blockedReason,omitempty"`
    LastLoginAt     *time.Time  `json:"lastLoginAt,omitempty"`
    CreatedAt       time.Time   `json:"createdAt"`
    UpdatedAt       time.Time   `json:"updatedAt"`
}

func (u *User) IsRider() bool { return u.UserType == UserTypeRider }

// Role is the coarse role carried in session tokens.
func (u *User) Role() string {
    if u.IsAdmin {
        return "admin"
    }
    return string(u.UserType)
}

type ReviewAction string

const (
    ActionApprove ReviewAction = "approve"
    ActionReject  ReviewAction = "reject"
    ActionBan     ReviewAction = "ban"
)

var actionStatus = map[ReviewAction]RiderStatus{
    ActionApprove: RiderApproved,
    ActionReject:  RiderRejected,
    ActionBan:     RiderBanned,
}

type ReviewRecord struct {
    ID        int64
    RiderID   types.ID
    Action    ReviewAction
    Reason    string
    AdminID   types.ID
    CreatedAt time.Time
}

// Stats is the denormalised reputation kept on a rider.
type Stats struct {
    AverageRating   float64
    TotalDeliveries int
}

type Session struct {
    Token     string    `json:"token,omitempty"`
    ExpiresAt time.Time `json:"expiresAt,omitempty"`
    User      *User     `json:"user"`
}
