package model

import "time"

type Role string

const (
	RoleCounselor Role = "COUNSELOR"
	RoleClient    Role = "CLIENT"
	RoleAdmin     Role = "ADMIN"
)

type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required,min=6"`
}

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Role      Role   `json:"role"`
	Active    bool   `json:"active"`
}

// LoginResponse mirrors the counseling API auth payload. Token is the only
// field the smoke checks depend on.
type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int    `json:"expiresIn,omitempty"`
	User         *User  `json:"user,omitempty"`
}

type MessageRequest struct {
	RecipientID int64  `json:"recipientId" validate:"required,gt=0"`
	Subject     string `json:"subject"`
	Content     string `json:"content" validate:"required"`
}

type Message struct {
	ID          int64     `json:"id"`
	SenderID    int64     `json:"senderId"`
	RecipientID int64     `json:"recipientId"`
	Subject     string    `json:"subject"`
	Content     string    `json:"content"`
	SentAt      time.Time `json:"sentAt"`
	IsRead      bool      `json:"isRead"`
	IsDelivered bool      `json:"isDelivered"`
}

type UnreadCount struct {
	Count int64 `json:"count"`
}

type Conversation struct {
	PartnerID          int64     `json:"partnerId"`
	PartnerEmail       string    `json:"partnerEmail"`
	PartnerType        Role      `json:"partnerType"`
	LastMessageContent string    `json:"lastMessageContent"`
	LastMessageTime    time.Time `json:"lastMessageTime"`
	UnreadCount        int       `json:"unreadCount"`
}

type TokenValidation struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type Health struct {
	Status    string `json:"status"`
	Service   string `json:"service,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ErrorResponse is the body the API returns alongside 4xx/5xx statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}
