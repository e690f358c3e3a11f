package models

import (
	"vmp/src/types"

	"github.com/google/uuid"
)

type User struct {
	ID    uint       `gorm:"primarykey" json:"id"`
	Name  string     `json:"name,omitempty"`
	Email string     `json:"email,omitempty"`
	Role  types.Role `gorm:"type:text;default:'BUYER'" json:"role,omitempty"`

	Devices []DeviceToken `gorm:"foreignKey:user_id" json:"-"`

	types.Timestamps
}

// DeviceToken is a push registration owned by a user.
type DeviceToken struct {
	ID       uuid.UUID `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID   uint      `gorm:"index" json:"user_id"`
	Token    string    `gorm:"uniqueIndex" json:"token"`
	Platform string    `json:"platform,omitempty"`

	types.Timestamps
}
