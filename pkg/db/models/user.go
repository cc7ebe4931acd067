package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medstock/medstock-backend/pkg/enums"
)

// User is the marketplace identity shared by admins, sellers and buyers.
type User struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Email       string         `gorm:"column:email;type:varchar(255);not null;uniqueIndex:ux_users_email"`
	Name        string         `gorm:"column:name;type:varchar(255);not null"`
	CompanyName string         `gorm:"column:company_name;type:varchar(255)"`
	Phone       *string        `gorm:"column:phone;type:varchar(64)"`
	Role        enums.UserRole `gorm:"column:role;type:varchar(16);not null"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
}

// BeforeCreate assigns a primary key when the caller did not.
func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
