package member

import "time"

type Member struct {
	ID            int64     `gorm:"primaryKey"`
	AffiliationID int64     `gorm:"column:affiliation_id;index;not null"`
	Name          string    `gorm:"column:name;not null"`
	Email         string    `gorm:"column:email"`
	Status        string    `gorm:"column:status;default:active"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Member) TableName() string { return "members" }
