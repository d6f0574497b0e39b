package models

import (
	"time"
)

type Task struct {
	ID            int        `gorm:"primary_key" json:"id"`
	CompanyId     string     `gorm:"index;not null" json:"company_id"`
	Title         string     `gorm:"size:255;not null" json:"title"`
	Status        TaskStatus `gorm:"size:10;not null;default:'OPEN'" json:"status"`
	AssigneeId    int        `gorm:"index" json:"assignee_id"`
	ReferenceType string     `gorm:"size:255" json:"reference_type"`
	ReferenceID   int        `gorm:"index" json:"reference_id"`
	Notes         string     `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t Task) GetId() int {
	return t.ID
}
