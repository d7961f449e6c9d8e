package models

import "time"

// Question is produced once by the generation service and read-only afterwards.
type Question struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	TemplateID    uint      `gorm:"not null" json:"template_id"`
	PromptContext string    `gorm:"type:text" json:"prompt_context"`
	Text          string    `gorm:"type:text;not null" json:"text"`
	CreatedAt     time.Time `json:"created_at"`
	Template      Template  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"template"`
}
