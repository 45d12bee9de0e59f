package model

import "time"

// RedFlagLog records a message that screened critical.
type RedFlagLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      string    `gorm:"type:varchar(64);index;not null" json:"user_id"`
	Text        string    `gorm:"type:text;not null" json:"text"`
	MaxSeverity int       `gorm:"not null" json:"max_severity"`
	Categories  string    `gorm:"type:varchar(255);not null" json:"categories"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (RedFlagLog) TableName() string {
	return "red_flag_logs"
}
