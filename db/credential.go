package db

import "time"

// credentialRowID is the fixed primary key of the only credential row.
const credentialRowID = 1

// Credential is the persisted session credential pair.
// There is at most one row; both tokens are always written together.
type Credential struct {
	ID           uint      `gorm:"primaryKey"`
	AccessToken  string    `gorm:"column:access_token;not null"`
	RefreshToken string    `gorm:"column:refresh_token;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

// TableName pins the table name so it does not depend on GORM's pluralizer.
func (Credential) TableName() string { return "credentials" }
