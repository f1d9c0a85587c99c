package models

// User is the read-only slice of the user directory this service needs.
type User struct {
	ID           string `json:"id" gorm:"primaryKey"`
	Name         string `json:"name"`
	ProfileImage string `json:"profileImage"`
}

func (User) TableName() string {
	return "users"
}

// UserProfile is the display metadata used to enrich call invites.
type UserProfile struct {
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}
