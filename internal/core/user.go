package core

import "time"

type User struct {
	ID        string
	Username  string
	APIKey    string
	CreatedAt time.Time
}
