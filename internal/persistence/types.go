package persistence

import "time"

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Institution  string
	CreatedAt    time.Time
}

type JobFile struct {
	JobID     string
	Path      string
	CreatedAt time.Time
}
