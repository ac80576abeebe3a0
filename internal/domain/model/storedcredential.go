package model

import "time"

// StoredCredential holds a persisted credential value. Service identifies the
// external system ("share"), and Key the field within it ("account_name",
// "password", "application_id").
type StoredCredential struct {
	ID        int64
	Service   string
	Key       string
	Value     string
	UpdatedAt time.Time
}
