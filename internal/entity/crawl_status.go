package entity

import "time"

const (
	ItemStatusStored   = "stored"
	ItemStatusNotFound = "not_found"
)

type ItemStatus struct {
	SourceID    string
	Platform    string
	Status      string
	Title       string
	PublishTime string
	ScrapeTime  *time.Time
}
