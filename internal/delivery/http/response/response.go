package response

import "time"

type SubmitCrawlResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Source  string `json:"source"`
}

// ItemStatusResponse is a DTO for entity.ItemStatus.
type ItemStatusResponse struct {
	SourceID    string     `json:"source_id"`
	Platform    string     `json:"platform"`
	Status      string     `json:"status"` // "stored" or "not_found"
	Title       string     `json:"title,omitempty"`
	PublishTime string     `json:"publish_time,omitempty"`
	ScrapeTime  *time.Time `json:"scrape_time,omitempty"`
}

type RunResponse struct {
	Source    string    `json:"source"`
	RunID     string    `json:"run_id"`
	State     string    `json:"state"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Success   int       `json:"success"`
	Error     int       `json:"error"`
	Skipped   int       `json:"skipped"`
	Reason    string    `json:"reason,omitempty"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	Running   bool      `json:"running"`
}
