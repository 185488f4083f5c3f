package request

type SubmitCrawlRequest struct {
	Source string `json:"source"`
}
