package entity

// LinkEdge records that SourceKey links to TargetKey. The pair is unique.
type LinkEdge struct {
	SourceKey string `json:"source_key" bson:"source_key" db:"source_url"`
	TargetKey string `json:"target_key" bson:"target_key" db:"target_url"`
}
