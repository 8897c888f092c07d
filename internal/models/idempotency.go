package models

// IdempotencyRecord marks an external request or provider event as
// processed. Once a row exists for (key, endpoint), replays short-circuit
// to the result it references instead of re-running side effects. Rows are
// never updated in place.
type IdempotencyRecord struct {
	BaseModel
	Key       string `gorm:"uniqueIndex:idx_idempotency_key_endpoint" json:"key"`
	Endpoint  string `gorm:"uniqueIndex:idx_idempotency_key_endpoint" json:"endpoint"`
	ResultRef string `json:"result_ref"`
}
