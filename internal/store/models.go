package store

import "time"

type TestStatus string

const (
	StatusRunning   TestStatus = "running"
	StatusEvaluated TestStatus = "evaluated"
)

// ABTest is a stored experiment: N ads in one ad set, one per copy variant.
// Variants keep their creation order; that order is the deterministic
// tie-break when two variants score equally at evaluation time.
type ABTest struct {
	ID          string                        `json:"id"`
	Name        string                        `json:"name"`
	CampaignID  string                        `json:"campaign_id"`
	AdSetID     string                        `json:"adset_id"`
	Metric      string                        `json:"metric"` // metric that decides the winner
	Status      TestStatus                    `json:"status"`
	AutoApply   bool                          `json:"auto_apply"`
	Variants    []TestVariant                 `json:"variants"` // decoded from JSON
	Winner      *Winner                       `json:"winner,omitempty"`
	Results     map[string]map[string]float64 `json:"results,omitempty"` // ad_id to raw metrics at evaluation
	CreatedAt   time.Time                     `json:"created_at"`
	UpdatedAt   time.Time                     `json:"updated_at"`
	EvaluatedAt *time.Time                    `json:"evaluated_at,omitempty"`
}

type TestVariant struct {
	Name   string `json:"name"`
	AdID   string `json:"ad_id"`
	Paused bool   `json:"paused"`
}

type Winner struct {
	Name   string  `json:"name"`
	AdID   string  `json:"ad_id"`
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
}

// Run is a summary row of one recorded optimization cycle.
type Run struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	DatePreset string    `json:"date_preset"`
	DryRun     bool      `json:"dry_run"`
	Rules      int       `json:"rules"`
	Triggered  int       `json:"triggered"`
	Actions    int       `json:"actions"`
	CreatedAt  time.Time `json:"created_at"`
}
