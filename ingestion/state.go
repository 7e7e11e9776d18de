package ingestion

// Strategy selects the processing branch.
type Strategy string

const (
	StrategyRule   Strategy = "rule"
	StrategyPolicy Strategy = "policy"
)

// SaveStatus is the outcome of the last save attempt.
type SaveStatus string

const (
	SaveSucceeded SaveStatus = "succeeded"
	SaveFailed    SaveStatus = "failed"
)

// MaxSaveRetries caps retry_save. Reaching it ends the run with the save
// marked failed.
const MaxSaveRetries = 3

// Result is what a caller gets back from an ingestion run.
type Result struct {
	Kind       Kind     `json:"data_kind"`
	Processed  int      `json:"processed"`
	DB         int      `json:"db"`
	Vector     int      `json:"vector"`
	Total      int      `json:"total"`
	Errors     []string `json:"errors"`
	SaveFailed bool     `json:"save_failed"`
}

// State is the ingestion workflow state.
type State struct {
	Kind            Kind        `json:"data_kind"`
	Records         []Record    `json:"records,omitempty"`
	ValidatedData   []Record    `json:"validated_data,omitempty"`
	Errors          []string    `json:"errors,omitempty" graph:"append"`
	Strategy        Strategy    `json:"strategy,omitempty"`
	TransformedData []Record    `json:"transformed_data,omitempty"`
	Destination     Destination `json:"destination,omitempty"`
	SavedCount      int         `json:"saved_count,omitempty"`
	SaveStatus      SaveStatus  `json:"save_status,omitempty"`
	SaveRetryCount  int         `json:"save_retry_count,omitempty"`
	Result          *Result     `json:"result,omitempty"`
	ProcessingPath  []string    `json:"processing_path,omitempty" graph:"path"`
}
