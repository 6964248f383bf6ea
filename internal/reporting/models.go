package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// TransfersSummaryRequest asks for one agent's transfer outcomes in a half-open range.
type TransfersSummaryRequest struct {
	AgentID string    `json:"agent_id"`
	Range   TimeRange `json:"range"`
}

type TransfersSummary struct {
	AgentID string `json:"agent_id"`

	Total    int `json:"total"`
	Blind    int `json:"blind"`
	Attended int `json:"attended"`

	Completed  int `json:"completed"`
	Canceled   int `json:"canceled"`
	Failed     int `json:"failed"`
	Consulting int `json:"consulting"`

	// AnsweredConsults counts attended attempts whose consult leg picked up.
	AnsweredConsults int `json:"answered_consults"`

	// CompletionRate is completed attended transfers over finished attended transfers.
	CompletionRate float64 `json:"completion_rate"`
	// AverageConsultSeconds is the mean initiated-to-finished time of finished attended transfers.
	AverageConsultSeconds int `json:"average_consult_seconds"`
}
