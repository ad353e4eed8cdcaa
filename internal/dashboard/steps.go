package dashboard

// StepStatus is the state of one cache-warming step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepLoading StepStatus = "loading"
	StepDone    StepStatus = "done"
	StepError   StepStatus = "error"
)

// CacheStep reports the progress of one table fetch during a warming
// operation. Steps live only in memory for the duration of the refresh;
// nothing persists them.
type CacheStep struct {
	ID     string     `json:"id"`
	Label  string     `json:"label"`
	Status StepStatus `json:"status"`
}

// warmingSteps lists the fetches a refresh performs, in announcement order.
// The ID doubles as the backend table name.
var warmingSteps = []CacheStep{
	{ID: "beat_plans", Label: "Beat plan"},
	{ID: "visits", Label: "Visits"},
	{ID: "attendance", Label: "Attendance"},
	{ID: "orders", Label: "Orders"},
	{ID: "retailers", Label: "Retailers"},
	{ID: "points", Label: "Points"},
	{ID: "leaves", Label: "Leaves"},
}
