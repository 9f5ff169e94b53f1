package reconcile

import "time"

const (
	PassReviewLocal  = "review_local"
	PassReviewRemote = "review_remote"
)

type ItemOutcome struct {
	Kind          string `json:"kind"`
	Pass          string `json:"pass"`
	FullName      string `json:"full_name"`
	QualifiedName string `json:"qualified_name"`
	GUID          string `json:"guid,omitempty"`
	Action        Action `json:"action"`
	Reason        string `json:"reason"`
	Mismatch      bool   `json:"mismatch,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Report is the outcome of one run. Counts hold applied actions, or planned
// actions on a dry run; failed items are only in Items.
type Report struct {
	Policy     Policy         `json:"policy"`
	DryRun     bool           `json:"dry_run"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Counts     map[Action]int `json:"counts"`
	Items      []ItemOutcome  `json:"items"`
	Mismatches int            `json:"mismatches"`
	Failures   int            `json:"failures"`
}

func newReport(policy Policy, dryRun bool) *Report {
	return &Report{
		Policy:    policy,
		DryRun:    dryRun,
		StartedAt: time.Now(),
		Counts:    map[Action]int{},
	}
}

func (r *Report) add(item ItemOutcome) {
	r.Items = append(r.Items, item)
	if item.Mismatch {
		r.Mismatches++
	}
	if item.Error != "" {
		r.Failures++
		return
	}
	r.Counts[item.Action]++
}

// Changes is the number of applied actions other than NoAction.
func (r *Report) Changes() int {
	n := 0
	for action, count := range r.Counts {
		if action != NoAction {
			n += count
		}
	}
	return n
}

// ItemsWith returns the items classified as action.
func (r *Report) ItemsWith(action Action) []ItemOutcome {
	var out []ItemOutcome
	for _, item := range r.Items {
		if item.Action == action {
			out = append(out, item)
		}
	}
	return out
}
