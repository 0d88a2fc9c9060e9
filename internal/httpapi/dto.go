package httpapi

import (
	"time"

	"github.com/AlexanderKara/orgportal-sub002/internal/scheduler"
)

type statusResponse struct {
	Running             bool       `json:"running"`
	ActiveCount         int        `json:"active_count"`
	LastTickAt          *time.Time `json:"last_tick_at"`
	NextTickAt          *time.Time `json:"next_tick_at"`
	PollIntervalSeconds int64      `json:"poll_interval_seconds"`
	LastTickID          string     `json:"last_tick_id,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
}

func toStatus(st scheduler.Status) statusResponse {
	return statusResponse{
		Running:             st.Running,
		ActiveCount:         st.ActiveCount,
		LastTickAt:          st.LastTickAt,
		NextTickAt:          st.NextTickAt,
		PollIntervalSeconds: int64(st.PollInterval / time.Second),
		LastTickID:          st.LastTickID,
		LastError:           st.LastError,
	}
}

type fireResult struct {
	NotificationID int64      `json:"notification_id"`
	Name           string     `json:"name"`
	Fired          bool       `json:"fired"`
	Expired        bool       `json:"expired,omitempty"`
	Deactivated    bool       `json:"deactivated,omitempty"`
	Targets        int        `json:"targets"`
	Delivered      int        `json:"delivered"`
	FiredAt        *time.Time `json:"fired_at,omitempty"`
	NextFireAt     *time.Time `json:"next_fire_at,omitempty"`
	Errors         []string   `json:"errors,omitempty"`
}

func toResult(r scheduler.FireResult) fireResult {
	out := fireResult{
		NotificationID: r.NotificationID,
		Name:           r.Name,
		Fired:          r.Fired,
		Expired:        r.Expired,
		Deactivated:    r.Deactivated,
		Targets:        r.Targets,
		Delivered:      r.Delivered,
		FiredAt:        r.FiredAt,
		NextFireAt:     r.NextFireAt,
	}
	for _, err := range r.Errors {
		out.Errors = append(out.Errors, err.Error())
	}
	return out
}

type tickResponse struct {
	TickID     string       `json:"tick_id"`
	StartedAt  time.Time    `json:"started_at"`
	Candidates int          `json:"candidates"`
	Results    []fireResult `json:"results"`
}

func toReport(rep scheduler.TickReport) tickResponse {
	out := tickResponse{
		TickID:     rep.ID,
		StartedAt:  rep.StartedAt,
		Candidates: rep.Candidates,
		Results:    make([]fireResult, 0, len(rep.Results)),
	}
	for _, r := range rep.Results {
		out.Results = append(out.Results, toResult(r))
	}
	return out
}
