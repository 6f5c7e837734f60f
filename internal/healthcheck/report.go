package healthcheck

import (
	"context"
	"time"
)

// Report is the combined result of all checkers.
type Report struct {
	Status    string        `json:"status"`
	CheckedAt time.Time     `json:"checked_at"`
	Checks    []CheckResult `json:"checks"`
}

// Healthy reports whether no check failed. Warnings are tolerated.
func (r Report) Healthy() bool {
	return r.Status != StatusError
}

// Evaluate runs every checker and folds the statuses: any error wins over
// warn, warn over unknown, unknown over ok. No checks at all is unknown.
func Evaluate(ctx context.Context, checkers ...Checker) Report {
	report := Report{
		Status:    StatusOK,
		CheckedAt: time.Now().UTC(),
		Checks:    []CheckResult{},
	}
	for _, checker := range checkers {
		if checker == nil {
			continue
		}
		report.Checks = append(report.Checks, checker.ListChecks(ctx)...)
	}
	if len(report.Checks) == 0 {
		report.Status = StatusUnknown
		return report
	}
	for _, item := range report.Checks {
		if severity(item.Status) > severity(report.Status) {
			report.Status = item.Status
		}
	}
	return report
}

func severity(status string) int {
	switch status {
	case StatusError:
		return 3
	case StatusWarn:
		return 2
	case StatusUnknown:
		return 1
	default:
		return 0
	}
}
