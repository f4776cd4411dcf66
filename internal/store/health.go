package store

import (
	"context"
	"math"
	"time"

	"obralink/internal/access"
	"obralink/internal/domain"
)

// ProjectHealth computes the derived health report for a project. The
// report is never persisted; it reflects the tasks and resources at the
// time of the call.
func (s *Store) ProjectHealth(ctx context.Context, projectID, userID string, role access.Role) (domain.HealthReport, error) {
	p, err := s.ResolveAccess(ctx, projectID, userID, role)
	if err != nil {
		return domain.HealthReport{}, err
	}
	tasks, err := s.projectTasks(ctx, projectID)
	if err != nil {
		return domain.HealthReport{}, err
	}
	return computeHealth(p, tasks, s.now()), nil
}

func computeHealth(p domain.Project, tasks []domain.Task, now time.Time) domain.HealthReport {
	rep := domain.HealthReport{
		BudgetHealth:   domain.BudgetGood,
		ScheduleHealth: domain.ScheduleOnTime,
		TasksTotal:     len(tasks),
	}
	for _, t := range tasks {
		if t.IsCompleted() {
			rep.TasksCompleted++
		}
	}
	if rep.TasksTotal > 0 {
		rep.ProgressPercentage = int(math.Round(float64(rep.TasksCompleted) / float64(rep.TasksTotal) * 100))
	}

	if r := p.Resources; r != nil && r.BudgetAllocated > 0 {
		usage := r.BudgetSpent / r.BudgetAllocated * 100
		if usage > 80 {
			rep.BudgetHealth = domain.BudgetWarning
		}
		if usage > 100 {
			rep.BudgetHealth = domain.BudgetCritical
		}
	}

	if p.EndDate != nil {
		if end, ok := parseDate(*p.EndDate); ok {
			switch {
			case now.After(end) && rep.ProgressPercentage < 100:
				rep.ScheduleHealth = domain.ScheduleDelayed
			case rep.ProgressPercentage < 50:
				days := int(math.Ceil(end.Sub(now).Hours() / 24))
				if days > 0 && days < 7 {
					rep.ScheduleHealth = domain.ScheduleAtRisk
				}
			}
		}
	}
	return rep
}

// parseDate accepts the plain date form used by project documents and
// falls back to full timestamps written by older clients.
func parseDate(s string) (time.Time, bool) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
