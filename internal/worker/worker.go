package worker

import (
	"context"
	"log"

	"schoolattendance/internal/attendance"
	"schoolattendance/internal/queue"
)

// SummaryRefresher recomputes and caches a student's attendance summary.
type SummaryRefresher interface {
	RefreshSummary(ctx context.Context, studentID string) (attendance.Summary, error)
}

// Run consumes attendance events until ctx is done or the queue closes.
func Run(ctx context.Context, q queue.Queue, svc SummaryRefresher) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		Handle(ctx, svc, msg)
	}
	return nil
}

// Handle processes one message; unknown types are ignored.
func Handle(ctx context.Context, svc SummaryRefresher, msg queue.Message) {
	if msg.Type != attendance.EventAttendanceMarked {
		return
	}
	studentID := string(msg.Body)
	if studentID == "" {
		return
	}
	sum, err := svc.RefreshSummary(ctx, studentID)
	if err != nil {
		log.Printf("refresh summary for %s failed: %v", studentID, err)
		return
	}
	log.Printf("summary refreshed for %s: %d/%d days present", studentID, sum.PresentDays, sum.TotalDays)
}
