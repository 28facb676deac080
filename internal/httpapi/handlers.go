package httpapi

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"schoolattendance/internal/attendance"
	"schoolattendance/internal/auth"
)

const dateLayout = "2006-01-02"

// statusFor maps service errors to HTTP status codes and user-facing messages.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, attendance.ErrInvalidToken):
		return http.StatusNotFound, "Invalid session"
	case errors.Is(err, attendance.ErrSessionInactive):
		return http.StatusBadRequest, "Session expired (inactive)"
	case errors.Is(err, attendance.ErrSessionTimedOut):
		return http.StatusBadRequest, "Session expired (timeout)"
	case errors.Is(err, attendance.ErrNoActiveSession):
		return http.StatusNotFound, "No active session"
	case errors.Is(err, attendance.ErrIssueConflict):
		return http.StatusConflict, "Another session is being generated, try again"
	case errors.Is(err, attendance.ErrInvalidEntry),
		errors.Is(err, attendance.ErrTeacherRequired),
		errors.Is(err, attendance.ErrStudentRequired):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func respondError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": msg})
}

func principal(c *gin.Context) auth.Principal {
	p, _ := auth.CurrentPrincipal(c)
	return p
}

func (h *handler) issueSession(c *gin.Context) {
	sess, err := h.svc.IssueSession(c.Request.Context(), principal(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt,
	})
}

func (h *handler) currentSession(c *gin.Context) {
	cur, err := h.svc.CurrentSession(c.Request.Context(), principal(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":             cur.Token,
		"expires_at":        cur.ExpiresAt,
		"seconds_remaining": int(cur.Remaining.Seconds()),
		"present_count":     cur.PresentCount,
	})
}

// ScanURL is the link encoded in a session's QR code.
func ScanURL(baseURL, token string) string {
	return baseURL + "/scan?token=" + url.QueryEscape(token)
}

func (h *handler) sessionQR(c *gin.Context) {
	sess, err := h.svc.OwnedSession(c.Request.Context(), principal(c).ID, c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	size := 256
	if v := c.Query("size"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 128 && parsed <= 1024 {
			size = parsed
		}
	}
	png, err := qrcode.Encode(ScanURL(h.baseURL, sess.Token), qrcode.Medium, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *handler) sessionRecords(c *gin.Context) {
	recs, err := h.svc.SessionRecords(c.Request.Context(), principal(c).ID, c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (h *handler) redeem(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid QR Code"})
		return
	}

	res, err := h.svc.Redeem(c.Request.Context(), principal(c).ID, req.Token)
	if err != nil {
		respondError(c, err)
		return
	}
	switch res.Outcome {
	case attendance.OutcomeAlreadyMarked:
		c.JSON(http.StatusOK, gin.H{
			"outcome": res.Outcome,
			"message": "Attendance already marked for this session.",
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"outcome":     res.Outcome,
			"message":     "Attendance Marked Successfully!",
			"redeemed_at": res.Record.RedeemedAt,
		})
	}
}

func (h *handler) markDaily(c *gin.Context) {
	var req struct {
		Date    string `json:"date"`
		Entries []struct {
			StudentID string `json:"student_id" binding:"required"`
			Status    string `json:"status" binding:"required"`
		} `json:"entries" binding:"required,dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	day := h.svc.Today()
	if req.Date != "" {
		parsed, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		day = parsed
	}

	entries := make([]attendance.DailyEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, attendance.DailyEntry{StudentID: e.StudentID, Status: e.Status})
	}
	n, err := h.svc.MarkDaily(c.Request.Context(), principal(c).ID, day, entries)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": day.Format(dateLayout), "updated": n})
}

func (h *handler) mySummary(c *gin.Context) {
	sum, err := h.svc.Summary(c.Request.Context(), principal(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	history := make([]gin.H, 0, len(sum.History))
	for _, d := range sum.History {
		history = append(history, gin.H{"date": d.Day.Format(dateLayout), "status": d.Status})
	}
	c.JSON(http.StatusOK, gin.H{
		"total_days":            sum.TotalDays,
		"present_days":          sum.PresentDays,
		"attendance_percentage": sum.Percentage,
		"history":               history,
	})
}
