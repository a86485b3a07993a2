package routes

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mubeen104/uips-attendance/internal/audit"
	"github.com/mubeen104/uips-attendance/internal/storage"
)

// Dates cross the API as plain YYYY-MM-DD strings.
const dateLayout = "2006-01-02"

func parseDateParam(c *gin.Context) (string, error) {
	date := c.Query("date")
	if date == "" {
		return "", fmt.Errorf("%w: date", ErrMissingParameter)
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", fmt.Errorf("%w: date %q", ErrInvalidParameter, date)
	}
	return date, nil
}

type manualEntryRequest struct {
	EmployeeID int64      `json:"employee_id" binding:"required"`
	Date       string     `json:"date" binding:"required"`
	CheckIn    *time.Time `json:"check_in"`
	CheckOut   *time.Time `json:"check_out"`
}

type scheduleRequest struct {
	EmployeeID int64  `json:"employee_id" binding:"required"`
	DayOfWeek  int    `json:"day_of_week"`
	CheckIn    string `json:"check_in" binding:"required"`
	CheckOut   string `json:"check_out" binding:"required"`
	IsWorking  bool   `json:"is_working_day"`
}

func AttendanceApi(r *gin.RouterGroup) {

	r.GET("/records", func(c *gin.Context) {
		err, provider := GetStorageProvider(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		date, err := parseDateParam(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		records, err := provider.ListAttendanceByDate(c.Request.Context(), date)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"date": date, "records": records})
	})

	r.GET("/absences", func(c *gin.Context) {
		err, provider := GetStorageProvider(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		date, err := parseDateParam(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		absences, err := provider.ListAbsencesByDate(c.Request.Context(), date)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"date": date, "absences": absences})
	})

	// Backfill a day with an operator-entered record. The entry is marked
	// manual and audited; it never pretends to be a device punch.
	r.POST("/manual", func(c *gin.Context) {
		var req manualEntryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
			return
		}
		if _, err := time.Parse(dateLayout, req.Date); err != nil {
			AbortWithError(c, fmt.Errorf("%w: date %q", ErrInvalidParameter, req.Date))
			return
		}

		err, engine := GetEngine(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		record, err := engine.Pipeline.ManualEntry(ctx, req.EmployeeID, req.Date, req.CheckIn, req.CheckOut)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		engine.Audit.Record(ctx, c.ClientIP(), audit.ActionManualEntry, req.Date, req)
		c.JSON(http.StatusCreated, record)
	})

	// Run the absence reconciler for one date, on demand.
	r.POST("/reconcile", func(c *gin.Context) {
		var req struct {
			Date string `json:"date" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
			return
		}

		err, engine := GetEngine(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		summary, err := engine.Reconciler.Run(c.Request.Context(), req.Date)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	r.PUT("/schedules", func(c *gin.Context) {
		var req scheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
			return
		}
		if req.DayOfWeek < 0 || req.DayOfWeek > 6 {
			AbortWithError(c, fmt.Errorf("%w: day_of_week %d", ErrInvalidParameter, req.DayOfWeek))
			return
		}

		err, provider := GetStorageProvider(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		schedule := &storage.AttendanceSchedule{
			EmployeeID:   req.EmployeeID,
			DayOfWeek:    req.DayOfWeek,
			CheckInTime:  req.CheckIn,
			CheckOutTime: req.CheckOut,
			IsWorkingDay: req.IsWorking,
		}
		if err := provider.UpsertSchedule(c.Request.Context(), schedule); err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, schedule)
	})
}
