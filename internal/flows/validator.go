package flows

import (
	"fmt"
	"strings"
	"time"

	"booking-bot/internal/store"
)

const (
	DefaultDateLayout = "2006-01-02"
	DefaultTimeLayout = "15:04"
)

// Validator decides which free-text dates and times the booking flow accepts.
type Validator interface {
	ValidateDate(date string) error
	ValidateTime(date, tm string) error
	// Examples returns sample inputs for the prompts.
	Examples() (date, tm string)
}

// LayoutValidator accepts values that parse under fixed layouts and, when
// RequireFuture is set, rejects dates and times already past.
type LayoutValidator struct {
	DateLayout    string
	TimeLayout    string
	RequireFuture bool
	Location      *time.Location
	Now           func() time.Time
}

var _ Validator = (*LayoutValidator)(nil)

func NewLayoutValidator(dateLayout, timeLayout string, requireFuture bool) *LayoutValidator {
	if dateLayout == "" {
		dateLayout = DefaultDateLayout
	}
	if timeLayout == "" {
		timeLayout = DefaultTimeLayout
	}
	return &LayoutValidator{
		DateLayout:    dateLayout,
		TimeLayout:    timeLayout,
		RequireFuture: requireFuture,
		Location:      time.Local,
		Now:           time.Now,
	}
}

func (v *LayoutValidator) ValidateDate(date string) error {
	d, err := time.ParseInLocation(v.DateLayout, strings.TrimSpace(date), v.Location)
	if err != nil {
		return fmt.Errorf("%w: date %q", store.ErrInvalidInput, date)
	}
	if v.RequireFuture {
		now := v.Now().In(v.Location)
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, v.Location)
		if d.Before(today) {
			return fmt.Errorf("%w: date %q is in the past", store.ErrInvalidInput, date)
		}
	}
	return nil
}

func (v *LayoutValidator) ValidateTime(date, tm string) error {
	t, err := time.ParseInLocation(v.TimeLayout, strings.TrimSpace(tm), v.Location)
	if err != nil {
		return fmt.Errorf("%w: time %q", store.ErrInvalidInput, tm)
	}
	if !v.RequireFuture {
		return nil
	}
	d, err := time.ParseInLocation(v.DateLayout, strings.TrimSpace(date), v.Location)
	if err != nil {
		return fmt.Errorf("%w: date %q", store.ErrInvalidInput, date)
	}
	at := time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, v.Location)
	if at.Before(v.Now()) {
		return fmt.Errorf("%w: %s %s is in the past", store.ErrInvalidInput, date, tm)
	}
	return nil
}

func (v *LayoutValidator) Examples() (string, string) {
	sample := time.Date(2025, 4, 20, 14, 0, 0, 0, time.UTC)
	return sample.Format(v.DateLayout), sample.Format(v.TimeLayout)
}
