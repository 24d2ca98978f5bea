package portal

import (
	"errors"
	"fmt"

	appLog "urconnect/internal/log"
)

var (
	// ErrNotLoggedIn is returned by Timetable when Login has not succeeded.
	ErrNotLoggedIn = errors.New("portal: not logged in")

	// ErrFlowKeyNotFound means no flow execution key could be recovered
	// from the timetable entry page or its URLs.
	ErrFlowKeyNotFound = errors.New("portal: could not determine _flowExecutionKey for timetable")

	// ErrCalendarURLNotFound means neither timetable page exposed a
	// calendar export link.
	ErrCalendarURLNotFound = errors.New("portal: could not locate calendar export URL in timetable pages")

	// ErrEmptyFeed means the downloaded feed held no usable events.
	ErrEmptyFeed = errors.New("portal: no events were parsed from the calendar feed")
)

// Step names used in StepError.
const (
	StepStartPage     = "start page"
	StepLogin         = "login"
	StepLandingPage   = "landing page"
	StepEntryPage     = "timetable entry page"
	StepFullTimetable = "full timetable page"
	StepCalendar      = "calendar download"
)

// StepError is a transport failure during one navigation step.
type StepError struct {
	Step string
	URL  string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("portal: %s (%s): %v", e.Step, appLog.RedactURL(e.URL), e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// LoginRejectedError is returned when the login POST answers with a
// non-success status.
type LoginRejectedError struct {
	Status int
}

func (e *LoginRejectedError) Error() string {
	return fmt.Sprintf("portal: login failed with status %d", e.Status)
}
