package workflow

import (
	"fmt"
	"strings"
	"time"

	"newsdesk/authoring/internal/archive"
)

// Validation failure reasons.
const (
	ReasonDateRequired    = "date_required"
	ReasonTimeRequired    = "time_required"
	ReasonInvalid         = "invalid_timestamp"
	ReasonNotInFuture     = "not_in_future"
	ReasonEmbargoConflict = "embargo_and_publish_schedule"
	ReasonAltTextRequired = "alt_text_required"
)

// ValidationError rejects a transition attempt before it reaches the
// store. Recoverable: the caller fixes the field and retries.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

const scheduleLayout = "2006-01-02T15:04:05"

// Validator checks schedule timestamps and publish preconditions. The
// clock is a field so boundary tests can pin "now".
type Validator struct {
	DefaultTimezone string
	Now             func() time.Time
}

func NewValidator(defaultTimezone string) *Validator {
	return &Validator{
		DefaultTimezone: defaultTimezone,
		Now:             time.Now,
	}
}

// ValidateSchedule checks a composed schedule or embargo timestamp. Both
// date and time parts are required; the composed timestamp must parse in
// the given (or default) timezone and resolve to a future instant.
// relaxFuture skips the future check, used for embargoes on items that
// already left production.
func (v *Validator) ValidateSchedule(datePart, timePart, timestamp, timezone, field string, relaxFuture bool) error {
	if datePart == "" {
		return &ValidationError{Field: field, Reason: ReasonDateRequired}
	}
	if timePart == "" {
		return &ValidationError{Field: field, Reason: ReasonTimeRequired}
	}

	zone := timezone
	if zone == "" {
		zone = v.DefaultTimezone
	}
	location, err := time.LoadLocation(zone)
	if err != nil {
		return &ValidationError{Field: field, Reason: ReasonInvalid}
	}

	// zone designators are stripped so the named timezone wins
	cleaned := strings.NewReplacer("+0000", "", "Z", "").Replace(timestamp)
	schedule, err := time.ParseInLocation(scheduleLayout, cleaned, location)
	if err != nil {
		return &ValidationError{Field: field, Reason: ReasonInvalid}
	}

	if !relaxFuture && !schedule.After(v.Now()) {
		return &ValidationError{Field: field, Reason: ReasonNotInFuture}
	}
	return nil
}

// ValidatePublishPreconditions runs the checks shared by every publish
// action. Embargo and publish schedule are mutually exclusive; pictures
// must carry alt text.
func (v *Validator) ValidatePublishPreconditions(item *archive.Item) error {
	if item.Embargo != nil && item.PublishSchedule != nil {
		return &ValidationError{Field: "publish_schedule", Reason: ReasonEmbargoConflict}
	}
	if item.Type == archive.TypePicture {
		altText, _ := item.Fields["alt_text"].(string)
		if strings.TrimSpace(altText) == "" {
			return &ValidationError{Field: "alt_text", Reason: ReasonAltTextRequired}
		}
	}
	return nil
}
