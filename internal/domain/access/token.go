package access

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// Always is the window value meaning "no restriction" (the whole current day).
	Always = "always"

	// slotSeparator separates the start and end parts of a window.
	slotSeparator = "|"
	// defaultTimeSlot covers the full day.
	defaultTimeSlot = "00:00|23:59"
	// dateLayout is the layout of a single date-window component (DD-MM-YYYY).
	dateLayout = "02-01-2006"
	// windowLayout is the combined time + date layout used to build window bounds.
	windowLayout = "15:04 " + dateLayout
)

var (
	// ErrMissingField is returned when a required token field is empty.
	ErrMissingField = errors.New("required token field is empty")
	// ErrMalformedWindow is returned when a time or date window cannot be split into two parts.
	ErrMalformedWindow = errors.New("malformed window")
)

// Token is one authorized credential. The zero value is not a valid token;
// use NewToken.
type Token struct {
	// name is the display identifier of the holder.
	name string
	// uid is the hardware identifier reported by the reader.
	uid string
	// alarmCode is the PIN that must accompany the token.
	alarmCode string
	// timeSlot is the HH:MM|HH:MM window, or "always"/empty.
	timeSlot string
	// dateSlot is the DD-MM-YYYY|DD-MM-YYYY window, or "always"/empty.
	dateSlot string
}

// TokenOption customizes optional token fields.
type TokenOption func(*Token)

// WithTimeSlot restricts the token to a daily HH:MM|HH:MM window.
func WithTimeSlot(slot string) TokenOption {
	return func(t *Token) {
		t.timeSlot = strings.TrimSpace(slot)
	}
}

// WithDateSlot restricts the token to a DD-MM-YYYY|DD-MM-YYYY date range.
func WithDateSlot(slot string) TokenOption {
	return func(t *Token) {
		t.dateSlot = strings.TrimSpace(slot)
	}
}

// NewToken builds a token, failing when any of the required fields is empty.
func NewToken(name, uid, alarmCode string, opts ...TokenOption) (Token, error) {
	required := []struct {
		key   string
		value string
	}{
		{key: "name", value: name},
		{key: "token_uid", value: uid},
		{key: "alarmcode", value: alarmCode},
	}

	for _, field := range required {
		if field.value == "" {
			return Token{}, fmt.Errorf("token %q: %s: %w", name, field.key, ErrMissingField)
		}
	}

	token := Token{
		name:      name,
		uid:       uid,
		alarmCode: alarmCode,
	}

	for _, opt := range opts {
		opt(&token)
	}

	return token, nil
}

// Name returns the display name of the token holder.
func (t Token) Name() string {
	return t.name
}

// UID returns the hardware identifier.
func (t Token) UID() string {
	return t.uid
}

// IsValid reports whether code matches the token's alarm code and now lies
// inside the token's window. Malformed windows are never valid.
func (t Token) IsValid(code string, now time.Time) bool {
	if code != t.alarmCode {
		return false
	}

	begin, end, err := t.Window(now)
	if err != nil {
		return false
	}

	return !now.Before(begin) && !now.After(end)
}

// Window resolves the closed interval in which the token is accepted.
// Both bounds are computed in now's location. The end bound covers the
// whole end minute: a window ending at 18:00 still admits 18:00:59, not
// only 18:00:00.
func (t Token) Window(now time.Time) (time.Time, time.Time, error) {
	timeFrom, timeTo, err := splitSlot(t.resolvedTimeSlot())
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("time slot: %w", err)
	}

	dateFrom, dateTo, err := splitSlot(t.resolvedDateSlot(now))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("date slot: %w", err)
	}

	begin, err := time.ParseInLocation(windowLayout, timeFrom+" "+dateFrom, now.Location())
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse window begin: %w", err)
	}

	end, err := time.ParseInLocation(windowLayout, timeTo+" "+dateTo, now.Location())
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse window end: %w", err)
	}

	return begin, end.Add(time.Minute - time.Nanosecond), nil
}

// resolvedTimeSlot returns the configured time slot or the full-day default.
func (t Token) resolvedTimeSlot() string {
	if isUnrestricted(t.timeSlot) {
		return defaultTimeSlot
	}

	return t.timeSlot
}

// resolvedDateSlot returns the configured date slot or a slot spanning today only.
func (t Token) resolvedDateSlot(now time.Time) string {
	if isUnrestricted(t.dateSlot) {
		today := now.Format(dateLayout)
		return today + slotSeparator + today
	}

	return t.dateSlot
}

func isUnrestricted(slot string) bool {
	return slot == "" || strings.EqualFold(slot, Always)
}

// splitSlot splits "from|to" into its two trimmed parts.
func splitSlot(slot string) (string, string, error) {
	from, to, found := strings.Cut(slot, slotSeparator)
	if !found || strings.Contains(to, slotSeparator) {
		return "", "", fmt.Errorf("%q: %w", slot, ErrMalformedWindow)
	}

	return strings.TrimSpace(from), strings.TrimSpace(to), nil
}
