package models

import (
	"fmt"
	"strings"
	"unicode"
)

// Counter names used by the sequence allocator.
const (
	CounterEnquiry  = "enquiryId"
	CounterSchedule = "schedule"
	batchCounter    = "batch"
)

// FormatEnquiryID renders ENQ-001 style identifiers.
func FormatEnquiryID(seq int64) string {
	return fmt.Sprintf("ENQ-%03d", seq)
}

// FormatScheduleID renders SCH-00001 style identifiers.
func FormatScheduleID(seq int64) string {
	return fmt.Sprintf("SCH-%05d", seq)
}

// FormatBatchID renders Batch-F-001 style identifiers.
func FormatBatchID(initial string, seq int64) string {
	return fmt.Sprintf("Batch-%s-%03d", initial, seq)
}

// CourseInitial returns the upper-cased first letter or digit of a course name, X when none exists.
func CourseInitial(courseName string) string {
	for _, r := range strings.TrimSpace(courseName) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return string(unicode.ToUpper(r))
		}
	}
	return "X"
}

// BatchCounterName keys batch sequences per course initial so each prefix counts independently.
func BatchCounterName(initial string) string {
	return batchCounter + initial
}
