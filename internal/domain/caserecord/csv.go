package caserecord

import (
	"strconv"
	"time"

	"github.com/epiwatch/casestore/internal/domain/schema"
)

// CSVHeader returns the flat export columns: the fixed core columns
// followed by custom fields in registration order. It depends only on
// the registry, never on any particular case, so header and rows stay
// in lock-step for every export.
func CSVHeader(reg *schema.Registry) []string {
	header := []string{"_id", "confirmationDate", "caseReference.sourceId"}
	return append(header, reg.Names()...)
}

// CSVRow projects the case onto the columns of CSVHeader.
func (c *Case) CSVRow(reg *schema.Registry) []string {
	row := make([]string, 0, 3+len(c.Custom))
	row = append(row, c.ID, c.ConfirmationDate.Format(DateLayout))
	if c.Reference != nil {
		row = append(row, c.Reference.SourceID)
	} else {
		row = append(row, "")
	}
	for _, name := range reg.Names() {
		row = append(row, formatCSVValue(c.Custom[name]))
	}
	return row
}

func formatCSVValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format(DateLayout)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
