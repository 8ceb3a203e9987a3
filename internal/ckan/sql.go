package ckan

import (
	"errors"
	"strconv"
	"strings"
)

// Known BDGD consumer resources on the ANEEL portal.
const (
	ResourceUCAT = "4318d38a-0bcd-421d-afb1-fb88b0c92a87" // high voltage, legal entities
	ResourceUCMT = "f6671cba-f269-42ef-8eb3-62cb3bfa0b98" // medium voltage, legal entities
)

// ResourceFor maps a short source name ("ucat", "ucmt") to its resource id.
// Anything else is assumed to already be a resource id.
func ResourceFor(source string) string {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "ucat", "at":
		return ResourceUCAT
	case "ucmt", "mt", "":
		return ResourceUCMT
	default:
		return strings.TrimSpace(source)
	}
}

// SQLSpec describes a server-side filtered, sorted and paged query.
type SQLSpec struct {
	ResourceID      string
	Columns         []string
	DemandColumn    string
	LatitudeColumn  string
	LongitudeColumn string
	// CleanDemand casts text demand values to numeric inside the query,
	// stripping anything that is not a digit or the decimal separator.
	CleanDemand bool
	MinDemand   float64
	Descending  bool
	Limit       int
	Offset      int
}

func BuildSQL(s SQLSpec) (string, error) {
	if strings.TrimSpace(s.ResourceID) == "" {
		return "", errors.New("build sql: missing resource id")
	}
	if strings.TrimSpace(s.DemandColumn) == "" {
		return "", errors.New("build sql: missing demand column")
	}
	if s.Limit <= 0 {
		return "", errors.New("build sql: limit must be > 0")
	}
	offset := s.Offset
	if offset < 0 {
		offset = 0
	}

	cols := "*"
	if len(s.Columns) > 0 {
		quoted := make([]string, 0, len(s.Columns))
		for _, c := range s.Columns {
			quoted = append(quoted, quoteIdent(c))
		}
		cols = strings.Join(quoted, ", ")
	}

	demand := quoteIdent(s.DemandColumn)
	if s.CleanDemand {
		demand = cleanDemandExpr(demand)
	}

	where := []string{
		demand + " IS NOT NULL",
		demand + " >= " + strconv.FormatFloat(s.MinDemand, 'f', -1, 64),
	}
	if s.LatitudeColumn != "" {
		where = append(where, quoteIdent(s.LatitudeColumn)+" IS NOT NULL")
	}
	if s.LongitudeColumn != "" {
		where = append(where, quoteIdent(s.LongitudeColumn)+" IS NOT NULL")
	}

	order := "ASC"
	if s.Descending {
		order = "DESC"
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(cols)
	b.WriteString(" FROM ")
	b.WriteString(quoteIdent(s.ResourceID))
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(where, " AND "))
	b.WriteString(" ORDER BY ")
	b.WriteString(demand)
	b.WriteString(" ")
	b.WriteString(order)
	b.WriteString(" LIMIT ")
	b.WriteString(strconv.Itoa(s.Limit))
	b.WriteString(" OFFSET ")
	b.WriteString(strconv.Itoa(offset))
	return b.String(), nil
}

// cleanDemandExpr strips text demand down to digits and dots, then casts
// only when a single optional decimal dot remains. Anything else (for
// example "1.234,5" which becomes "1.234.5") is NULL and filtered out
// instead of failing the whole statement.
func cleanDemandExpr(col string) string {
	cleaned := "regexp_replace(replace(" + col + "::text, ',', '.'), '[^0-9.]', '', 'g')"
	return "(CASE WHEN " + cleaned + ` ~ '^[0-9]+(\.[0-9]+)?$' THEN ` + cleaned + "::numeric END)"
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
