package tags

import (
	"strings"

	"github.com/mcraigtyler/map-editor/internal/domain"
)

// Row is one key/value line of the tag editor form.
type Row struct {
	Key   string
	Value string
}

// RowsFromTags lists t as editor rows sorted by key.
func RowsFromTags(t domain.Tags) []Row {
	rows := make([]Row, 0, len(t))
	for _, k := range t.Keys() {
		rows = append(rows, Row{Key: k, Value: t[k]})
	}
	return rows
}

// ValidateRows checks editor rows and returns the tags they describe.
// Keys are compared case-insensitively for duplicates; both the first row
// and each repeat are reported so the form can mark every offender.
func ValidateRows(rows []Row) (domain.Tags, error) {
	out := make(domain.Tags, len(rows))
	var issues []domain.FieldIssue
	firstIndex := make(map[string]int, len(rows))
	reportedFirst := make(map[int]bool)

	for i, row := range rows {
		key := strings.TrimSpace(row.Key)
		value := strings.TrimSpace(row.Value)

		keyOK := true
		if issue, ok := checkKey(key); !ok {
			issue.Field, issue.Index, issue.Key = "key", domain.IntPtr(i), key
			issues = append(issues, issue)
			keyOK = false
		}
		if issue, ok := checkValue(value); !ok {
			issue.Field, issue.Index, issue.Key = "value", domain.IntPtr(i), key
			issues = append(issues, issue)
		}
		if !keyOK {
			continue
		}

		folded := strings.ToLower(key)
		if first, dup := firstIndex[folded]; dup {
			if !reportedFirst[first] {
				reportedFirst[first] = true
				issues = append(issues, duplicateIssue(first, rows[first].Key))
			}
			issues = append(issues, duplicateIssue(i, key))
			continue
		}
		firstIndex[folded] = i
		out[key] = value
	}

	if len(issues) > 0 {
		return nil, &domain.ValidationError{Message: MsgInvalidTags, Issues: issues}
	}
	return out, nil
}

func duplicateIssue(index int, key string) domain.FieldIssue {
	return domain.FieldIssue{
		Field:   "key",
		Index:   domain.IntPtr(index),
		Key:     strings.TrimSpace(key),
		Message: "Tag keys must be unique.",
		Rule:    RuleDuplicate,
	}
}

// Diff returns the mutation that turns current into next. Changed and new
// keys go to Set; keys missing from next go to Delete in sorted order.
func Diff(current, next domain.Tags) domain.TagMutation {
	m := domain.TagMutation{Set: domain.Tags{}}
	for _, k := range next.Keys() {
		if v, ok := current[k]; !ok || v != next[k] {
			m.Set[k] = next[k]
		}
	}
	for _, k := range current.Keys() {
		if _, ok := next[k]; !ok {
			m.Delete = append(m.Delete, k)
		}
	}
	return m
}
