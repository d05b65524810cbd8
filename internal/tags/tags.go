// Package tags validates feature tag maps, tag mutations, and the rows of
// the tag editor form.
package tags

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/mcraigtyler/map-editor/internal/domain"
)

// Key and value limits, measured after trimming.
const (
	MaxKeyLength   = 64
	MaxValueLength = 256
)

// Rule codes reported in domain.FieldIssue.Rule.
const (
	RuleRequired      = "required"
	RuleMaxLength     = "max_length"
	RulePattern       = "pattern"
	RuleDuplicate     = "duplicate"
	RuleEmptyMutation = "empty_mutation"
)

// Messages shared with callers that render them.
const (
	MsgInvalidTags     = "tags are invalid"
	MsgInvalidMutation = "tag mutation is invalid"
	MsgEmptyMutation   = "At least one tag change must be provided."
	MsgNoChanges       = "No changes to save."
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9:_-]+$`)

// Mutation is the unvalidated input of a partial tag update.
type Mutation struct {
	Set    map[string]string `json:"set,omitempty"`
	Delete []string          `json:"delete,omitempty"`
}

// ValidateTags trims and checks every entry of in and returns the normalized map.
// All problems are reported together in one *domain.ValidationError.
func ValidateTags(in map[string]string) (domain.Tags, error) {
	out, issues := normalizeEntries("tags", in)
	if len(issues) > 0 {
		return nil, &domain.ValidationError{Message: MsgInvalidTags, Issues: issues}
	}
	return out, nil
}

// ValidateMutation checks a partial update. Delete keys are trimmed and
// deduplicated in first-seen order.
func ValidateMutation(in Mutation) (domain.TagMutation, error) {
	set, issues := normalizeEntries("set", in.Set)

	var del []string
	seen := make(map[string]bool, len(in.Delete))
	for i, raw := range in.Delete {
		key := strings.TrimSpace(raw)
		if issue, ok := checkKey(key); !ok {
			issue.Field = "delete"
			issue.Index = domain.IntPtr(i)
			issue.Key = key
			issues = append(issues, issue)
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		del = append(del, key)
	}

	if len(issues) == 0 && len(set) == 0 && len(del) == 0 {
		issues = append(issues, domain.FieldIssue{
			Field:   "mutation",
			Message: MsgEmptyMutation,
			Rule:    RuleEmptyMutation,
		})
	}
	if len(issues) > 0 {
		return domain.TagMutation{}, &domain.ValidationError{Message: MsgInvalidMutation, Issues: issues}
	}
	return domain.TagMutation{Set: set, Delete: del}, nil
}

// normalizeEntries validates a map in sorted key order so issues are stable.
func normalizeEntries(field string, in map[string]string) (domain.Tags, []domain.FieldIssue) {
	out := make(domain.Tags, len(in))
	var issues []domain.FieldIssue
	origin := make(map[string]string, len(in))

	for _, rawKey := range slices.Sorted(maps.Keys(in)) {
		key := strings.TrimSpace(rawKey)
		value := strings.TrimSpace(in[rawKey])

		if issue, ok := checkKey(key); !ok {
			issue.Field, issue.Key = field, rawKey
			issues = append(issues, issue)
			continue
		}
		if issue, ok := checkValue(value); !ok {
			issue.Field, issue.Key = field, key
			issues = append(issues, issue)
			continue
		}
		if first, dup := origin[key]; dup {
			issues = append(issues, domain.FieldIssue{
				Field:   field,
				Key:     key,
				Message: fmt.Sprintf("Tag key %q duplicates %q after trimming.", rawKey, first),
				Rule:    RuleDuplicate,
			})
			continue
		}
		origin[key] = rawKey
		out[key] = value
	}
	return out, issues
}

func checkKey(key string) (domain.FieldIssue, bool) {
	switch {
	case key == "":
		return domain.FieldIssue{Message: "Tag key is required.", Rule: RuleRequired}, false
	case len(key) > MaxKeyLength:
		return domain.FieldIssue{
			Message: fmt.Sprintf("Tag key must be at most %d characters.", MaxKeyLength),
			Rule:    RuleMaxLength,
		}, false
	case !keyPattern.MatchString(key):
		return domain.FieldIssue{
			Message: "Tag key may only contain letters, numbers, colon, underscore, or hyphen.",
			Rule:    RulePattern,
		}, false
	}
	return domain.FieldIssue{}, true
}

func checkValue(value string) (domain.FieldIssue, bool) {
	switch {
	case value == "":
		return domain.FieldIssue{Message: "Tag value is required.", Rule: RuleRequired}, false
	case len(value) > MaxValueLength:
		return domain.FieldIssue{
			Message: fmt.Sprintf("Tag value must be at most %d characters.", MaxValueLength),
			Rule:    RuleMaxLength,
		}, false
	}
	return domain.FieldIssue{}, true
}
