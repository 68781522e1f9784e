// Package index implements the eventually consistent full-text index: schema
// classification, query compilation, the bleve writer and the sync worker that
// drains the event log.
package index

import (
	"strings"
	"unicode"

	"github.com/docuvault/docuvault/internal/access"
	"github.com/docuvault/docuvault/internal/document"
	"github.com/docuvault/docuvault/pkg/logger"
)

// Anonymous is the sentinel read-access entry indexed for documents with an
// effectively empty read ACL, so the public can match them at query time.
const Anonymous = "ANONYMOUS"

// SchemaConfig carries the comma-separated field lists from the configuration.
// Empty lists fall back to the built-in defaults.
type SchemaConfig struct {
	Fields          string // full-text only, searchable via the catch-all field
	FieldsAnalyze   string // field-searchable, analyzed
	FieldsNoAnalyze string // field-searchable, exact tokens
	FieldsStore     string // value kept in the index for stub documents
}

// Built-in classification defaults. Configured lists extend these.
var (
	defaultSearchFieldList = []string{"title", "summary"}

	defaultNoAnalyzeFieldList = []string{
		document.ItemUniqueIDRef, document.ItemType, document.ItemWriteAccess,
		document.ItemModified, document.ItemCreated, "name", "owner", "creator", "editor",
	}

	defaultStoreFieldList = []string{
		document.ItemType, document.ItemWriteAccess, document.ItemModified,
		document.ItemCreated, "title", "summary", "name", "owner", "creator", "editor",
	}
)

// Schema is the computed field classification. It is immutable after
// NewSchema and safe for concurrent use.
type Schema struct {
	fieldList          []string
	fieldListAnalyze   []string
	fieldListNoAnalyze []string
	fieldListStore     []string
	uniqueFieldList    map[string]bool
}

// NewSchema computes the classification lists from the configuration. The
// internal fields $uniqueid and $readaccess are managed by the index itself
// and are never admitted from config. A field may be analyzed or no-analyze
// but not both; the no-analyze list wins. Every stored field that is in
// neither list is added to the analyze list so its value is always
// retrievable from the index.
func NewSchema(cfg SchemaConfig) *Schema {
	s := &Schema{}

	s.fieldList = append(s.fieldList, defaultSearchFieldList...)
	for _, name := range splitFieldList(cfg.Fields) {
		if !isInternalField(name) && !contains(s.fieldList, name) {
			s.fieldList = append(s.fieldList, name)
		}
	}

	s.fieldListNoAnalyze = append(s.fieldListNoAnalyze, defaultNoAnalyzeFieldList...)
	for _, name := range splitFieldList(cfg.FieldsNoAnalyze) {
		if !isInternalField(name) && !contains(s.fieldListNoAnalyze, name) {
			s.fieldListNoAnalyze = append(s.fieldListNoAnalyze, name)
		}
	}

	for _, name := range splitFieldList(cfg.FieldsAnalyze) {
		// analyzed and no-analyze must not be mixed; no-analyze wins
		if !isInternalField(name) && !contains(s.fieldListAnalyze, name) &&
			!contains(s.fieldListNoAnalyze, name) {
			s.fieldListAnalyze = append(s.fieldListAnalyze, name)
		}
	}

	s.fieldListStore = append(s.fieldListStore, defaultStoreFieldList...)
	for _, name := range splitFieldList(cfg.FieldsStore) {
		if !contains(s.fieldListStore, name) {
			s.fieldListStore = append(s.fieldListStore, name)
		}
	}

	// a stored field must be part of a classification list, otherwise its
	// value would never reach the index
	for _, name := range s.fieldListStore {
		if !contains(s.fieldListAnalyze, name) && !contains(s.fieldListNoAnalyze, name) {
			s.fieldListAnalyze = append(s.fieldListAnalyze, name)
		}
	}

	s.uniqueFieldList = map[string]bool{
		document.ItemUniqueID:   true,
		document.ItemReadAccess: true,
	}
	for _, list := range [][]string{s.fieldListStore, s.fieldListAnalyze, s.fieldListNoAnalyze} {
		for _, name := range list {
			s.uniqueFieldList[name] = true
		}
	}

	return s
}

// FieldList returns the full-text field list. Values of these items are only
// reachable through the catch-all content field.
func (s *Schema) FieldList() []string { return s.fieldList }

// FieldListAnalyze returns the analyzed field-searchable list.
func (s *Schema) FieldListAnalyze() []string { return s.fieldListAnalyze }

// FieldListNoAnalyze returns the exact-token field-searchable list.
func (s *Schema) FieldListNoAnalyze() []string { return s.fieldListNoAnalyze }

// FieldListStore returns the fields whose values are stored in the index for
// stub documents.
func (s *Schema) FieldListStore() []string { return s.fieldListStore }

// UniqueFieldList returns the set of all schema field names including the
// internal $uniqueid and $readaccess fields.
func (s *Schema) UniqueFieldList() map[string]bool {
	out := make(map[string]bool, len(s.uniqueFieldList))
	for k := range s.uniqueFieldList {
		out[k] = true
	}
	return out
}

// ExtendedSearchTerm prefixes the query with the caller's read-access filter
// so that index-level search never returns documents the caller cannot read.
// Managers query unfiltered. The raw query is parenthesized so an OR at its
// top level cannot escape the access conjunction.
func (s *Schema) ExtendedSearchTerm(term string, p access.Principal) string {
	if term == "" {
		logger.Warn("index: no search term provided")
		return ""
	}
	if p.HasRole(access.RoleManager) {
		return term
	}
	var sb strings.Builder
	sb.WriteString("($readaccess:" + Anonymous)
	for _, name := range p.NameList() {
		if name != "" {
			sb.WriteString(" OR $readaccess:\"" + name + "\"")
		}
	}
	sb.WriteString(") AND (" + term + ")")
	return sb.String()
}

// EscapeSearchTerm escapes the query-syntax metacharacters
//
//	\ + - ! : ^ [ ] " { } ~ ? | & /
//
// so user-supplied text can be embedded literally. The '*' wildcard is
// deliberately left unescaped. Parentheses are escaped unless ignoreBracket
// is set, which lets callers pass grouping syntax through intentionally.
func EscapeSearchTerm(term string, ignoreBracket bool) string {
	if term == "" {
		return term
	}
	var sb strings.Builder
	for _, c := range term {
		switch c {
		case '\\', '+', '-', '!', ':', '^', '[', ']', '"', '{', '}', '~', '?', '|', '&', '/':
			sb.WriteRune('\\')
		case '(', ')':
			if !ignoreBracket {
				sb.WriteRune('\\')
			}
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

// NormalizeSearchTerm lowercases a user phrase and replaces query-syntax
// metacharacters with blanks, so 'Europe/Berlin' becomes 'europe berlin'.
// Terms containing digits keep their shape and are escaped instead, so
// 'rs/82550/201618' stays one token: 'rs\/82550\/201618'.
func NormalizeSearchTerm(term string) string {
	if strings.TrimSpace(term) == "" {
		return ""
	}
	term = strings.ToLower(term)
	if containsDigit(term) {
		return EscapeSearchTerm(term, false)
	}
	var sb strings.Builder
	for _, c := range term {
		switch c {
		case '\\', '+', '-', '!', ':', '^', '[', ']', '"', '{', '}', '~', '?', '|', '&', '/':
			sb.WriteRune(' ')
		default:
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

func containsDigit(s string) bool {
	for _, c := range s {
		if unicode.IsDigit(c) {
			return true
		}
	}
	return false
}

func splitFieldList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

func isInternalField(name string) bool {
	return name == document.ItemUniqueID || name == document.ItemReadAccess
}

func contains(list []string, name string) bool {
	for _, s := range list {
		if s == name {
			return true
		}
	}
	return false
}
