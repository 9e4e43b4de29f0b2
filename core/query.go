package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Query operators used by the AutoFocus search DSL
const (
	OpAll            = "all"
	OpAny            = "any"
	OpIs             = "is"
	OpIsNot          = "is not"
	OpInList         = "is in the list"
	OpNotInList      = "is not in the list"
	OpInRange        = "is in the range"
	OpAfter          = "is after"
	OpDoesNotContain = "does not contain"
)

// Fields referenced by the built-in query builders
const (
	FieldMalware       = "sample.malware"
	FieldCreateDate    = "sample.create_date"
	FieldThreatName    = "sample.threat_name"
	FieldTagGroup      = "sample.tag_group"
	FieldTag           = "sample.tag"
	FieldUploadSource  = "session.upload_src"
	FieldDeviceAccount = "session.device_acctname"
)

// UploadSourceManualAPI is the upload source excluded from "no API" counts
const UploadSourceManualAPI = "Manual API"

// HashType is the kind of hash carried by an input list
type HashType string

const (
	HashMD5    HashType = "md5"
	HashSHA1   HashType = "sha1"
	HashSHA256 HashType = "sha256"
)

// ParseHashType validates a configured hash type
func ParseHashType(s string) (HashType, error) {
	switch HashType(strings.ToLower(strings.TrimSpace(s))) {
	case HashMD5:
		return HashMD5, nil
	case HashSHA1:
		return HashSHA1, nil
	case HashSHA256:
		return HashSHA256, nil
	}
	return "", fmt.Errorf("%w: %q (only md5, sha1 or sha256 are supported)", ErrUnsupportedHashType, s)
}

// Field returns the sample field holding this hash
func (h HashType) Field() string {
	return "sample." + string(h)
}

// Node is one element of a query filter tree. A node with a Field is a leaf predicate,
// otherwise it combines its Children with Operator.
type Node struct {
	Operator string
	Field    string
	Value    any
	Children []Node
}

// MarshalJSON renders the node in the vendor DSL
func (n Node) MarshalJSON() ([]byte, error) {
	if n.Field != "" {
		return json.Marshal(struct {
			Field    string `json:"field"`
			Operator string `json:"operator"`
			Value    any    `json:"value"`
		}{n.Field, n.Operator, n.Value})
	}
	children := n.Children
	if children == nil {
		children = []Node{}
	}
	return json.Marshal(struct {
		Operator string `json:"operator"`
		Children []Node `json:"children"`
	}{n.Operator, children})
}

// All combines predicates with a logical AND
func All(children ...Node) Node {
	return Node{Operator: OpAll, Children: children}
}

// Any combines predicates with a logical OR
func Any(children ...Node) Node {
	return Node{Operator: OpAny, Children: children}
}

// Leaf builds a single field predicate
func Leaf(field, operator string, value any) Node {
	return Node{Field: field, Operator: operator, Value: value}
}

// DateRange matches samples created between the first second of from and the last second of to
func DateRange(from, to time.Time) Node {
	return Leaf(FieldCreateDate, OpInRange, []string{
		from.Format("2006-01-02") + "T00:00:00",
		to.Format("2006-01-02") + "T23:59:59",
	})
}

// Query is an immutable, already rendered filter expression
type Query struct {
	body []byte
}

// NewQuery renders a filter tree
func NewQuery(root Node) (Query, error) {
	b, err := json.Marshal(root)
	if err != nil {
		return Query{}, fmt.Errorf("failed to render query: %w", err)
	}
	return Query{body: b}, nil
}

// MustQuery renders a filter tree built from static values
func MustQuery(root Node) Query {
	q, err := NewQuery(root)
	if err != nil {
		panic(err)
	}
	return q
}

// RawQuery wraps a query body exported from the AutoFocus web UI
func RawQuery(raw []byte) (Query, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return Query{}, fmt.Errorf("%w: body must be a JSON object", ErrInvalidQuery)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return Query{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return Query{body: buf.Bytes()}, nil
}

// IsZero reports whether the query was never built
func (q Query) IsZero() bool {
	return len(q.body) == 0
}

// MarshalJSON returns a copy of the rendered body
func (q Query) MarshalJSON() ([]byte, error) {
	if q.IsZero() {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}
	out := make([]byte, len(q.body))
	copy(out, q.body)
	return out, nil
}

func (q Query) String() string {
	return string(q.body)
}

// HashListQuery matches samples whose hash is one of values
func HashListQuery(hashType HashType, values []string) Query {
	return MustQuery(All(Leaf(hashType.Field(), OpInList, nonNil(values))))
}

// ThreatNameQuery matches samples carrying one of the threat names, created in the window
func ThreatNameQuery(window [2]string, names []string) Query {
	return MustQuery(All(
		Leaf(FieldCreateDate, OpAfter, []string{window[0], window[1]}),
		Leaf(FieldThreatName, OpInList, nonNil(names)),
	))
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
