package vectorstore

import "time"

// Filter is a conjunction of predicates applied during SemanticSearch.
// Every predicate in Must is ANDed together.
type Filter struct {
	Must []Predicate
}

// Predicate is implemented by Equals, In, and DateRange below. It is a
// closed set by design — new predicate kinds are added here, not by
// accepting arbitrary query fragments from callers.
type Predicate interface {
	predicate()
}

// Equals matches documents where Field equals Value exactly.
type Equals struct {
	Field string
	Value string
}

func (Equals) predicate() {}

// In matches documents where Field is one of Values (set membership).
type In struct {
	Field  string
	Values []string
}

func (In) predicate() {}

// DateRange matches documents where the numeric Field (Unix seconds, such
// as DateField) falls within [From, To]. A zero From or To leaves that
// bound open.
type DateRange struct {
	Field string
	From  time.Time
	To    time.Time
}

func (DateRange) predicate() {}
