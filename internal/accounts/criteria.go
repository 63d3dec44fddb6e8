package accounts

import (
	"fmt"
	"strings"
	"time"
)

// Op is a predicate operator.
type Op int

const (
	// OpContains is a case-insensitive substring match.
	OpContains Op = iota
	// OpEquals is an exact match.
	OpEquals
	// OpGTE is a lower range bound.
	OpGTE
	// OpLTE is an upper range bound.
	OpLTE
)

// Condition is one field/operator/value tuple. Conditions combine with
// logical AND; an empty condition list matches every row.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Specification is the assembled predicate for one search. JoinCustomer
// marks that customer-scoped conditions are present; the SQL rendering
// joins the customers table exactly once and de-duplicates rows when it
// does.
type Specification struct {
	Conditions   []Condition
	JoinCustomer bool
}

const (
	fieldAccountRef   = "a.account_ref"
	fieldAccountName  = "a.account_name"
	fieldCurrency     = "a.currency"
	fieldCreatedBy    = "a.created_by"
	fieldUpdatedBy    = "a.updated_by"
	fieldStatus       = "a.status"
	fieldAccountID    = "a.id"
	fieldCreatedAt    = "a.created_at"
	fieldUpdatedAt    = "a.updated_at"
	fieldCustomerName = "c.name"
	fieldCustomerID   = "c.id"
)

// BuildSpecification assembles the predicate from the populated criteria
// fields. Absent fields contribute nothing, which is how an empty
// criteria degenerates to "match all".
func BuildSpecification(c SearchCriteria) Specification {
	var spec Specification

	spec.JoinCustomer = present(c.CustomerName) || c.CustomerIDFrom != nil || c.CustomerIDTo != nil

	text := func(field, value string) {
		if present(value) {
			spec.Conditions = append(spec.Conditions, Condition{Field: field, Op: OpContains, Value: strings.TrimSpace(value)})
		}
	}
	text(fieldAccountRef, c.AccountRef)
	text(fieldAccountName, c.AccountName)
	text(fieldCurrency, c.Currency)
	text(fieldCreatedBy, c.CreatedBy)
	text(fieldUpdatedBy, c.UpdatedBy)
	text(fieldCustomerName, c.CustomerName)

	if c.Status != nil {
		spec.Conditions = append(spec.Conditions, Condition{Field: fieldStatus, Op: OpEquals, Value: string(*c.Status)})
	}

	rng := func(field string, from, to any, fromSet, toSet bool) {
		if fromSet {
			spec.Conditions = append(spec.Conditions, Condition{Field: field, Op: OpGTE, Value: from})
		}
		if toSet {
			spec.Conditions = append(spec.Conditions, Condition{Field: field, Op: OpLTE, Value: to})
		}
	}
	rng(fieldAccountID, deref(c.AccountIDFrom), deref(c.AccountIDTo), c.AccountIDFrom != nil, c.AccountIDTo != nil)
	rng(fieldCustomerID, deref(c.CustomerIDFrom), deref(c.CustomerIDTo), c.CustomerIDFrom != nil, c.CustomerIDTo != nil)
	rng(fieldCreatedAt, tderef(c.CreatedAtFrom), tderef(c.CreatedAtTo), c.CreatedAtFrom != nil, c.CreatedAtTo != nil)
	rng(fieldUpdatedAt, tderef(c.UpdatedAtFrom), tderef(c.UpdatedAtTo), c.UpdatedAtFrom != nil, c.UpdatedAtTo != nil)

	return spec
}

// SQL renders the specification into a WHERE clause and its arguments.
// Placeholders start at $1. An empty specification returns an empty
// clause.
func (s Specification) SQL() (string, []any) {
	if len(s.Conditions) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(s.Conditions))
	args := make([]any, 0, len(s.Conditions))
	for _, cond := range s.Conditions {
		args = append(args, argValue(cond))
		n := len(args)
		switch cond.Op {
		case OpContains:
			clauses = append(clauses, fmt.Sprintf("%s ILIKE $%d", cond.Field, n))
		case OpEquals:
			clauses = append(clauses, fmt.Sprintf("%s = $%d", cond.Field, n))
		case OpGTE:
			clauses = append(clauses, fmt.Sprintf("%s >= $%d", cond.Field, n))
		case OpLTE:
			clauses = append(clauses, fmt.Sprintf("%s <= $%d", cond.Field, n))
		}
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func argValue(cond Condition) any {
	if cond.Op == OpContains {
		return "%" + cond.Value.(string) + "%"
	}
	return cond.Value
}

func deref(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func tderef(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}
