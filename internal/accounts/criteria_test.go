package accounts

import (
	"strings"
	"testing"
	"time"
)

func int64p(v int64) *int64                { return &v }
func statusp(s AccountStatus) *AccountStatus { return &s }
func timep(t time.Time) *time.Time         { return &t }

func TestIsEmptyTreatsBlankAsAbsent(t *testing.T) {
	if !(SearchCriteria{}).IsEmpty() {
		t.Fatalf("zero criteria must be empty")
	}
	c := SearchCriteria{AccountRef: "   ", CustomerName: "\t"}
	if !c.IsEmpty() {
		t.Fatalf("whitespace-only strings must count as absent")
	}
	c.AccountIDFrom = int64p(1)
	if c.IsEmpty() {
		t.Fatalf("a single bound makes the criteria non-empty")
	}
}

func TestBuildSpecificationEmptyCriteria(t *testing.T) {
	spec := BuildSpecification(SearchCriteria{AccountRef: "  "})
	if len(spec.Conditions) != 0 {
		t.Fatalf("empty criteria must impose no predicate, got %+v", spec.Conditions)
	}
	if spec.JoinCustomer {
		t.Fatalf("empty criteria must not join")
	}
	where, args := spec.SQL()
	if where != "" || len(args) != 0 {
		t.Fatalf("expected empty clause, got %q %v", where, args)
	}
}

func TestBuildSpecificationTextFields(t *testing.T) {
	spec := BuildSpecification(SearchCriteria{AccountRef: " ACC-1 ", Currency: "usd"})
	if len(spec.Conditions) != 2 {
		t.Fatalf("expected 2 conditions, got %+v", spec.Conditions)
	}
	where, args := spec.SQL()
	if !strings.Contains(where, "a.account_ref ILIKE $1") || !strings.Contains(where, "a.currency ILIKE $2") {
		t.Fatalf("unexpected clause %q", where)
	}
	if args[0] != "%ACC-1%" || args[1] != "%usd%" {
		t.Fatalf("substring arguments must be wrapped and trimmed, got %v", args)
	}
	if spec.JoinCustomer {
		t.Fatalf("account-scoped text fields must not join")
	}
}

func TestBuildSpecificationRangeBounds(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	spec := BuildSpecification(SearchCriteria{
		AccountIDFrom: int64p(10),
		AccountIDTo:   int64p(20),
		CreatedAtFrom: timep(from),
	})
	where, args := spec.SQL()
	if !strings.Contains(where, "a.id >= $1") || !strings.Contains(where, "a.id <= $2") {
		t.Fatalf("expected both id bounds, got %q", where)
	}
	if !strings.Contains(where, "a.created_at >= $3") {
		t.Fatalf("expected created-at lower bound only, got %q", where)
	}
	if strings.Contains(where, "a.created_at <=") {
		t.Fatalf("absent upper bound must impose nothing, got %q", where)
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 arguments, got %v", args)
	}
}

func TestBuildSpecificationCustomerJoin(t *testing.T) {
	spec := BuildSpecification(SearchCriteria{CustomerName: "Acme"})
	if !spec.JoinCustomer {
		t.Fatalf("customer name filter requires the join")
	}
	spec = BuildSpecification(SearchCriteria{CustomerIDFrom: int64p(5)})
	if !spec.JoinCustomer {
		t.Fatalf("customer id range requires the join")
	}
	where, _ := spec.SQL()
	if !strings.Contains(where, "c.id >= $1") {
		t.Fatalf("customer bound must target the joined table, got %q", where)
	}
}

func TestBuildSpecificationStatusExactMatch(t *testing.T) {
	spec := BuildSpecification(SearchCriteria{Status: statusp(StatusActive)})
	where, args := spec.SQL()
	if where != "WHERE a.status = $1" {
		t.Fatalf("status must be an exact match, got %q", where)
	}
	if args[0] != "ACTIVE" {
		t.Fatalf("expected ACTIVE argument, got %v", args)
	}
}

// matches interprets the condition tuples against an in-memory account,
// mirroring what the SQL rendering asks of the database.
func matches(spec Specification, a Account, customerName string) bool {
	for _, cond := range spec.Conditions {
		var ok bool
		switch cond.Field {
		case fieldAccountRef:
			ok = containsFold(a.AccountRef, cond.Value.(string))
		case fieldAccountName:
			ok = containsFold(a.AccountName, cond.Value.(string))
		case fieldCurrency:
			ok = containsFold(a.Currency, cond.Value.(string))
		case fieldCustomerName:
			ok = containsFold(customerName, cond.Value.(string))
		case fieldStatus:
			ok = string(a.Status) == cond.Value.(string)
		case fieldAccountID:
			v := cond.Value.(int64)
			if cond.Op == OpGTE {
				ok = a.ID >= v
			} else {
				ok = a.ID <= v
			}
		case fieldCustomerID:
			v := cond.Value.(int64)
			if cond.Op == OpGTE {
				ok = a.CustomerID >= v
			} else {
				ok = a.CustomerID <= v
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func TestSearchScenarioIDRangeWithStatus(t *testing.T) {
	// 30 accounts, ids 1..30, even ids ACTIVE.
	var store []Account
	for id := int64(1); id <= 30; id++ {
		status := StatusInactive
		if id%2 == 0 {
			status = StatusActive
		}
		store = append(store, Account{ID: id, AccountRef: "ACC", Status: status, CustomerID: id})
	}

	spec := BuildSpecification(SearchCriteria{
		AccountIDFrom: int64p(10),
		AccountIDTo:   int64p(20),
		Status:        statusp(StatusActive),
	})

	var got []int64
	for _, a := range store {
		if matches(spec, a, "") {
			got = append(got, a.ID)
		}
	}
	want := []int64{10, 12, 14, 16, 18, 20}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestSearchScenarioEmptyCriteriaMatchesAll(t *testing.T) {
	spec := BuildSpecification(SearchCriteria{})
	total := 0
	for id := int64(1); id <= 30; id++ {
		if matches(spec, Account{ID: id}, "") {
			total++
		}
	}
	if total != 30 {
		t.Fatalf("empty criteria must match every row, got %d", total)
	}
}
