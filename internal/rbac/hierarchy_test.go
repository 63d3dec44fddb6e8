package rbac

import "testing"

func TestCanReparentRejectsSelf(t *testing.T) {
	g := chainGraph()
	if g.CanReparent(2, 2) {
		t.Fatalf("self-parenting must be rejected")
	}
}

func TestCanReparentRejectsDescendant(t *testing.T) {
	g := chainGraph()
	if g.CanReparent(1, 4) {
		t.Fatalf("reparenting under own descendant must be rejected")
	}
	if g.CanReparent(2, 3) {
		t.Fatalf("reparenting under direct child must be rejected")
	}
}

func TestCanReparentAllowsValidMoves(t *testing.T) {
	g := NewGraph(
		[]Role{
			role(1, "ADMIN", nil),
			role(2, "MANAGER", ptr(1)),
			role(3, "OPERATOR", ptr(1)),
			role(4, "INTERN", ptr(3)),
		},
		nil, nil,
	)
	if !g.CanReparent(4, 2) {
		t.Fatalf("moving a leaf to a sibling subtree must be allowed")
	}
	if !g.CanReparent(3, 2) {
		t.Fatalf("moving between siblings must be allowed")
	}
}

func TestCanReparentWithDetachedParent(t *testing.T) {
	g := chainGraph()
	// A parent outside the snapshot has no ancestors to collide with.
	if !g.CanReparent(2, 42) {
		t.Fatalf("unknown proposed parent cannot form a cycle")
	}
}
