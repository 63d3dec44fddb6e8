package rbac

// CanReparent reports whether proposedParentID may become roleID's parent
// without creating a cycle. It walks the proposed parent's ancestor chain
// and vetoes the change if roleID appears anywhere in it; self-parenting
// is the trivial case and is always rejected.
//
// This guard is the single invariant-preserving gate for the hierarchy.
// The resolver recurses without a visited set, so every write path that
// touches a role's parent reference must consult this check first, and
// must do so atomically with the write (see Repository.ReparentRole).
func (g *Graph) CanReparent(roleID, proposedParentID int64) bool {
	cur := proposedParentID
	for {
		if cur == roleID {
			return false
		}
		parent, ok := g.Roles[cur]
		if !ok || parent.ParentID == nil {
			return true
		}
		cur = *parent.ParentID
	}
}
