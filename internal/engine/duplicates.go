package engine

import (
	"log/slog"
	"sort"
)

// ContainerID identifies where a receipt lives: the pool, or one expense's
// attachment list.
type ContainerID struct {
	ExpenseID string
}

// PoolContainer addresses the unattached receipt pool.
func PoolContainer() ContainerID {
	return ContainerID{}
}

// ExpenseContainer addresses the attachment list of one expense.
func ExpenseContainer(expenseID string) ContainerID {
	return ContainerID{ExpenseID: expenseID}
}

// IsPool reports whether the container is the pool.
func (c ContainerID) IsPool() bool {
	return c.ExpenseID == ""
}

// String returns a log-friendly container label.
func (c ContainerID) String() string {
	if c.IsPool() {
		return "pool"
	}
	return "expense:" + c.ExpenseID
}

// duplicateRef locates one existing receipt instance by container and
// position.
type duplicateRef struct {
	container ContainerID
	index     int
}

// RemovedDuplicate names one receipt instance the duplicate guard removed.
type RemovedDuplicate struct {
	Name      string
	Container ContainerID
}

// DuplicateNotice is the user-facing record of same-named receipts the
// guard eliminated. It is informational, not an error: duplicate resolution
// is a silent oldest-loses policy.
type DuplicateNotice struct {
	Removed []RemovedDuplicate
}

// Count returns the number of receipt instances removed.
func (n DuplicateNotice) Count() int {
	return len(n.Removed)
}

// Names returns the names of the removed instances in removal order.
func (n DuplicateNotice) Names() []string {
	names := make([]string, len(n.Removed))
	for i, d := range n.Removed {
		names[i] = d.Name
	}
	return names
}

func (n *DuplicateNotice) merge(other DuplicateNotice) {
	n.Removed = append(n.Removed, other.Removed...)
}

// findAllDuplicates scans the pool and every attachment list for receipts
// with the given name. Under the uniqueness invariant at most one instance
// exists, but the guard scans everything so a violation gets repaired
// rather than compounded.
func (r *Reconciler) findAllDuplicates(name string) []duplicateRef {
	var refs []duplicateRef
	for i := range r.pool {
		if r.pool[i].Name == name {
			refs = append(refs, duplicateRef{container: PoolContainer(), index: i})
		}
	}
	for _, e := range r.expenses {
		for i := range e.Receipts {
			if e.Receipts[i].Name == name {
				refs = append(refs, duplicateRef{container: ExpenseContainer(e.ID), index: i})
			}
		}
	}
	return refs
}

// removeDuplicates deletes the located instances, processing each container
// from highest position to lowest so earlier removals cannot shift the
// indices of later ones. Any confidence the removed instances carried is
// discarded with them.
func (r *Reconciler) removeDuplicates(refs []duplicateRef) DuplicateNotice {
	byContainer := make(map[ContainerID][]duplicateRef)
	for _, ref := range refs {
		byContainer[ref.container] = append(byContainer[ref.container], ref)
	}

	var notice DuplicateNotice
	for container, containerRefs := range byContainer {
		sort.Slice(containerRefs, func(i, j int) bool {
			return containerRefs[i].index > containerRefs[j].index
		})
		for _, ref := range containerRefs {
			if container.IsPool() {
				notice.Removed = append(notice.Removed, RemovedDuplicate{
					Name:      r.pool[ref.index].Name,
					Container: container,
				})
				r.pool = append(r.pool[:ref.index], r.pool[ref.index+1:]...)
				continue
			}
			e := r.findExpense(container.ExpenseID)
			if e == nil {
				continue
			}
			notice.Removed = append(notice.Removed, RemovedDuplicate{
				Name:      e.Receipts[ref.index].Name,
				Container: container,
			})
			e.Receipts = append(e.Receipts[:ref.index], e.Receipts[ref.index+1:]...)
		}
	}

	if notice.Count() > 0 {
		slog.Info("Removed duplicate receipts", "count", notice.Count(), "names", notice.Names())
	}
	return notice
}

// guardAgainst runs the duplicate guard for one candidate name and removes
// every existing same-named receipt. The guard never fails; no duplicates
// just means an empty notice.
func (r *Reconciler) guardAgainst(name string) DuplicateNotice {
	return r.removeDuplicates(r.findAllDuplicates(name))
}
