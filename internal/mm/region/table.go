package region

import (
	"fmt"
	"sort"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/frame"
)

// Table is an ordered collection of non-overlapping regions within one
// address space. It is not safe for concurrent use; the owning address
// space serializes access.
type Table struct {
	regions []Region // sorted by Base
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{}
}

// Len returns the number of regions.
func (t *Table) Len() int {
	return len(t.regions)
}

// Regions returns a copy of the table in base order.
func (t *Table) Regions() []Region {
	out := make([]Region, len(t.regions))
	copy(out, t.regions)
	return out
}

// Clone returns an independent copy of the table. Backing sources are
// shared; everything else is copied.
func (t *Table) Clone() *Table {
	return &Table{regions: t.Regions()}
}

// Insert stores a region, failing with ErrOverlap when it intersects
// any existing region and ErrInvalidRegion on malformed input.
func (t *Table) Insert(r Region) error {
	if !r.valid() {
		return fmt.Errorf("insert at %#x (%d pages): %w", r.Base, r.Pages, ErrInvalidRegion)
	}

	idx := t.search(r.Base)
	// The candidate can only collide with its immediate neighbors.
	if idx > 0 && t.regions[idx-1].Overlaps(r) {
		return fmt.Errorf("insert at %#x: collides with region at %#x: %w", r.Base, t.regions[idx-1].Base, ErrOverlap)
	}
	if idx < len(t.regions) && t.regions[idx].Overlaps(r) {
		return fmt.Errorf("insert at %#x: collides with region at %#x: %w", r.Base, t.regions[idx].Base, ErrOverlap)
	}

	t.regions = append(t.regions, Region{})
	copy(t.regions[idx+1:], t.regions[idx:])
	t.regions[idx] = r
	return nil
}

// FindContaining returns the region whose range holds addr.
func (t *Table) FindContaining(addr uint64) (Region, bool) {
	idx := t.indexContaining(addr)
	if idx < 0 {
		return Region{}, false
	}
	return t.regions[idx], true
}

// FindFreeRange returns the lowest page-aligned base at or above start
// with room for the requested page count.
func (t *Table) FindFreeRange(start, pages uint64) (uint64, bool) {
	length := pages * frame.PageSize
	base := start

	for _, r := range t.regions {
		if r.End() <= base {
			continue
		}
		if r.Base >= base+length {
			break
		}
		base = r.End()
	}
	if base+length < base {
		return 0, false // wrapped
	}
	return base, true
}

// CoverExact verifies that [base, base+pages) exactly matches one or
// more contiguous stored regions and returns their indices in order.
// Fails with ErrNotMapped on any gap, partial region, or missing edge.
func (t *Table) CoverExact(base, pages uint64) ([]int, error) {
	end := base + pages*frame.PageSize
	if pages == 0 || end <= base {
		return nil, fmt.Errorf("cover %#x (%d pages): %w", base, pages, ErrInvalidRegion)
	}

	start := t.search(base)
	if start >= len(t.regions) || t.regions[start].Base != base {
		return nil, fmt.Errorf("cover %#x (%d pages): no region starts at %#x: %w", base, pages, base, ErrNotMapped)
	}

	var idxs []int
	at := base
	for i := start; i < len(t.regions); i++ {
		if t.regions[i].Base != at {
			return nil, fmt.Errorf("cover %#x (%d pages): gap at %#x: %w", base, pages, at, ErrNotMapped)
		}
		idxs = append(idxs, i)
		at = t.regions[i].End()
		if at == end {
			return idxs, nil
		}
		if at > end {
			break
		}
	}
	return nil, fmt.Errorf("cover %#x (%d pages): range does not end on a region boundary: %w", base, pages, ErrNotMapped)
}

// SetPerms rewrites the permissions of the region at index idx.
func (t *Table) SetPerms(idx int, p Perm) {
	t.regions[idx].Perms = p
}

// Remove deletes [base, base+pages) from the table. The range must lie
// entirely within a single stored region: removing the whole region
// drops it, trimming an edge shrinks it, and carving a middle sub-range
// splits it into two regions that inherit permissions and backing (the
// tail's backing offset advances past the hole). Returns the removed
// sub-region. Fails with ErrNotMapped when any part of the range falls
// outside one region.
func (t *Table) Remove(base, pages uint64) (Region, error) {
	if pages == 0 || base%frame.PageSize != 0 {
		return Region{}, fmt.Errorf("remove %#x (%d pages): %w", base, pages, ErrInvalidRegion)
	}
	end := base + pages*frame.PageSize
	if end <= base {
		return Region{}, fmt.Errorf("remove %#x (%d pages): range wraps: %w", base, pages, ErrInvalidRegion)
	}

	idx := t.indexContaining(base)
	if idx < 0 {
		return Region{}, fmt.Errorf("remove %#x (%d pages): %w", base, pages, ErrNotMapped)
	}
	r := t.regions[idx]
	if end > r.End() {
		return Region{}, fmt.Errorf("remove %#x (%d pages): extends past region end %#x: %w", base, pages, r.End(), ErrNotMapped)
	}

	removed := Region{
		Base:    base,
		Pages:   pages,
		Perms:   r.Perms,
		Backing: offsetBacking(r.Backing, base-r.Base),
	}

	switch {
	case base == r.Base && end == r.End():
		// Whole region goes away.
		t.regions = append(t.regions[:idx], t.regions[idx+1:]...)

	case base == r.Base:
		// Trim the head.
		t.regions[idx].Base = end
		t.regions[idx].Pages -= pages
		t.regions[idx].Backing = offsetBacking(r.Backing, end-r.Base)

	case end == r.End():
		// Trim the tail.
		t.regions[idx].Pages -= pages

	default:
		// Carve the middle: left keeps the original backing, right
		// continues past the hole.
		left := Region{
			Base:    r.Base,
			Pages:   (base - r.Base) / frame.PageSize,
			Perms:   r.Perms,
			Backing: r.Backing,
		}
		right := Region{
			Base:    end,
			Pages:   (r.End() - end) / frame.PageSize,
			Perms:   r.Perms,
			Backing: offsetBacking(r.Backing, end-r.Base),
		}
		t.regions[idx] = left
		t.regions = append(t.regions, Region{})
		copy(t.regions[idx+2:], t.regions[idx+1:])
		t.regions[idx+1] = right
	}

	return removed, nil
}

// offsetBacking advances a backing descriptor by delta bytes. Anonymous
// backings carry no offset.
func offsetBacking(b Backing, delta uint64) Backing {
	if b.Kind == Anonymous {
		return b
	}
	b.Offset += delta
	return b
}

// search returns the index of the first region with Base >= addr.
func (t *Table) search(addr uint64) int {
	return sort.Search(len(t.regions), func(i int) bool {
		return t.regions[i].Base >= addr
	})
}

// indexContaining returns the index of the region holding addr, or -1.
func (t *Table) indexContaining(addr uint64) int {
	idx := t.search(addr)
	if idx < len(t.regions) && t.regions[idx].Base == addr {
		return idx
	}
	if idx > 0 && t.regions[idx-1].Contains(addr) {
		return idx - 1
	}
	return -1
}
