// Package region implements the per-address-space table of mapped
// virtual regions: ordered by base address, never overlapping, with
// permissions and a backing descriptor per region.
package region

import (
	"errors"
	"strings"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/frame"
)

// Table errors.
var (
	ErrOverlap       = errors.New("region overlaps existing mapping")
	ErrNotMapped     = errors.New("range not mapped")
	ErrInvalidRegion = errors.New("invalid region")
)

// Perm is a permission bit set for a mapped region.
type Perm uint8

const (
	Read  Perm = 1 << iota // 1
	Write                  // 2
	Exec                   // 4
)

// RW is the default permission set for fresh mappings.
const RW = Read | Write

// Has reports whether p includes every bit of q.
func (p Perm) Has(q Perm) bool {
	return p&q == q
}

// String renders the set in ls -l style, e.g. "rw-".
func (p Perm) String() string {
	var b strings.Builder
	if p.Has(Read) {
		b.WriteByte('r')
	} else {
		b.WriteByte('-')
	}
	if p.Has(Write) {
		b.WriteByte('w')
	} else {
		b.WriteByte('-')
	}
	if p.Has(Exec) {
		b.WriteByte('x')
	} else {
		b.WriteByte('-')
	}
	return b.String()
}

// Source backs device regions. Implementations resolve pages to
// device-owned physical frames on fault-in.
type Source interface {
	// DeviceName identifies the source in diagnostics ("fb").
	DeviceName() string
	// ByteSize is the source's declared extent in bytes. Zero-length
	// mapping requests derive their page count from it.
	ByteSize() uint64
	// Capability is the widest permission set the source allows.
	Capability() Perm
	// ResolvePage returns the frame backing the page at byte offset
	// pageIdx*PageSize within the source.
	ResolvePage(pageIdx uint64) (frame.Frame, error)
}

// BackingKind tags the backing descriptor variant.
type BackingKind uint8

const (
	// Anonymous regions are zero-filled from the frame pool.
	Anonymous BackingKind = iota
	// DeviceBacked regions resolve pages through a Source.
	DeviceBacked
)

// Backing describes where a region's pages come from.
type Backing struct {
	Kind   BackingKind
	Source Source // nil for anonymous regions
	Offset uint64 // byte offset into Source at the region's base
}

// Anon returns an anonymous zero-fill backing.
func Anon() Backing {
	return Backing{Kind: Anonymous}
}

// FromSource returns a device backing rooted at the given byte offset.
func FromSource(src Source, offset uint64) Backing {
	return Backing{Kind: DeviceBacked, Source: src, Offset: offset}
}

// MaxPerms is the widest permission set the backing allows. Anonymous
// memory allows everything; devices decide for themselves.
func (b Backing) MaxPerms() Perm {
	if b.Kind == Anonymous {
		return Read | Write | Exec
	}
	return b.Source.Capability()
}

// Label names the backing for diagnostics.
func (b Backing) Label() string {
	if b.Kind == Anonymous {
		return "anonymous"
	}
	return "device:" + b.Source.DeviceName()
}

// Region is one contiguous virtual mapping.
type Region struct {
	Base    uint64 // page aligned
	Pages   uint64 // >= 1
	Perms   Perm
	Backing Backing
}

// End returns the first address past the region.
func (r Region) End() uint64 {
	return r.Base + r.Pages*frame.PageSize
}

// Contains reports whether addr falls inside the region.
func (r Region) Contains(addr uint64) bool {
	return addr >= r.Base && addr < r.End()
}

// Overlaps reports whether two regions share any page.
func (r Region) Overlaps(o Region) bool {
	return r.Base < o.End() && o.Base < r.End()
}

func (r Region) valid() bool {
	return r.Pages >= 1 && r.Base%frame.PageSize == 0 && r.Base+r.Pages*frame.PageSize > r.Base
}
