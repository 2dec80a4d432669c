package addrspace

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/frame"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/region"
)

// Manager errors, on top of the region table's.
var (
	// ErrPermission signals a request exceeding what the backing
	// source allows, or an access through insufficient permissions.
	ErrPermission = errors.New("permission denied")
)

// pte maps one virtual page to its physical frame. Pages flagged cow
// are duplicated before the first write goes through.
type pte struct {
	frame frame.Frame
	cow   bool
}

// Space is one virtual address space: an ordered region table plus the
// virtual-page to physical-frame map. All operations serialize on one
// mutex, which also makes permission updates atomic with respect to
// faults taken by other contexts sharing the space.
type Space struct {
	mu       sync.Mutex
	table    *region.Table
	pages    map[uint64]pte // keyed by virtual page number
	alloc    *frame.Allocator
	userBase uint64
	refs     uint32 // sharing contexts
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

// New creates an empty address space drawing frames from alloc.
// Mappings without a placement hint go at or above userBase.
func New(alloc *frame.Allocator, userBase uint64, log *logging.Logger) *Space {
	if log == nil {
		log = logging.NewNop()
	}
	return &Space{
		table:    region.NewTable(),
		pages:    make(map[uint64]pte),
		alloc:    alloc,
		userBase: userBase,
		refs:     1,
		log:      log.Named("mm"),
	}
}

// WithMetrics attaches a metrics collector.
func (s *Space) WithMetrics(m *monitoring.Metrics) *Space {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
	return s
}

// Map establishes a new region. A non-zero hint demands exact
// placement; hint zero places the region in the lowest free range at
// or above the user base. pages zero derives the count from a device
// backing's byte extent, rounded up to whole pages. Anonymous regions
// get zeroed frames eagerly; device pages fault in on first access.
// Returns the resolved base address.
func (s *Space) Map(hint, pages uint64, perms region.Perm, backing region.Backing) (uint64, error) {
	if hint%frame.PageSize != 0 {
		return 0, fmt.Errorf("mmap hint %#x: not page aligned: %w", hint, region.ErrInvalidRegion)
	}

	if backing.Kind == region.DeviceBacked {
		extent := backing.Source.ByteSize()
		if backing.Offset%frame.PageSize != 0 {
			return 0, fmt.Errorf("mmap: backing offset %#x not page aligned: %w", backing.Offset, region.ErrInvalidRegion)
		}
		if backing.Offset >= extent {
			return 0, fmt.Errorf("mmap: offset %#x beyond %s extent: %w", backing.Offset, backing.Label(), region.ErrInvalidRegion)
		}
		devPages := (extent - backing.Offset + frame.PageSize - 1) / frame.PageSize
		if pages == 0 {
			pages = devPages
		} else if pages > devPages {
			return 0, fmt.Errorf("mmap: %d pages beyond %s extent: %w", pages, backing.Label(), region.ErrInvalidRegion)
		}
	} else if pages == 0 {
		return 0, fmt.Errorf("mmap: zero pages without a backing source: %w", region.ErrInvalidRegion)
	}

	if !backing.MaxPerms().Has(perms) {
		return 0, fmt.Errorf("mmap: %s on %s backing: %w", perms, backing.Label(), ErrPermission)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := hint
	if base == 0 {
		var ok bool
		base, ok = s.table.FindFreeRange(s.userBase, pages)
		if !ok {
			return 0, fmt.Errorf("mmap: no free range for %d pages: %w", pages, frame.ErrOutOfMemory)
		}
	}

	r := region.Region{Base: base, Pages: pages, Perms: perms, Backing: backing}
	if err := s.table.Insert(r); err != nil {
		return 0, err
	}

	if backing.Kind == region.Anonymous {
		frames, err := s.alloc.Allocate(int(pages))
		if err != nil {
			// Roll the region back so the failed call leaves no trace.
			if _, rerr := s.table.Remove(base, pages); rerr != nil {
				s.log.Error("mmap rollback failed", zap.Error(rerr))
			}
			return 0, err
		}
		for i, f := range frames {
			s.pages[base/frame.PageSize+uint64(i)] = pte{frame: f}
		}
	}

	s.log.Debug("region mapped",
		zap.Uint64("base", base),
		zap.Uint64("pages", pages),
		zap.String("perms", perms.String()),
		zap.String("backing", backing.Label()))
	return base, nil
}

// Protect rewrites the permissions of [base, base+pages). The range
// must exactly cover one or more contiguous regions, and every covered
// region's backing must allow the new permissions; otherwise nothing
// changes.
func (s *Space) Protect(base, pages uint64, perms region.Perm) error {
	if base%frame.PageSize != 0 {
		return fmt.Errorf("mprotect %#x: not page aligned: %w", base, region.ErrInvalidRegion)
	}
	if pages == 0 {
		return fmt.Errorf("mprotect %#x: zero pages: %w", base, region.ErrInvalidRegion)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idxs, err := s.table.CoverExact(base, pages)
	if err != nil {
		return err
	}

	// Validate every region before touching any, so a denial leaves
	// permissions untouched across the whole range.
	regions := s.table.Regions()
	for _, idx := range idxs {
		if !regions[idx].Backing.MaxPerms().Has(perms) {
			return fmt.Errorf("mprotect %#x: %s exceeds %s backing: %w",
				base, perms, regions[idx].Backing.Label(), ErrPermission)
		}
	}
	for _, idx := range idxs {
		s.table.SetPerms(idx, perms)
	}

	s.log.Debug("region protected",
		zap.Uint64("base", base),
		zap.Uint64("pages", pages),
		zap.String("perms", perms.String()))
	return nil
}

// Unmap removes [base, base+pages) and releases the frames it held.
// Partial unmaps split the containing region per the table rules.
func (s *Space) Unmap(base, pages uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.table.Remove(base, pages); err != nil {
		return err
	}
	s.releaseRange(base, pages)

	s.log.Debug("region unmapped",
		zap.Uint64("base", base),
		zap.Uint64("pages", pages))
	return nil
}

// releaseRange drops the page table entries for [base, base+pages).
// Caller holds s.mu.
func (s *Space) releaseRange(base, pages uint64) {
	first := base / frame.PageSize
	for vpn := first; vpn < first+pages; vpn++ {
		entry, ok := s.pages[vpn]
		if !ok {
			continue // device page never faulted in
		}
		delete(s.pages, vpn)
		if _, err := s.alloc.Release(entry.frame); err != nil {
			s.log.Error("frame release failed", zap.Uint64("frame", uint64(entry.frame)), zap.Error(err))
		}
	}
}

// ReadAt copies len(p) bytes out of the space starting at addr,
// faulting pages in as needed. The whole range must be mapped with
// read permission; otherwise nothing is copied.
func (s *Space) ReadAt(p []byte, addr uint64) error {
	return s.access(p, addr, false)
}

// WriteAt copies p into the space starting at addr, faulting pages in
// and duplicating copy-on-write frames as needed. The whole range must
// be mapped with write permission; otherwise nothing is written.
func (s *Space) WriteAt(p []byte, addr uint64) error {
	return s.access(p, addr, true)
}

// Check verifies that [addr, addr+n) is fully mapped with read or
// write permission, without moving bytes or faulting pages in.
func (s *Space) Check(addr, n uint64, write bool) error {
	if n == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	need := region.Read
	if write {
		need = region.Write
	}
	return s.checkRangeLocked(addr, n, need)
}

// checkRangeLocked walks the region table across [addr, addr+n)
// demanding the given permission everywhere. Caller holds s.mu.
func (s *Space) checkRangeLocked(addr, n uint64, need region.Perm) error {
	end := addr + n
	if end < addr {
		return fmt.Errorf("access at %#x: range wraps: %w", addr, region.ErrInvalidRegion)
	}
	for at := addr; at < end; {
		r, ok := s.table.FindContaining(at)
		if !ok {
			return fmt.Errorf("access at %#x: %w", at, region.ErrNotMapped)
		}
		if !r.Perms.Has(need) {
			return fmt.Errorf("access at %#x: %s mapping lacks %s: %w", at, r.Perms, need, ErrPermission)
		}
		at = r.End()
	}
	return nil
}

func (s *Space) access(p []byte, addr uint64, write bool) error {
	if len(p) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Pass one: the whole range must be mapped with the right
	// permission before a single byte moves.
	need := region.Read
	if write {
		need = region.Write
	}
	if err := s.checkRangeLocked(addr, uint64(len(p)), need); err != nil {
		return err
	}
	end := addr + uint64(len(p))

	// Pass two: fault pages in and move the bytes.
	done := 0
	for at := addr; at < end; {
		r, _ := s.table.FindContaining(at)
		f, err := s.ensurePage(&r, at, write)
		if err != nil {
			return err
		}

		pageOff := at % frame.PageSize
		n := frame.PageSize - pageOff
		if remaining := end - at; n > remaining {
			n = remaining
		}

		data := s.alloc.Data(f)
		if write {
			copy(data[pageOff:pageOff+n], p[done:done+int(n)])
		} else {
			copy(p[done:done+int(n)], data[pageOff:pageOff+n])
		}
		done += int(n)
		at += n
	}
	return nil
}

// ensurePage returns the frame backing the page holding addr, faulting
// it in from the region's backing and resolving copy-on-write when the
// access is a write. Caller holds s.mu.
func (s *Space) ensurePage(r *region.Region, addr uint64, write bool) (frame.Frame, error) {
	vpn := addr / frame.PageSize

	entry, ok := s.pages[vpn]
	if !ok {
		// Lazy fault-in; only device regions leave holes.
		if r.Backing.Kind != region.DeviceBacked {
			return 0, fmt.Errorf("fault at %#x: anonymous page missing: %w", addr, region.ErrNotMapped)
		}
		srcOff := r.Backing.Offset + (vpn*frame.PageSize - r.Base)
		f, err := r.Backing.Source.ResolvePage(srcOff / frame.PageSize)
		if err != nil {
			return 0, fmt.Errorf("fault at %#x: %s: %w", addr, r.Backing.Label(), err)
		}
		if err := s.alloc.Retain(f); err != nil {
			return 0, err
		}
		entry = pte{frame: f}
		s.pages[vpn] = entry
		if s.metrics != nil {
			s.metrics.RecordPageFault("device")
		}
		return entry.frame, nil
	}

	if write && entry.cow {
		refs, err := s.alloc.Refs(entry.frame)
		if err != nil {
			return 0, err
		}
		if refs == 1 {
			// The other side already copied; the frame is ours alone.
			entry.cow = false
			s.pages[vpn] = entry
			return entry.frame, nil
		}

		frames, err := s.alloc.Allocate(1)
		if err != nil {
			return 0, err
		}
		copy(s.alloc.Data(frames[0]), s.alloc.Data(entry.frame))
		if _, err := s.alloc.Release(entry.frame); err != nil {
			s.log.Error("cow release failed", zap.Uint64("frame", uint64(entry.frame)), zap.Error(err))
		}
		entry = pte{frame: frames[0]}
		s.pages[vpn] = entry
		if s.metrics != nil {
			s.metrics.RecordCowCopy()
			s.metrics.RecordPageFault("cow")
		}
	}
	return entry.frame, nil
}

// Fork returns a private copy-on-write view of the space. Anonymous
// pages become copy-on-write on both sides; device pages stay shared,
// matching device-memory semantics. The two views race independently
// afterwards.
func (s *Space) Fork() (*Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	child := &Space{
		table:    s.table.Clone(),
		pages:    make(map[uint64]pte, len(s.pages)),
		alloc:    s.alloc,
		userBase: s.userBase,
		refs:     1,
		log:      s.log,
		metrics:  s.metrics,
	}

	for vpn, entry := range s.pages {
		if err := s.alloc.Retain(entry.frame); err != nil {
			// Roll back the references taken so far.
			for cvpn, centry := range child.pages {
				if _, rerr := s.alloc.Release(centry.frame); rerr != nil {
					s.log.Error("fork rollback failed", zap.Uint64("vpn", cvpn), zap.Error(rerr))
				}
			}
			return nil, err
		}

		r, ok := s.table.FindContaining(vpn * frame.PageSize)
		if ok && r.Backing.Kind == region.Anonymous {
			entry.cow = true
			s.pages[vpn] = entry
		}
		child.pages[vpn] = entry
	}
	return child, nil
}

// Acquire registers another context sharing this space.
func (s *Space) Acquire() *Space {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs++
	return s
}

// Release drops one sharing context. When the last one goes away the
// space tears down: every page entry is released and the region table
// cleared. Reports whether teardown happened.
func (s *Space) Release() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs > 0 {
		s.refs--
	}
	if s.refs > 0 {
		return false
	}

	for vpn, entry := range s.pages {
		if _, err := s.alloc.Release(entry.frame); err != nil {
			s.log.Error("teardown release failed", zap.Uint64("vpn", vpn), zap.Error(err))
		}
	}
	s.pages = make(map[uint64]pte)
	s.table = region.NewTable()
	return true
}

// Refs returns the number of contexts sharing the space.
func (s *Space) Refs() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// Regions returns a copy of the region table in base order.
func (s *Space) Regions() []region.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Regions()
}

// MappedPages returns the number of resident page table entries.
func (s *Space) MappedPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}
