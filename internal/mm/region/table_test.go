package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/frame"
)

const page = uint64(frame.PageSize)

// fakeSource is a minimal device backing for table tests.
type fakeSource struct {
	name  string
	bytes uint64
	caps  Perm
}

func (s *fakeSource) DeviceName() string { return s.name }
func (s *fakeSource) ByteSize() uint64   { return s.bytes }
func (s *fakeSource) Capability() Perm   { return s.caps }
func (s *fakeSource) ResolvePage(pageIdx uint64) (frame.Frame, error) {
	return frame.Frame(pageIdx), nil
}

func anonAt(base, pages uint64) Region {
	return Region{Base: base, Pages: pages, Perms: RW, Backing: Anon()}
}

func TestPermString(t *testing.T) {
	assert.Equal(t, "---", Perm(0).String())
	assert.Equal(t, "r--", Read.String())
	assert.Equal(t, "rw-", RW.String())
	assert.Equal(t, "rwx", (Read | Write | Exec).String())
	assert.Equal(t, "--x", Exec.String())
}

func TestPermHas(t *testing.T) {
	assert.True(t, RW.Has(Read))
	assert.True(t, RW.Has(RW))
	assert.False(t, Read.Has(Write))
	assert.False(t, RW.Has(Exec))
}

func TestBackingMaxPerms(t *testing.T) {
	assert.Equal(t, Read|Write|Exec, Anon().MaxPerms())

	ro := FromSource(&fakeSource{name: "rom", caps: Read}, 0)
	assert.Equal(t, Read, ro.MaxPerms())
}

func TestBackingLabel(t *testing.T) {
	assert.Equal(t, "anonymous", Anon().Label())
	assert.Equal(t, "device:fb", FromSource(&fakeSource{name: "fb"}, 0).Label())
}

func TestInsertKeepsOrder(t *testing.T) {
	tbl := NewTable()

	require.NoError(t, tbl.Insert(anonAt(3*page, 1)))
	require.NoError(t, tbl.Insert(anonAt(1*page, 1)))
	require.NoError(t, tbl.Insert(anonAt(5*page, 2)))

	regions := tbl.Regions()
	require.Len(t, regions, 3)
	assert.Equal(t, uint64(1*page), regions[0].Base)
	assert.Equal(t, uint64(3*page), regions[1].Base)
	assert.Equal(t, uint64(5*page), regions[2].Base)
}

func TestInsertRejectsOverlap(t *testing.T) {
	tests := []struct {
		name      string
		candidate Region
	}{
		{"identical", anonAt(4*page, 4)},
		{"head overlap", anonAt(2*page, 3)},
		{"tail overlap", anonAt(7*page, 3)},
		{"contained", anonAt(5*page, 1)},
		{"containing", anonAt(2*page, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := NewTable()
			require.NoError(t, tbl.Insert(anonAt(4*page, 4))) // [4p, 8p)

			err := tbl.Insert(tt.candidate)
			assert.ErrorIs(t, err, ErrOverlap)
			assert.Equal(t, 1, tbl.Len(), "failed insert must not change the table")
		})
	}
}

func TestInsertAllowsAdjacent(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Insert(anonAt(4*page, 4))) // [4p, 8p)

	assert.NoError(t, tbl.Insert(anonAt(2*page, 2))) // [2p, 4p) touches below
	assert.NoError(t, tbl.Insert(anonAt(8*page, 2))) // [8p, 10p) touches above
	assert.Equal(t, 3, tbl.Len())
}

func TestInsertRejectsMalformed(t *testing.T) {
	tbl := NewTable()

	err := tbl.Insert(anonAt(page, 0))
	assert.ErrorIs(t, err, ErrInvalidRegion)

	err = tbl.Insert(anonAt(page+1, 1))
	assert.ErrorIs(t, err, ErrInvalidRegion)
}

func TestFindContaining(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Insert(anonAt(4*page, 2))) // [4p, 6p)

	r, ok := tbl.FindContaining(4 * page)
	require.True(t, ok)
	assert.Equal(t, uint64(4*page), r.Base)

	r, ok = tbl.FindContaining(5*page + 123)
	require.True(t, ok)
	assert.Equal(t, uint64(4*page), r.Base)

	_, ok = tbl.FindContaining(6 * page) // end is exclusive
	assert.False(t, ok)

	_, ok = tbl.FindContaining(3 * page)
	assert.False(t, ok)
}

func TestFindFreeRange(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Insert(anonAt(4*page, 2))) // [4p, 6p)
	require.NoError(t, tbl.Insert(anonAt(8*page, 1))) // [8p, 9p)

	// Fits below the first region.
	base, ok := tbl.FindFreeRange(0, 4)
	require.True(t, ok)
	assert.Equal(t, uint64(0), base)

	// Too big for the first gap, lands between the regions.
	base, ok = tbl.FindFreeRange(4*page, 2)
	require.True(t, ok)
	assert.Equal(t, uint64(6*page), base)

	// Skips both regions.
	base, ok = tbl.FindFreeRange(4*page, 3)
	require.True(t, ok)
	assert.Equal(t, uint64(9*page), base)
}

func TestCoverExactSingleRegion(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Insert(anonAt(4*page, 4)))

	idxs, err := tbl.CoverExact(4*page, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, idxs)
}

func TestCoverExactContiguousRegions(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Insert(anonAt(4*page, 2))) // [4p, 6p)
	require.NoError(t, tbl.Insert(anonAt(6*page, 3))) // [6p, 9p)
	require.NoError(t, tbl.Insert(anonAt(9*page, 1))) // [9p, 10p)

	idxs, err := tbl.CoverExact(4*page, 6)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, idxs)

	idxs, err = tbl.CoverExact(6*page, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, idxs)
}

func TestCoverExactFailures(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Insert(anonAt(4*page, 2)))  // [4p, 6p)
	require.NoError(t, tbl.Insert(anonAt(8*page, 2)))  // [8p, 10p) gap before
	require.NoError(t, tbl.Insert(anonAt(10*page, 1))) // [10p, 11p)

	tests := []struct {
		name  string
		base  uint64
		pages uint64
	}{
		{"nothing mapped there", 0, 1},
		{"starts mid-region", 5 * page, 1},
		{"ends mid-region", 4 * page, 1},
		{"spans a gap", 4 * page, 6},
		{"runs past the last region", 10 * page, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tbl.CoverExact(tt.base, tt.pages)
			assert.ErrorIs(t, err, ErrNotMapped)
		})
	}
}

func TestRemoveWholeRegion(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Insert(anonAt(4*page, 4)))

	removed, err := tbl.Remove(4*page, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(4*page), removed.Base)
	assert.Equal(t, uint64(4), removed.Pages)
	assert.Equal(t, 0, tbl.Len())
}

func TestRemoveHead(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Insert(anonAt(4*page, 4))) // [4p, 8p)

	_, err := tbl.Remove(4*page, 1)
	require.NoError(t, err)

	regions := tbl.Regions()
	require.Len(t, regions, 1)
	assert.Equal(t, uint64(5*page), regions[0].Base)
	assert.Equal(t, uint64(3), regions[0].Pages)
}

func TestRemoveTail(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Insert(anonAt(4*page, 4))) // [4p, 8p)

	_, err := tbl.Remove(7*page, 1)
	require.NoError(t, err)

	regions := tbl.Regions()
	require.Len(t, regions, 1)
	assert.Equal(t, uint64(4*page), regions[0].Base)
	assert.Equal(t, uint64(3), regions[0].Pages)
}

func TestRemoveMiddleSplits(t *testing.T) {
	tbl := NewTable()
	src := &fakeSource{name: "fb", bytes: 8 * page, caps: RW}
	require.NoError(t, tbl.Insert(Region{
		Base:    4 * page,
		Pages:   6, // [4p, 10p)
		Perms:   Read,
		Backing: FromSource(src, 2*page),
	}))

	removed, err := tbl.Remove(6*page, 2) // hole [6p, 8p)
	require.NoError(t, err)
	assert.Equal(t, uint64(2*page+2*page), removed.Backing.Offset)

	regions := tbl.Regions()
	require.Len(t, regions, 2)

	left, right := regions[0], regions[1]
	assert.Equal(t, uint64(4*page), left.Base)
	assert.Equal(t, uint64(2), left.Pages)
	assert.Equal(t, Read, left.Perms)
	assert.Equal(t, uint64(2*page), left.Backing.Offset)

	assert.Equal(t, uint64(8*page), right.Base)
	assert.Equal(t, uint64(2), right.Pages)
	assert.Equal(t, Read, right.Perms)
	assert.Equal(t, src, right.Backing.Source)
	// Offset advanced past the original lead plus the removed hole.
	assert.Equal(t, uint64(2*page+4*page), right.Backing.Offset)
}

func TestRemoveMiddleAnonymousKeepsInheritance(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Insert(Region{Base: 4 * page, Pages: 3, Perms: Read | Exec, Backing: Anon()}))

	_, err := tbl.Remove(5*page, 1)
	require.NoError(t, err)

	regions := tbl.Regions()
	require.Len(t, regions, 2)
	for _, r := range regions {
		assert.Equal(t, Read|Exec, r.Perms)
		assert.Equal(t, Anonymous, r.Backing.Kind)
	}
}

func TestRemoveFailures(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Insert(anonAt(4*page, 2))) // [4p, 6p)
	require.NoError(t, tbl.Insert(anonAt(6*page, 2))) // [6p, 8p)

	tests := []struct {
		name  string
		base  uint64
		pages uint64
		want  error
	}{
		{"unmapped below", 0, 1, ErrNotMapped},
		{"unmapped above", 8 * page, 1, ErrNotMapped},
		{"spans two regions", 5 * page, 2, ErrNotMapped},
		{"runs past region end", 7 * page, 4, ErrNotMapped},
		{"zero pages", 4 * page, 0, ErrInvalidRegion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tbl.Remove(tt.base, tt.pages)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 2, tbl.Len(), "failed remove must not change the table")
		})
	}
}

func TestRemoveTwiceFails(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Insert(anonAt(4*page, 2)))

	_, err := tbl.Remove(4*page, 2)
	require.NoError(t, err)

	_, err = tbl.Remove(4*page, 2)
	assert.ErrorIs(t, err, ErrNotMapped)
}
