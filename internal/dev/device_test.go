package dev

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/frame"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/region"
)

func TestNullDevice(t *testing.T) {
	n := NewNull()

	buf := make([]byte, 8)
	read, err := n.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, read)

	wrote, err := n.Write([]byte("discarded"))
	require.NoError(t, err)
	assert.Equal(t, 9, wrote)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(nil)

	require.NoError(t, r.Register(NewNull()))
	assert.ErrorIs(t, r.Register(NewNull()), ErrExists)

	d, err := r.Resolve("/dev/null")
	require.NoError(t, err)
	assert.Equal(t, "null", d.Name())

	_, err = r.Resolve("/dev/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryListMarksMappable(t *testing.T) {
	alloc, err := frame.New(16, nil)
	require.NoError(t, err)
	fb, err := NewFramebuffer(alloc, 32, 32, 4, nil)
	require.NoError(t, err)

	r := NewRegistry(nil)
	require.NoError(t, r.Register(NewNull()))
	require.NoError(t, r.Register(fb))

	list := r.List()
	require.Len(t, list, 2)

	// Ordered by path: /dev/fb before /dev/null.
	assert.Equal(t, "/dev/fb", list[0].Path)
	assert.True(t, list[0].Mappable)
	assert.Equal(t, uint64(32*32*4), list[0].Bytes)
	assert.Equal(t, uint64(1), list[0].Pages)

	assert.Equal(t, "/dev/null", list[1].Path)
	assert.False(t, list[1].Mappable)
	assert.Zero(t, list[1].Bytes)
}

func TestFramebufferGeometry(t *testing.T) {
	alloc, err := frame.New(1024, nil)
	require.NoError(t, err)

	fb, err := NewFramebuffer(alloc, 1024, 768, 4, nil)
	require.NoError(t, err)

	// 1024*768*4 bytes is exactly 768 pages.
	assert.Equal(t, uint64(1024*768*4), fb.ByteSize())
	assert.Equal(t, uint64(1024-768), alloc.FreeCount())

	_, err = fb.ResolvePage(767)
	assert.NoError(t, err)
	_, err = fb.ResolvePage(768)
	assert.Error(t, err)

	assert.Equal(t, region.RW, fb.Capability())
	assert.Equal(t, "fb", fb.DeviceName())
}

func TestFramebufferRejectsBadGeometry(t *testing.T) {
	alloc, err := frame.New(16, nil)
	require.NoError(t, err)

	for _, dims := range [][3]int{{0, 32, 4}, {32, 0, 4}, {32, 32, 0}, {-1, 32, 4}} {
		_, err := NewFramebuffer(alloc, dims[0], dims[1], dims[2], nil)
		assert.Error(t, err, "geometry %v", dims)
	}
	assert.Equal(t, uint64(16), alloc.FreeCount(), "rejected geometry must not hold frames")
}

func TestFramebufferPixelRoundTrip(t *testing.T) {
	alloc, err := frame.New(16, nil)
	require.NoError(t, err)
	fb, err := NewFramebuffer(alloc, 64, 64, 4, nil)
	require.NoError(t, err)

	pixel := make([]byte, 4)
	binary.LittleEndian.PutUint32(pixel, 0xFFFFFFFF)
	n, err := fb.Write(pixel)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got := make([]byte, 4)
	n, err = fb.Read(got)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, uint32(0xFFFFFFFF), binary.LittleEndian.Uint32(got))
}

func TestFramebufferSpansFrames(t *testing.T) {
	alloc, err := frame.New(16, nil)
	require.NoError(t, err)
	// 64*64*4 = 16 KiB, four frames.
	fb, err := NewFramebuffer(alloc, 64, 64, 4, nil)
	require.NoError(t, err)

	payload := make([]byte, 3*frame.PageSize+100)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	n, err := fb.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	got := make([]byte, len(payload))
	n, err = fb.Read(got)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	assert.Equal(t, payload, got)
}

func TestFramebufferTruncatesAtExtent(t *testing.T) {
	alloc, err := frame.New(16, nil)
	require.NoError(t, err)
	// 16*16*4 = 1 KiB in a single frame.
	fb, err := NewFramebuffer(alloc, 16, 16, 4, nil)
	require.NoError(t, err)

	big := make([]byte, 4096)
	n, err := fb.Write(big)
	require.NoError(t, err)
	assert.Equal(t, 1024, n)

	n, err = fb.Read(big)
	require.NoError(t, err)
	assert.Equal(t, 1024, n)
}

func TestSerialSinkAndSource(t *testing.T) {
	var out bytes.Buffer
	s := NewSerialWith(strings.NewReader("boot"), &out)

	n, err := s.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "hello\n", out.String())

	buf := make([]byte, 8)
	n, err = s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "boot", string(buf[:n]))

	// Exhausted input reads as empty, not as an error.
	n, err = s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSerialWithoutEndpoints(t *testing.T) {
	s := NewSerialWith(nil, nil)

	n, err := s.Read(make([]byte, 4))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.Write([]byte("void"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSerialPty(t *testing.T) {
	s, err := NewSerialPty(nil)
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	defer s.Close()

	assert.NotEmpty(t, s.TtyPath())
	_, err = s.Write([]byte("console up\n"))
	assert.NoError(t, err)

	require.NoError(t, s.Close())
	assert.Empty(t, s.TtyPath())
}
