package dev

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/frame"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/region"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/shared/types"
)

var (
	ErrExists   = errors.New("device already registered")
	ErrNotFound = errors.New("device not found")
)

// Device is one kernel device reachable through the namespace. Read
// and Write serve descriptor I/O.
type Device interface {
	Name() string
	Path() string
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// Mappable is a Device whose memory can back regions directly.
type Mappable interface {
	Device
	region.Source
}

// Registry resolves device paths. Devices are registered once at boot
// and live until shutdown.
type Registry struct {
	mu     sync.RWMutex
	byPath map[string]Device
	log    *logging.Logger
}

func NewRegistry(log *logging.Logger) *Registry {
	if log == nil {
		log = logging.NewNop()
	}
	return &Registry{
		byPath: make(map[string]Device),
		log:    log.Named("dev"),
	}
}

// Register adds a device under its path.
func (r *Registry) Register(d Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byPath[d.Path()]; ok {
		return fmt.Errorf("%s: %w", d.Path(), ErrExists)
	}
	r.byPath[d.Path()] = d
	r.log.Info("device registered", zap.String("name", d.Name()), zap.String("path", d.Path()))
	return nil
}

// Resolve looks a device up by path.
func (r *Registry) Resolve(path string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byPath[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return d, nil
}

// List returns snapshots of every device ordered by path.
func (r *Registry) List() []types.DeviceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.DeviceInfo, 0, len(r.byPath))
	for _, d := range r.byPath {
		info := types.DeviceInfo{Name: d.Name(), Path: d.Path()}
		if m, ok := d.(Mappable); ok {
			info.Mappable = true
			info.Bytes = m.ByteSize()
			info.Pages = (m.ByteSize() + frame.PageSize - 1) / frame.PageSize
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
