package boot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Profile describes the machine the kernel boots on. Zero values fall
// back to defaults, so partial profiles are fine.
type Profile struct {
	// MemoryMB overrides the configured physical memory size when > 0.
	MemoryMB int `json:"memory_mb" yaml:"memory_mb" toml:"memory_mb"`

	// UserBase overrides the default user mapping base when > 0.
	UserBase uint64 `json:"user_base" yaml:"user_base" toml:"user_base"`

	Framebuffer Framebuffer `json:"framebuffer" yaml:"framebuffer" toml:"framebuffer"`
	Serial      Serial      `json:"serial" yaml:"serial" toml:"serial"`

	// Fifos are channel names created before the first context runs.
	Fifos []string `json:"fifos" yaml:"fifos" toml:"fifos"`
}

// Framebuffer describes the display device geometry.
type Framebuffer struct {
	Enabled       bool `json:"enabled" yaml:"enabled" toml:"enabled"`
	Width         int  `json:"width" yaml:"width" toml:"width"`
	Height        int  `json:"height" yaml:"height" toml:"height"`
	BytesPerPixel int  `json:"bytes_per_pixel" yaml:"bytes_per_pixel" toml:"bytes_per_pixel"`
}

// Serial describes the serial console.
type Serial struct {
	// Pty attaches the console to a host pseudo-terminal so an
	// operator can watch kernel output with a terminal program.
	Pty bool `json:"pty" yaml:"pty" toml:"pty"`
}

// Default returns the built-in machine profile: 1024x768 32-bit
// framebuffer, plain serial console, no preregistered channels.
func Default() *Profile {
	return &Profile{
		Framebuffer: Framebuffer{
			Enabled:       true,
			Width:         1024,
			Height:        768,
			BytesPerPixel: 4,
		},
		Serial: Serial{Pty: false},
	}
}

// Load reads a machine profile from path, selecting the parser by file
// extension (.yaml/.yml, .toml, .json).
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	p := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("parse YAML profile: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("parse TOML profile: %w", err)
		}
	case ".json":
		if err := sonic.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("parse JSON profile: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported profile format: %s", filepath.Ext(path))
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadOrDefault loads the profile at path, or returns the built-in
// profile when path is empty.
func LoadOrDefault(path string) (*Profile, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks profile consistency.
func (p *Profile) Validate() error {
	if p.MemoryMB < 0 {
		return fmt.Errorf("memory_mb must be non-negative, got %d", p.MemoryMB)
	}
	if p.Framebuffer.Enabled {
		fb := p.Framebuffer
		if fb.Width <= 0 || fb.Height <= 0 {
			return fmt.Errorf("framebuffer geometry must be positive, got %dx%d", fb.Width, fb.Height)
		}
		switch fb.BytesPerPixel {
		case 1, 2, 4:
		default:
			return fmt.Errorf("framebuffer bytes_per_pixel must be 1, 2 or 4, got %d", fb.BytesPerPixel)
		}
	}
	for _, name := range p.Fifos {
		if !strings.HasPrefix(name, "/") {
			return fmt.Errorf("fifo name must be absolute, got %q", name)
		}
	}
	return nil
}

// FramebufferBytes returns the framebuffer byte extent, 0 when disabled.
func (p *Profile) FramebufferBytes() uint64 {
	if !p.Framebuffer.Enabled {
		return 0
	}
	fb := p.Framebuffer
	return uint64(fb.Width) * uint64(fb.Height) * uint64(fb.BytesPerPixel)
}
