package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/shared/types"
)

// Dumper writes compressed kernel state captures to a directory.
type Dumper struct {
	dir string
	log *logging.Logger
}

// New creates a dumper rooted at dir. The directory is created on the
// first dump, not here, so a kernel that never dumps never touches it.
func New(dir string, log *logging.Logger) *Dumper {
	if log == nil {
		log = logging.NewNop()
	}
	return &Dumper{dir: dir, log: log.Named("diag")}
}

// Dump persists one snapshot as zstd-compressed JSON and returns the
// file path.
func (d *Dumper) Dump(snap types.KernelSnapshot) (string, error) {
	data, err := sonic.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("dump dir: %w", err)
	}
	path := filepath.Join(d.dir, fmt.Sprintf("%s.json.zst", id.NewDumpID()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create dump: %w", err)
	}

	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return "", fmt.Errorf("zstd: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		f.Close()
		return "", fmt.Errorf("write dump: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return "", fmt.Errorf("flush dump: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close dump: %w", err)
	}

	d.log.Info("State dumped",
		zap.String("path", path),
		zap.String("boot_id", snap.BootID),
		zap.Int("raw_bytes", len(data)),
	)
	return path, nil
}

// Load reads a dump back, for inspection tooling and tests.
func Load(path string) (types.KernelSnapshot, error) {
	var snap types.KernelSnapshot

	f, err := os.Open(path)
	if err != nil {
		return snap, fmt.Errorf("open dump: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, fmt.Errorf("zstd: %w", err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return snap, fmt.Errorf("read dump: %w", err)
	}
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decode dump: %w", err)
	}
	return snap, nil
}
