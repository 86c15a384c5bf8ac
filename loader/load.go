package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/YuzukiHD/SyterKit/core"
)

// Config file names, tried in order. FAT volumes without long names only
// expose the short form.
var ConfigFiles = []string{"config.toml", "CONFIG~1.TOM"}

// MaxConfigSize is the largest config file accepted, exclusive
const MaxConfigSize = 1024

// MaxLoadErrors caps the failures kept from one load
const MaxLoadErrors = 5

var (
	ErrNotEnoughSpace = errors.New("not enough space")
	ErrNoFirmware     = errors.New("no firmware loaded")
	ErrNoConfig       = errors.New("no config file")
)

// FileError is a failure loading one named file
type FileError struct {
	Name string
	Err  error
}

func (e *FileError) Error() string {
	return e.Name + ": " + e.Err.Error()
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// LoadErrors collects per-file failures. Loading continues past a
// failed file so every problem on the card is reported at once.
type LoadErrors struct {
	Errs    []error
	Dropped int
}

func (e *LoadErrors) add(err error) {
	if len(e.Errs) >= MaxLoadErrors {
		e.Dropped++
		return
	}
	e.Errs = append(e.Errs, err)
}

func (e *LoadErrors) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	s := "load: " + strings.Join(msgs, "; ")
	if e.Dropped > 0 {
		s += fmt.Sprintf(" (and %d more)", e.Dropped)
	}
	return s
}

func (e *LoadErrors) Unwrap() []error {
	return e.Errs
}

// Bundle holds the files read from a boot volume
type Bundle struct {
	Config    *BootConfig
	Firmware  []byte
	Opaque    []byte
	NextStage []byte
}

// Loader reads boot images from a filesystem
type Loader struct {
	FS     fs.FS
	Layout Layout
	Logger *slog.Logger
}

func (l *Loader) debug(msg string, attrs ...slog.Attr) {
	if core.Enabled(l.Logger, slog.LevelDebug) {
		l.Logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
	}
}

func (l *Loader) info(msg string, attrs ...slog.Attr) {
	if core.Enabled(l.Logger, slog.LevelInfo) {
		l.Logger.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)
	}
}

// Load reads the boot config and images from fsys into a Bundle. cfg
// receives the parsed config.
func Load(fsys fs.FS, cfg *BootConfig, layout Layout) (*Bundle, error) {
	l := &Loader{FS: fsys, Layout: layout}
	return l.Load(cfg)
}

// Load reads the config, then the firmware, opaque and next stage
// images. A config that fails to parse stops the load; any other
// failure is collected and the remaining files are still read. The
// returned bundle is valid alongside a *LoadErrors.
func (l *Loader) Load(cfg *BootConfig) (*Bundle, error) {
	var errs LoadErrors

	parsed, err := l.ReadConfig()
	if parsed == nil {
		return nil, err
	}
	if err != nil {
		errs.add(err)
	}
	if cfg != nil {
		*cfg = *parsed
	}
	b := &Bundle{Config: parsed}

	b.Firmware, err = l.readInto(parsed.Firmware, l.Layout.Firmware)
	if err != nil {
		errs.add(err)
	}
	if parsed.Opaque != "" {
		if b.Opaque, err = l.readInto(parsed.Opaque, l.Layout.Opaque); err != nil {
			errs.add(err)
		}
	}
	if parsed.NextStage.Path != "" {
		if b.NextStage, err = l.readInto(parsed.NextStage.Path, l.Layout.NextStage); err != nil {
			errs.add(err)
		}
	}

	if len(errs.Errs) > 0 {
		return b, &errs
	}
	return b, nil
}

// ReadConfig parses the boot config alone. A missing or oversized file
// yields the defaults along with the error; a parse failure yields nil.
func (l *Loader) ReadConfig() (*BootConfig, error) {
	cfg, err := l.loadConfig()
	if errors.Is(err, ErrNoConfig) || errors.Is(err, ErrNotEnoughSpace) {
		return DefaultConfig(), err
	}
	return cfg, err
}

func (l *Loader) loadConfig() (*BootConfig, error) {
	for _, name := range ConfigFiles {
		data, err := l.read(name, MaxConfigSize)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		l.debug("boot config", slog.String("file", name), slog.Int("len", len(data)))
		return ParseConfig(data)
	}
	return nil, fmt.Errorf("%w: tried %s", ErrNoConfig, strings.Join(ConfigFiles, ", "))
}

func (l *Loader) readInto(name string, slot core.Window) ([]byte, error) {
	data, err := l.read(name, slot.Size)
	if err != nil {
		return nil, err
	}
	l.info("loaded",
		slog.String("file", name),
		slog.String("slot", slot.Name),
		slog.Uint64("addr", uint64(slot.Base)),
		slog.Int("len", len(data)))
	return data, nil
}

// read loads name whole, failing when its size reaches limit
func (l *Loader) read(name string, limit uint32) ([]byte, error) {
	f, err := l.FS.Open(name)
	if err != nil {
		return nil, &FileError{Name: name, Err: err}
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, &FileError{Name: name, Err: err}
	}
	if st.IsDir() {
		return nil, &FileError{Name: name, Err: fs.ErrInvalid}
	}
	if st.Size() >= int64(limit) {
		return nil, &FileError{
			Name: name,
			Err:  fmt.Errorf("%w: %d bytes, slot holds %d", ErrNotEnoughSpace, st.Size(), limit),
		}
	}

	data := make([]byte, st.Size())
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, &FileError{Name: name, Err: err}
	}
	return data, nil
}
