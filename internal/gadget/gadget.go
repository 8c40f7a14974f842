// Package gadget assembles the composite USB gadget through configfs: one
// UVC function per stream plus an ACM function for the command channel. The
// builder writes the same tree the kernel uvc and acm gadget functions
// expect, then binds the gadget to a UDC.
package gadget

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/smazurov/uvcbridge/internal/logging"
	"github.com/smazurov/uvcbridge/internal/uvc"
)

// Filesystem roots, overridable for tests through NewBuilder.
const (
	DefaultConfigFS = "/sys/kernel/config/usb_gadget"
	DefaultUDCClass = "/sys/class/udc"
)

// Config describes the gadget to assemble.
type Config struct {
	// Name is the gadget directory name under the configfs root.
	Name string

	VendorID     string
	ProductID    string
	Manufacturer string
	Product      string
	Serial       string

	// MaxPacket is the streaming endpoint packet size. Zero means 1024.
	MaxPacket int

	// Streams lists the frame catalogs, one UVC function per entry.
	Streams [][]uvc.FrameDesc

	// WithACM adds the serial function.
	WithACM bool
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "uvcbridge"
	}
	if c.VendorID == "" {
		c.VendorID = "0x1d6b" // Linux Foundation
	}
	if c.ProductID == "" {
		c.ProductID = "0x0104" // Multifunction composite gadget
	}
	if c.Manufacturer == "" {
		c.Manufacturer = "uvcbridge"
	}
	if c.Product == "" {
		c.Product = "UVC Bridge"
	}
	if c.MaxPacket == 0 {
		c.MaxPacket = 1024
	}
}

// Builder writes gadget trees under a configfs root.
type Builder struct {
	root     string
	udcClass string
	logger   *slog.Logger
}

// NewBuilder creates a builder rooted at the given configfs path. Empty
// arguments select the kernel defaults.
func NewBuilder(root, udcClass string, logger *slog.Logger) *Builder {
	if root == "" {
		root = DefaultConfigFS
	}
	if udcClass == "" {
		udcClass = DefaultUDCClass
	}
	if logger == nil {
		logger = logging.GetLogger("gadget")
	}
	return &Builder{root: root, udcClass: udcClass, logger: logger}
}

// Create assembles the full gadget tree. The gadget is left unbound; call
// Bind to attach it to a controller.
func (b *Builder) Create(cfg Config) error {
	cfg.applyDefaults()
	if len(cfg.Streams) == 0 {
		return fmt.Errorf("gadget needs at least one stream")
	}
	if len(cfg.Streams) > uvc.MaxStreams {
		return fmt.Errorf("gadget supports at most %d streams, got %d", uvc.MaxStreams, len(cfg.Streams))
	}

	base := filepath.Join(b.root, cfg.Name)
	if err := os.MkdirAll(base, 0755); err != nil {
		return fmt.Errorf("failed to create gadget directory: %w", err)
	}

	attrs := map[string]string{
		"idVendor":  cfg.VendorID,
		"idProduct": cfg.ProductID,
		"bcdDevice": "0x0100",
		"bcdUSB":    "0x0200",
	}
	for name, value := range attrs {
		if err := write(filepath.Join(base, name), value); err != nil {
			return err
		}
	}

	strDir := filepath.Join(base, "strings", "0x409")
	if err := os.MkdirAll(strDir, 0755); err != nil {
		return fmt.Errorf("failed to create strings directory: %w", err)
	}
	if err := write(filepath.Join(strDir, "serialnumber"), cfg.Serial); err != nil {
		return err
	}
	if err := write(filepath.Join(strDir, "manufacturer"), cfg.Manufacturer); err != nil {
		return err
	}
	if err := write(filepath.Join(strDir, "product"), cfg.Product); err != nil {
		return err
	}

	confDir := filepath.Join(base, "configs", "c.1")
	confStrDir := filepath.Join(confDir, "strings", "0x409")
	if err := os.MkdirAll(confStrDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := write(filepath.Join(confDir, "MaxPower"), "250"); err != nil {
		return err
	}
	if err := write(filepath.Join(confStrDir, "configuration"), "UVC+CDC"); err != nil {
		return err
	}

	for i, catalog := range cfg.Streams {
		if err := b.createUVCFunction(base, confDir, i, catalog, cfg.MaxPacket); err != nil {
			return err
		}
	}

	if cfg.WithACM {
		fnDir := filepath.Join(base, "functions", "acm.usb0")
		if err := os.MkdirAll(fnDir, 0755); err != nil {
			return fmt.Errorf("failed to create acm function: %w", err)
		}
		if err := os.Symlink(fnDir, filepath.Join(confDir, "acm.usb0")); err != nil && !os.IsExist(err) {
			return fmt.Errorf("failed to link acm function: %w", err)
		}
	}

	b.logger.Info("gadget tree created",
		"name", cfg.Name, "streams", len(cfg.Streams), "acm", cfg.WithACM)
	return nil
}

func (b *Builder) createUVCFunction(base, confDir string, index int, catalog []uvc.FrameDesc, maxPacket int) error {
	if len(catalog) == 0 {
		return fmt.Errorf("stream %d has an empty frame catalog", index)
	}
	fnName := fmt.Sprintf("uvc.usb%d", index)
	fnDir := filepath.Join(base, "functions", fnName)

	ctrlHeader := filepath.Join(fnDir, "control", "header", "h")
	if err := os.MkdirAll(ctrlHeader, 0755); err != nil {
		return fmt.Errorf("failed to create control header: %w", err)
	}
	for _, speed := range []string{"fs", "ss"} {
		classDir := filepath.Join(fnDir, "control", "class", speed)
		if err := os.MkdirAll(classDir, 0755); err != nil {
			return fmt.Errorf("failed to create control class: %w", err)
		}
		if err := os.Symlink(ctrlHeader, filepath.Join(classDir, "h")); err != nil && !os.IsExist(err) {
			return fmt.Errorf("failed to link control header: %w", err)
		}
	}

	if err := write(filepath.Join(fnDir, "streaming_maxpacket"), fmt.Sprintf("%d", maxPacket)); err != nil {
		return err
	}

	mjpegDir := filepath.Join(fnDir, "streaming", "mjpeg", "m")
	if err := os.MkdirAll(mjpegDir, 0755); err != nil {
		return fmt.Errorf("failed to create mjpeg format: %w", err)
	}
	for _, desc := range catalog {
		if err := writeFrameDesc(mjpegDir, desc); err != nil {
			return err
		}
	}

	streamHeader := filepath.Join(fnDir, "streaming", "header", "h")
	if err := os.MkdirAll(streamHeader, 0755); err != nil {
		return fmt.Errorf("failed to create streaming header: %w", err)
	}
	if err := os.Symlink(mjpegDir, filepath.Join(streamHeader, "m")); err != nil && !os.IsExist(err) {
		return fmt.Errorf("failed to link mjpeg format: %w", err)
	}
	for _, speed := range []string{"fs", "hs", "ss"} {
		classDir := filepath.Join(fnDir, "streaming", "class", speed)
		if err := os.MkdirAll(classDir, 0755); err != nil {
			return fmt.Errorf("failed to create streaming class: %w", err)
		}
		if err := os.Symlink(streamHeader, filepath.Join(classDir, "h")); err != nil && !os.IsExist(err) {
			return fmt.Errorf("failed to link streaming header: %w", err)
		}
	}

	if err := os.Symlink(fnDir, filepath.Join(confDir, fnName)); err != nil && !os.IsExist(err) {
		return fmt.Errorf("failed to link uvc function: %w", err)
	}
	return nil
}

func writeFrameDesc(mjpegDir string, desc uvc.FrameDesc) error {
	frameDir := filepath.Join(mjpegDir, fmt.Sprintf("%dx%d", desc.Width, desc.Height))
	if err := os.MkdirAll(frameDir, 0755); err != nil {
		return fmt.Errorf("failed to create frame descriptor: %w", err)
	}

	interval := 10000000 / desc.FrameRate // 100ns units
	bitrate := desc.Width * desc.Height * desc.FrameRate * 16

	values := map[string]string{
		"wWidth":                    fmt.Sprintf("%d", desc.Width),
		"wHeight":                   fmt.Sprintf("%d", desc.Height),
		"dwFrameInterval":           fmt.Sprintf("%d", interval),
		"dwDefaultFrameInterval":    fmt.Sprintf("%d", interval),
		"dwMinBitRate":              fmt.Sprintf("%d", bitrate),
		"dwMaxBitRate":              fmt.Sprintf("%d", bitrate),
		"dwMaxVideoFrameBufferSize": fmt.Sprintf("%d", desc.Width*desc.Height*2),
	}
	for name, value := range values {
		if err := write(filepath.Join(frameDir, name), value); err != nil {
			return err
		}
	}
	return nil
}

// Bind attaches the gadget to a UDC. An empty udc picks the first controller
// the kernel exposes.
func (b *Builder) Bind(name, udc string) error {
	if udc == "" {
		first, err := b.FirstUDC()
		if err != nil {
			return err
		}
		udc = first
	}
	if err := write(filepath.Join(b.root, name, "UDC"), udc); err != nil {
		return err
	}
	b.logger.Info("gadget bound", "name", name, "udc", udc)
	return nil
}

// Unbind detaches the gadget from its controller. The tree stays in place.
func (b *Builder) Unbind(name string) error {
	if err := write(filepath.Join(b.root, name, "UDC"), ""); err != nil {
		return err
	}
	b.logger.Info("gadget unbound", "name", name)
	return nil
}

// FirstUDC returns the first UDC the kernel exposes.
func (b *Builder) FirstUDC() (string, error) {
	entries, err := os.ReadDir(b.udcClass)
	if err != nil {
		return "", fmt.Errorf("failed to list UDCs: %w", err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no UDC available under %s", b.udcClass)
	}
	return entries[0].Name(), nil
}

// ACMPortPath resolves the tty node of the gadget's serial function.
func (b *Builder) ACMPortPath(name string) (string, error) {
	portFile := filepath.Join(b.root, name, "functions", "acm.usb0", "port_num")
	data, err := os.ReadFile(portFile)
	if err != nil {
		return "", fmt.Errorf("failed to read acm port number: %w", err)
	}
	return "/dev/ttyGS" + strings.TrimSpace(string(data)), nil
}

// Destroy tears the gadget tree down in reverse creation order. Missing
// pieces are skipped, so a partially created gadget still cleans up.
func (b *Builder) Destroy(name string) error {
	base := filepath.Join(b.root, name)
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return nil
	}

	// Unbinding first; on real configfs a bound gadget cannot be removed.
	_ = write(filepath.Join(base, "UDC"), "")

	confDir := filepath.Join(base, "configs", "c.1")
	if entries, err := os.ReadDir(confDir); err == nil {
		for _, entry := range entries {
			if entry.Type()&os.ModeSymlink != 0 {
				os.Remove(filepath.Join(confDir, entry.Name()))
			}
		}
	}
	removeDir(filepath.Join(confDir, "strings", "0x409"))
	removeDir(filepath.Join(confDir, "strings"))
	removeDir(confDir)
	removeDir(filepath.Join(base, "configs"))

	fnRoot := filepath.Join(base, "functions")
	if entries, err := os.ReadDir(fnRoot); err == nil {
		for _, entry := range entries {
			removeFunction(filepath.Join(fnRoot, entry.Name()))
		}
	}
	removeDir(fnRoot)

	removeDir(filepath.Join(base, "strings", "0x409"))
	removeDir(filepath.Join(base, "strings"))
	if err := removeDir(base); err != nil {
		return fmt.Errorf("failed to remove gadget: %w", err)
	}
	b.logger.Info("gadget destroyed", "name", name)
	return nil
}

func removeFunction(fnDir string) {
	for _, speed := range []string{"fs", "hs", "ss"} {
		os.Remove(filepath.Join(fnDir, "streaming", "class", speed, "h"))
		removeDir(filepath.Join(fnDir, "streaming", "class", speed))
		os.Remove(filepath.Join(fnDir, "control", "class", speed, "h"))
		removeDir(filepath.Join(fnDir, "control", "class", speed))
	}
	removeDir(filepath.Join(fnDir, "streaming", "class"))
	removeDir(filepath.Join(fnDir, "control", "class"))

	streamHeader := filepath.Join(fnDir, "streaming", "header", "h")
	os.Remove(filepath.Join(streamHeader, "m"))
	removeDir(streamHeader)
	removeDir(filepath.Join(fnDir, "streaming", "header"))

	mjpegDir := filepath.Join(fnDir, "streaming", "mjpeg", "m")
	if frames, err := os.ReadDir(mjpegDir); err == nil {
		for _, frame := range frames {
			removeDir(filepath.Join(mjpegDir, frame.Name()))
		}
	}
	removeDir(mjpegDir)
	removeDir(filepath.Join(fnDir, "streaming", "mjpeg"))
	removeDir(filepath.Join(fnDir, "streaming"))

	os.Remove(filepath.Join(fnDir, "control", "header", "h"))
	removeDir(filepath.Join(fnDir, "control", "header"))
	removeDir(filepath.Join(fnDir, "control"))

	removeDir(fnDir)
}

// removeDir removes one directory level. On configfs a plain rmdir drops the
// kernel-owned attribute files with it; on a plain filesystem (tests run the
// builder against a tempdir) the attributes are regular files that have to
// go first.
func removeDir(path string) error {
	err := os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	entries, readErr := os.ReadDir(path)
	if readErr != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			os.Remove(filepath.Join(path, entry.Name()))
		}
	}
	return os.Remove(path)
}

func write(path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
