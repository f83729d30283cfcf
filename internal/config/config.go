package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps the size of a config file accepted by Load.
const MaxConfigFileBytes = 64 << 10

// DefaultTemplateURL is the hosted card background used when none is configured.
const DefaultTemplateURL = "https://i.postimg.cc/BnfczH70/image.png"

// CameraConfig selects and parameterizes the camera backend.
// Type selects a concrete implementation ("synthetic", "still", "gocv").
type CameraConfig struct {
	Type        string `yaml:"type"`
	Device      int    `yaml:"device"`       // gocv device index
	StillPath   string `yaml:"still_path"`   // image served as the live frame ("still")
	FrameWidth  int    `yaml:"frame_width"`  // synthetic frame size
	FrameHeight int    `yaml:"frame_height"` // synthetic frame size
	IdealWidth  int    `yaml:"ideal_width"`  // resolution hint passed to the device, 0 = none
	IdealHeight int    `yaml:"ideal_height"` // resolution hint passed to the device, 0 = none
}

// CaptureConfig holds photo output parameters and the session pacing.
type CaptureConfig struct {
	OutputWidth   int `yaml:"output_width"`
	OutputHeight  int `yaml:"output_height"`
	AspectWidth   int `yaml:"aspect_width"`
	AspectHeight  int `yaml:"aspect_height"`
	JPEGQuality   int `yaml:"jpeg_quality"`   // 1-100
	CountdownFrom int `yaml:"countdown_from"` // first countdown value shown
	SettleMs      int `yaml:"settle_ms"`      // "Get Ready..." wait before the first countdown
	TickMs        int `yaml:"tick_ms"`        // countdown interval
	BetweenMs     int `yaml:"between_ms"`     // "Next Pose!" wait between shots
	CompleteMs    int `yaml:"complete_ms"`    // wait after the last shot before completion
	FlashMs       int `yaml:"flash_ms"`       // flash indicator duration
}

// SlotConfig is the top-left origin of one photo slot on the card.
type SlotConfig struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// CollageConfig describes the card layout and its background.
type CollageConfig struct {
	CanvasWidth       int          `yaml:"canvas_width"`
	CanvasHeight      int          `yaml:"canvas_height"`
	PhotoWidth        int          `yaml:"photo_width"`
	PhotoHeight       int          `yaml:"photo_height"`
	Slots             []SlotConfig `yaml:"slots"`
	Background        string       `yaml:"background"` // "#rrggbb", painted first
	Fallback          string       `yaml:"fallback"`   // "#rrggbb", used when the template is missing
	TemplateURL       string       `yaml:"template_url"`
	TemplatePath      string       `yaml:"template_path"` // takes precedence over template_url
	TemplateTimeoutMs int          `yaml:"template_timeout_ms"`
	MemoizeEntries    int          `yaml:"memoize_entries"` // 0 = no memoization
}

// GPIOConfig wires the physical start button and flash light.
type GPIOConfig struct {
	Mock       bool `yaml:"mock"`        // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	ButtonPin  int  `yaml:"button_pin"`  // BCM pin of the start button, 0 = none. Active LOW.
	FlashPin   int  `yaml:"flash_pin"`   // BCM pin of the flash light, 0 = none. Active HIGH.
	DebounceMs int  `yaml:"debounce_ms"` // button debounce window
}

// BoothConfig paces the printing reveal and names the export directory.
type BoothConfig struct {
	PrintDelayMs    int    `yaml:"print_delay_ms"`
	PrintDurationMs int    `yaml:"print_duration_ms"`
	OutputDir       string `yaml:"output_dir"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Capture  CaptureConfig  `yaml:"capture"`
	Collage  CollageConfig  `yaml:"collage"`
	GPIO     GPIOConfig     `yaml:"gpio"`
	Booth    BoothConfig    `yaml:"booth"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath checks that path names a .yaml file directly inside
// a "configs" directory and does not climb out of it.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, max %d", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if cfg.Camera.Type == "" {
		return nil, fmt.Errorf("camera.type is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values with the booth defaults.
func (c *Config) ApplyDefaults() {
	if c.Camera.FrameWidth <= 0 {
		c.Camera.FrameWidth = 1280
	}
	if c.Camera.FrameHeight <= 0 {
		c.Camera.FrameHeight = 720
	}

	cp := &c.Capture
	if cp.OutputWidth <= 0 {
		cp.OutputWidth = 900
	}
	if cp.OutputHeight <= 0 {
		cp.OutputHeight = 1200
	}
	if cp.AspectWidth <= 0 || cp.AspectHeight <= 0 {
		cp.AspectWidth, cp.AspectHeight = 3, 4
	}
	if cp.JPEGQuality == 0 {
		cp.JPEGQuality = 95
	}
	if cp.CountdownFrom <= 0 {
		cp.CountdownFrom = 3
	}
	if cp.SettleMs <= 0 {
		cp.SettleMs = 2000
	}
	if cp.TickMs <= 0 {
		cp.TickMs = 1000
	}
	if cp.BetweenMs <= 0 {
		cp.BetweenMs = 2000
	}
	if cp.CompleteMs <= 0 {
		cp.CompleteMs = 1000
	}
	if cp.FlashMs <= 0 {
		cp.FlashMs = 200
	}

	cl := &c.Collage
	if cl.CanvasWidth <= 0 {
		cl.CanvasWidth = 1080
	}
	if cl.CanvasHeight <= 0 {
		cl.CanvasHeight = 1440
	}
	if cl.PhotoWidth <= 0 {
		cl.PhotoWidth = 516
	}
	if cl.PhotoHeight <= 0 {
		cl.PhotoHeight = 649
	}
	if len(cl.Slots) == 0 {
		cl.Slots = []SlotConfig{{X: 20, Y: 26}, {X: 544, Y: 680}}
	}
	if cl.Background == "" {
		cl.Background = "#ffffff"
	}
	if cl.Fallback == "" {
		cl.Fallback = "#ffc2d1"
	}
	if cl.TemplateURL == "" && cl.TemplatePath == "" {
		cl.TemplateURL = DefaultTemplateURL
	}
	if cl.TemplateTimeoutMs <= 0 {
		cl.TemplateTimeoutMs = 5000
	}

	if c.GPIO.DebounceMs <= 0 {
		c.GPIO.DebounceMs = 50
	}

	if c.Booth.PrintDelayMs <= 0 {
		c.Booth.PrintDelayMs = 500
	}
	if c.Booth.PrintDurationMs <= 0 {
		c.Booth.PrintDurationMs = 5000
	}
	if c.Booth.OutputDir == "" {
		c.Booth.OutputDir = "output"
	}
}

// Validate reports values that have no sensible default.
func (c *Config) Validate() error {
	switch c.Camera.Type {
	case "synthetic", "still", "gocv":
	default:
		return fmt.Errorf("unsupported camera type: %s", c.Camera.Type)
	}
	if c.Camera.Type == "still" && c.Camera.StillPath == "" {
		return fmt.Errorf("camera.still_path is required for the still camera")
	}
	if c.Camera.IdealWidth < 0 || c.Camera.IdealHeight < 0 {
		return fmt.Errorf("camera ideal resolution must be >= 0")
	}
	if q := c.Capture.JPEGQuality; q < 1 || q > 100 {
		return fmt.Errorf("capture.jpeg_quality must be between 1 and 100, got %d", q)
	}
	if c.Capture.CountdownFrom > 10 {
		return fmt.Errorf("capture.countdown_from must be <= 10, got %d", c.Capture.CountdownFrom)
	}
	if len(c.Collage.Slots) != 2 {
		return fmt.Errorf("collage.slots must have exactly 2 entries, got %d", len(c.Collage.Slots))
	}
	if _, err := ParseHexColor(c.Collage.Background); err != nil {
		return fmt.Errorf("collage.background: %w", err)
	}
	if _, err := ParseHexColor(c.Collage.Fallback); err != nil {
		return fmt.Errorf("collage.fallback: %w", err)
	}
	if c.Collage.MemoizeEntries < 0 {
		return fmt.Errorf("collage.memoize_entries must be >= 0")
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// ParseHexColor parses "#rrggbb" (or "rrggbb") into an opaque color.
func ParseHexColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("color %q must be #rrggbb", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// BackgroundColor returns the opaque fill painted before anything else.
func (c *Config) BackgroundColor() color.RGBA {
	col, _ := ParseHexColor(c.Collage.Background)
	return col
}

// FallbackColor returns the fill used when the template cannot be loaded.
func (c *Config) FallbackColor() color.RGBA {
	col, _ := ParseHexColor(c.Collage.Fallback)
	return col
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// SettleDelay returns the wait before the first countdown.
func (c *Config) SettleDelay() time.Duration { return ms(c.Capture.SettleMs) }

// TickInterval returns the countdown interval.
func (c *Config) TickInterval() time.Duration { return ms(c.Capture.TickMs) }

// BetweenDelay returns the wait between the two poses.
func (c *Config) BetweenDelay() time.Duration { return ms(c.Capture.BetweenMs) }

// CompleteDelay returns the wait after the second shot.
func (c *Config) CompleteDelay() time.Duration { return ms(c.Capture.CompleteMs) }

// FlashDuration returns how long the flash indicator stays on.
func (c *Config) FlashDuration() time.Duration { return ms(c.Capture.FlashMs) }

// TemplateTimeout bounds the template fetch.
func (c *Config) TemplateTimeout() time.Duration { return ms(c.Collage.TemplateTimeoutMs) }

// Debounce returns the start button debounce window.
func (c *Config) Debounce() time.Duration { return ms(c.GPIO.DebounceMs) }

// PrintDelay returns the pause before the print animation starts.
func (c *Config) PrintDelay() time.Duration { return ms(c.Booth.PrintDelayMs) }

// PrintDuration returns how long the print reveal lasts.
func (c *Config) PrintDuration() time.Duration { return ms(c.Booth.PrintDurationMs) }

// AspectRatio returns the photo aspect as width/height (0.75 for 3:4).
func (c *Config) AspectRatio() float64 {
	return float64(c.Capture.AspectWidth) / float64(c.Capture.AspectHeight)
}
