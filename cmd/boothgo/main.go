package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/cjeanneret/BoothGo/internal/asset"
	"github.com/cjeanneret/BoothGo/internal/config"
	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/hw/camera"
	"github.com/cjeanneret/BoothGo/internal/hw/gpio"
	"github.com/cjeanneret/BoothGo/internal/logic/booth"
	"github.com/cjeanneret/BoothGo/internal/logic/capture"
	"github.com/cjeanneret/BoothGo/internal/logic/collage"
	"github.com/cjeanneret/BoothGo/internal/logic/geometry"
	"github.com/cjeanneret/BoothGo/internal/telemetry"
	"github.com/cjeanneret/BoothGo/internal/web"
)

// cliOverrides are the flag values applied on top of the config file.
// Empty strings mean "use config".
type cliOverrides struct {
	OutputDir string
	Camera    string
	Template  string
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	outDir := flag.String("out", "", "override output directory for the collage")
	camType := flag.String("camera", "", "override camera backend (synthetic, still, gocv)")
	template := flag.String("template", "", "override template: http(s) URL or image file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, *cfgPath, webPort.port(), cliOverrides{
		OutputDir: *outDir,
		Camera:    *camType,
		Template:  *template,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("boothgo: %v", err)
	}
}

func run(ctx context.Context, cfgPath string, port int, overrides cliOverrides) error {
	// Load configuration: file, then environment, then flags
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	envOverrides, err := config.ParseEnv(nil)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(envOverrides); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return fmt.Errorf("invalid CLI override: %w", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	shutdownTracing, err := telemetry.Setup(ctx, "boothgo")
	if err != nil {
		debug.Warn("Tracing disabled: %v", err)
	}
	defer shutdownTracing(context.Background())

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.GPIO.Mock)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.GPIO.Mock)
	if err != nil {
		return fmt.Errorf("init GPIO failed: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()
	button, light, err := newControls(gpioDriver, cfg)
	if err != nil {
		return err
	}
	if light != nil {
		defer light.Close()
	}

	// Initialize camera
	debug.Step(2, "Initializing camera")
	cam, err := newCameraFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init camera failed: %w", err)
	}
	debug.Value("Camera type", cfg.Camera.Type)

	var broadcaster *web.Broadcaster
	if port > 0 {
		broadcaster = web.NewBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, broadcaster.Writer()))
	}

	debug.Step(3, "Preparing compositor")
	var flash capture.Flash
	if light != nil {
		flash = light
	}
	b, seq, err := newBooth(cfg, cam, flash, func(st booth.State) {
		if broadcaster != nil {
			broadcaster.State(st)
		}
	})
	if err != nil {
		return err
	}

	if port > 0 {
		if button != nil {
			go startOnPress(ctx, button, b)
		}
		srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, b, seq, publicConfig(cfg))
		if err != nil {
			return err
		}
		err = srv.Run(ctx)
		b.Retake()
		return err
	}

	return runHeadless(ctx, b, button, cfg)
}

// runHeadless runs a single session and writes the collage to the output dir.
// With a real start button it waits for a press first.
func runHeadless(ctx context.Context, b *booth.Booth, button *gpio.Button, cfg *config.Config) error {
	if button != nil && !cfg.GPIO.Mock {
		debug.Live("Press the button to start")
		if err := button.WaitPress(ctx); err != nil {
			return err
		}
	}
	if err := b.Run(ctx); err != nil {
		return err
	}
	path, err := b.Export(ctx, cfg.Booth.OutputDir)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

// startOnPress starts a session on every button press until ctx is done.
func startOnPress(ctx context.Context, button *gpio.Button, b *booth.Booth) {
	for {
		if err := button.WaitPress(ctx); err != nil {
			return
		}
		if err := b.Start(ctx); err != nil {
			debug.Verbose("Button press ignored: %v", err)
		}
	}
}

// newBooth wires the sequencer and compositor into a booth.
func newBooth(cfg *config.Config, cam camera.Camera, flash capture.Flash, onChange func(booth.State)) (*booth.Booth, *capture.Sequencer, error) {
	collageOpts, err := compositorOptions(cfg)
	if err != nil {
		return nil, nil, err
	}
	comp, err := collage.NewCompositor(newTemplateLoader(cfg), collageOpts)
	if err != nil {
		return nil, nil, err
	}
	debug.PrintStruct("Collage config", cfg.Collage)

	// The booth listens to the sequencer, which is built first.
	var b *booth.Booth
	opts := captureOptions(cfg)
	opts.Flash = flash
	opts.OnState = func(s capture.Snapshot) { b.UpdateCapture(s) }
	seq := capture.NewSequencer(cam, opts)
	b = booth.New(seq, comp, booth.Options{
		PrintDelay:    cfg.PrintDelay(),
		PrintDuration: cfg.PrintDuration(),
		OnChange:      onChange,
	})
	return b, seq, nil
}

// applyOverrides mutates cfg with the non-empty flag values and re-validates it.
func applyOverrides(cfg *config.Config, o cliOverrides) error {
	if o.OutputDir != "" {
		cfg.Booth.OutputDir = o.OutputDir
	}
	if o.Camera != "" {
		cfg.Camera.Type = o.Camera
	}
	if o.Template != "" {
		if isURL(o.Template) {
			cfg.Collage.TemplateURL = o.Template
			cfg.Collage.TemplatePath = ""
		} else {
			cfg.Collage.TemplatePath = o.Template
		}
	}
	return cfg.Validate()
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// newCameraFromConfig selects a camera implementation based on configuration.
func newCameraFromConfig(cfg *config.Config) (camera.Camera, error) {
	switch cfg.Camera.Type {
	case "synthetic":
		return camera.NewSynthetic(cfg.Camera.FrameWidth, cfg.Camera.FrameHeight), nil
	case "still":
		return camera.NewStill(cfg.Camera.StillPath), nil
	case "gocv":
		return camera.NewGoCV(cfg.Camera.Device)
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}

// newTemplateLoader prefers a local template file over the URL.
func newTemplateLoader(cfg *config.Config) asset.Loader {
	switch {
	case cfg.Collage.TemplatePath != "":
		return asset.NewFileLoader(cfg.Collage.TemplatePath)
	case cfg.Collage.TemplateURL != "":
		return asset.NewHTTPLoader(cfg.Collage.TemplateURL, cfg.TemplateTimeout())
	default:
		return nil
	}
}

// newControls sets up the optional start button and flash light.
func newControls(drv gpio.Driver, cfg *config.Config) (*gpio.Button, *gpio.Light, error) {
	var (
		button *gpio.Button
		light  *gpio.Light
		err    error
	)
	if cfg.GPIO.ButtonPin > 0 {
		button, err = gpio.NewButton(drv, cfg.GPIO.ButtonPin, cfg.Debounce())
		if err != nil {
			return nil, nil, fmt.Errorf("init start button: %w", err)
		}
		debug.Value("Button pin", cfg.GPIO.ButtonPin)
	}
	if cfg.GPIO.FlashPin > 0 {
		light, err = gpio.NewLight(drv, cfg.GPIO.FlashPin)
		if err != nil {
			return nil, nil, fmt.Errorf("init flash light: %w", err)
		}
		debug.Value("Flash pin", cfg.GPIO.FlashPin)
	}
	return button, light, nil
}

func captureOptions(cfg *config.Config) capture.Options {
	return capture.Options{
		Spec: capture.PhotoSpec{
			Width:   cfg.Capture.OutputWidth,
			Height:  cfg.Capture.OutputHeight,
			Aspect:  cfg.AspectRatio(),
			Quality: cfg.Capture.JPEGQuality,
		},
		Timing: capture.Timing{
			Settle:   cfg.SettleDelay(),
			Tick:     cfg.TickInterval(),
			Between:  cfg.BetweenDelay(),
			Complete: cfg.CompleteDelay(),
			Flash:    cfg.FlashDuration(),
		},
		CountdownFrom: cfg.Capture.CountdownFrom,
		IdealWidth:    cfg.Camera.IdealWidth,
		IdealHeight:   cfg.Camera.IdealHeight,
	}
}

func compositorOptions(cfg *config.Config) (collage.Options, error) {
	cl := cfg.Collage
	if len(cl.Slots) != 2 {
		return collage.Options{}, fmt.Errorf("collage needs exactly 2 slots, got %d", len(cl.Slots))
	}
	layout := geometry.NewLayout(cl.CanvasWidth, cl.CanvasHeight, cl.PhotoWidth, cl.PhotoHeight,
		[2]image.Point{{X: cl.Slots[0].X, Y: cl.Slots[0].Y}, {X: cl.Slots[1].X, Y: cl.Slots[1].Y}})
	if err := layout.Validate(); err != nil {
		return collage.Options{}, fmt.Errorf("collage layout: %w", err)
	}
	return collage.Options{
		Layout:     layout,
		Background: cfg.BackgroundColor(),
		Fallback:   cfg.FallbackColor(),
		Memoize:    cl.MemoizeEntries,
	}, nil
}

func publicConfig(cfg *config.Config) web.PublicConfig {
	return web.PublicConfig{
		CanvasWidth:   cfg.Collage.CanvasWidth,
		CanvasHeight:  cfg.Collage.CanvasHeight,
		PhotoWidth:    cfg.Collage.PhotoWidth,
		PhotoHeight:   cfg.Collage.PhotoHeight,
		CountdownFrom: cfg.Capture.CountdownFrom,
		FlashMs:       cfg.Capture.FlashMs,
		TemplateURL:   cfg.Collage.TemplateURL,
	}
}
