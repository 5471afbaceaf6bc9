package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cjeanneret/LapseGo/internal/config"
	"github.com/cjeanneret/LapseGo/internal/debug"
	"github.com/cjeanneret/LapseGo/internal/hw/camera"
	"github.com/cjeanneret/LapseGo/internal/hw/gpio"
	"github.com/cjeanneret/LapseGo/internal/session"
	"github.com/cjeanneret/LapseGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	name := flag.String("name", "", "override experiment name")
	interval := flag.Int("interval", 0, "override interval between shots in seconds")
	total := flag.Int("total", 0, "override total number of photos")
	width := flag.Int("width", 0, "override image width in pixels")
	height := flag.Int("height", 0, "override image height in pixels")
	autoVideo := flag.Bool("auto-video", false, "assemble a video when the run completes")
	assembleDir := flag.String("assemble", "", "assemble a video from an existing run directory and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	if !camera.IsRaspberryPi() {
		debug.Info("not running on a Raspberry Pi; camera commands may be unavailable")
	}

	// Initialize camera backend
	cam, cleanup, err := newCameraFromConfig(cfg)
	if err != nil {
		log.Fatalf("init camera failed: %v", err)
	}
	defer cleanup()
	debug.Value("Camera type", cfg.Camera.Type)

	preview := camera.NewPreview(cfg.Camera.HFlip, cfg.Camera.VFlip)
	defer preview.Stop()

	if port := webPort.port(); port > 0 {
		runWeb(ctx, cfg, cam, preview, port)
		return
	}

	sess := session.New(cfg, cam, preview, consoleObserver{})

	// Standalone assembly mode
	if *assembleDir != "" {
		path, err := sess.Assemble(ctx, *assembleDir, 0, "")
		if err != nil {
			log.Fatalf("video assembly failed: %v", err)
		}
		fmt.Println(path)
		return
	}

	rc := sess.DefaultRunConfig()
	if *name != "" {
		rc.Experiment = *name
	}
	if *interval > 0 {
		rc.IntervalSeconds = *interval
	}
	if *total > 0 {
		rc.TotalShots = *total
	}
	if *width > 0 {
		rc.Width = *width
	}
	if *height > 0 {
		rc.Height = *height
	}
	if *autoVideo {
		rc.AutoVideo = true
	}

	if err := sess.StartRun(ctx, rc); err != nil {
		log.Fatalf("start run failed: %v", err)
	}

	// Ctrl-C requests a clean cancel; the scheduler finishes the run log
	// and releases the run directory before Wait returns.
	go func() {
		<-ctx.Done()
		sess.CancelRun()
	}()

	sess.Wait()
}

// runWeb serves the web front end until ctx is cancelled.
func runWeb(ctx context.Context, cfg *config.Config, cam camera.Camera, preview *camera.Preview, port int) {
	broadcaster := web.NewStatusBroadcaster()
	sess := session.New(cfg, cam, preview, web.NewObserver(broadcaster))

	formDefaults := web.FormConfig{
		Experiment:      cfg.Run.Experiment,
		IntervalSeconds: cfg.Run.IntervalSeconds,
		TotalShots:      cfg.Run.TotalShots,
		Width:           cfg.Run.Width,
		Height:          cfg.Run.Height,
		AutoVideo:       cfg.Run.AutoVideo,
	}
	srv := web.NewServer(fmt.Sprintf(":%d", port), sess, broadcaster, formDefaults)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("web server: %v", err)
	}

	// Let an in-flight run finish its teardown before exiting.
	sess.CancelRun()
	sess.Wait()
}

// consoleObserver prints run events through the debug logger.
type consoleObserver struct{}

func (consoleObserver) OnLog(msg string) {
	debug.Info("%s", msg)
}

func (consoleObserver) OnProgress(current, total int) {
	debug.Live("photo %d/%d", current, total)
}

// newCameraFromConfig selects a camera implementation based on configuration.
// The returned cleanup releases the GPIO driver for remote-trigger rigs.
func newCameraFromConfig(cfg *config.Config) (camera.Camera, func(), error) {
	switch cfg.Camera.Type {
	case config.CameraRpicam:
		return camera.NewStillCamera(cfg.Camera.HFlip, cfg.Camera.VFlip), func() {}, nil

	case config.CameraRemoteGPIO:
		debug.Value("Mock GPIO", cfg.Camera.MockGPIO)
		driver, err := gpio.NewDriver(cfg.Camera.MockGPIO)
		if err != nil {
			return nil, nil, fmt.Errorf("init GPIO: %w", err)
		}
		cleanup := func() {
			if err := driver.Close(); err != nil {
				log.Printf("closing GPIO driver failed: %v", err)
			}
		}
		cam := camera.NewRemoteTrigger(
			driver,
			cfg.Camera.FocusPin,
			cfg.Camera.ShutterPin,
			cfg.FocusDelay(),
			cfg.ShutterDelay(),
		)
		return cam, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
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
