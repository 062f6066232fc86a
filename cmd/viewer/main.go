package main

import (
	"flag"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/renderer/assets"
	"github.com/vkngwrapper/renderer/config"
	"github.com/vkngwrapper/renderer/platform"
	"github.com/vkngwrapper/renderer/renderer"
)

func init() {
	runtime.LockOSThread()
}

var (
	configPath = flag.String("config", ".env", "Settings file, see config.Load")
	validation = flag.Bool("validation", true, "Load the Vulkan validation layers")
	logLevel   = flag.String("log-level", "", "Override the configured log level")
	cpuProfile = flag.String("cpuprof", "", "Profile CPU usage to file")
)

func main() {
	flag.Parse()

	log := logrus.New()
	if err := run(log); err != nil {
		log.Fatalf("viewer failed: %+v", err)
	}
}

func run(log *logrus.Logger) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return errors.Wrap(err, "loading configuration")
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "validation":
			cfg.Debug.Validation = *validation
		case "log-level":
			cfg.Debug.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}
	log.SetLevel(cfg.Level())

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	loaded, err := assets.Load(cfg.Assets)
	if err != nil {
		return errors.Wrap(err, "loading assets")
	}

	if err := platform.Init(); err != nil {
		return err
	}
	defer platform.Quit()

	window, err := platform.NewWindow(platform.WindowOptions{
		Title:     cfg.Window.Title,
		Width:     cfg.Window.Width,
		Height:    cfg.Window.Height,
		Resizable: true,
	})
	if err != nil {
		return err
	}
	defer window.Destroy()

	global, err := platform.LoadDriver()
	if err != nil {
		return err
	}

	r, err := renderer.New(renderer.Options{
		Config: cfg,
		Window: window,
		Global: global,
		Assets: loaded,
		Logger: log,
	})
	if err != nil {
		return err
	}
	defer r.Destroy()

	return loop(r)
}

// hiddenPollDelay paces the event pump while nothing is drawn.
const hiddenPollDelay = 50 * time.Millisecond

func loop(r *renderer.Renderer) error {
	var visibility platform.Visibility
	running := true

	for running {
		platform.PumpEvents(func(event platform.Event) {
			if event == platform.EventQuit {
				running = false
				return
			}
			if visibility.Apply(event) {
				r.NotifyResized()
			}
		})

		if !running {
			break
		}
		if !visibility.Rendering() {
			time.Sleep(hiddenPollDelay)
			continue
		}
		if err := r.DrawFrame(); err != nil {
			return err
		}
	}
	return nil
}
