package platform

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
)

// Window is what the renderer needs from the windowing system.
type Window interface {
	// DrawableSize is the size of the drawable area in pixels, which can differ from the
	// window size on high density displays.
	DrawableSize() (width, height int)
	RequiredExtensions() []string
	CreateSurface(instance core1_0.Instance, surfaceDriver khr_surface.ExtensionDriver) (khr_surface.Surface, error)
}

type WindowOptions struct {
	Title         string
	Width, Height int
	Resizable     bool
}

// SDLWindow is a Vulkan-capable SDL window.
type SDLWindow struct {
	window *sdl.Window
}

var _ Window = (*SDLWindow)(nil)

// Init starts SDL's video subsystem. Quit must be called once every window is destroyed.
func Init() error {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return errors.Wrap(err, "initializing sdl")
	}
	return nil
}

func Quit() {
	sdl.Quit()
}

// LoadDriver loads the Vulkan loader SDL found and returns its global driver.
func LoadDriver() (core1_0.GlobalDriver, error) {
	driver, err := core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return nil, errors.Wrap(err, "loading vulkan driver")
	}
	return driver, nil
}

func NewWindow(options WindowOptions) (*SDLWindow, error) {
	flags := uint32(sdl.WINDOW_SHOWN | sdl.WINDOW_VULKAN)
	if options.Resizable {
		flags |= sdl.WINDOW_RESIZABLE
	}

	window, err := sdl.CreateWindow(options.Title,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(options.Width),
		int32(options.Height),
		flags)
	if err != nil {
		return nil, errors.Wrap(err, "creating window")
	}
	return &SDLWindow{window: window}, nil
}

// DrawableSize reports zero while the window is minimized.
func (w *SDLWindow) DrawableSize() (int, int) {
	if w.Minimized() {
		return 0, 0
	}
	width, height := w.window.VulkanGetDrawableSize()
	return int(width), int(height)
}

func (w *SDLWindow) Minimized() bool {
	return w.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0
}

func (w *SDLWindow) RequiredExtensions() []string {
	return w.window.VulkanGetInstanceExtensions()
}

func (w *SDLWindow) CreateSurface(instance core1_0.Instance, surfaceDriver khr_surface.ExtensionDriver) (khr_surface.Surface, error) {
	return vkng_sdl2.CreateSurface(instance, surfaceDriver, w.window)
}

func (w *SDLWindow) Destroy() {
	if w.window == nil {
		return
	}
	w.window.Destroy()
	w.window = nil
}
