package present

import (
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/renderer/gpu"
)

type fakeChainDevice struct {
	imageCount int
	failOn     string

	created   map[string]int
	destroyed map[string]int
	events    *[]string

	infos    []khr_swapchain.SwapchainCreateInfo
	waitIdle int
}

func newFakeChainDevice(events *[]string) *fakeChainDevice {
	return &fakeChainDevice{
		imageCount: 3,
		created:    make(map[string]int),
		destroyed:  make(map[string]int),
		events:     events,
	}
}

func newHandle[T any](d *fakeChainDevice, kind string) *gpu.Handle[T] {
	d.created[kind]++
	var zero T
	return gpu.NewHandle(zero, func(T) {
		d.destroyed[kind]++
		*d.events = append(*d.events, "destroy "+kind)
	})
}

func (d *fakeChainDevice) CreateSwapchain(info khr_swapchain.SwapchainCreateInfo) (*gpu.Handle[khr_swapchain.Swapchain], error) {
	d.infos = append(d.infos, info)
	if d.failOn == "swapchain" {
		return nil, errors.New("VK_ERROR_SURFACE_LOST_KHR")
	}
	return newHandle[khr_swapchain.Swapchain](d, "swapchain"), nil
}

func (d *fakeChainDevice) SwapchainImages(swapchain khr_swapchain.Swapchain) ([]core1_0.Image, error) {
	return make([]core1_0.Image, d.imageCount), nil
}

func (d *fakeChainDevice) CreateImageView(image core1_0.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags, mipLevels int) (*gpu.Handle[core1_0.ImageView], error) {
	if d.failOn == "view" && d.created["view"] == d.imageCount-1 {
		return nil, errors.New("VK_ERROR_OUT_OF_DEVICE_MEMORY")
	}
	return newHandle[core1_0.ImageView](d, "view"), nil
}

func (d *fakeChainDevice) CreateAttachment(spec AttachmentSpec) (*Attachment, error) {
	kind := "color"
	if spec.Aspect == core1_0.ImageAspectDepth {
		kind = "depth"
	}
	if d.failOn == kind {
		return nil, errors.New("VK_ERROR_OUT_OF_DEVICE_MEMORY")
	}
	return &Attachment{
		Image:  newHandle[core1_0.Image](d, kind+" image"),
		Memory: newHandle[core1_0.DeviceMemory](d, kind+" memory"),
		View:   newHandle[core1_0.ImageView](d, kind+" view"),
		Format: spec.Format,
	}, nil
}

func (d *fakeChainDevice) WaitIdle() error {
	d.waitIdle++
	*d.events = append(*d.events, "wait idle")
	return nil
}

type fakeSurface struct {
	capabilities khr_surface.SurfaceCapabilities
}

func (s *fakeSurface) SurfaceCapabilities() (*khr_surface.SurfaceCapabilities, error) {
	capabilities := s.capabilities
	return &capabilities, nil
}

type fakeWindow struct {
	width, height int
}

func (w *fakeWindow) DrawableSize() (int, int) {
	return w.width, w.height
}

type fakeDependents struct {
	events  *[]string
	rebuilt []*Chain
}

func (d *fakeDependents) ReleaseChainResources() {
	*d.events = append(*d.events, "release chain resources")
}

func (d *fakeDependents) ReleaseImageResources() {
	*d.events = append(*d.events, "release image resources")
}

func (d *fakeDependents) Rebuild(chain *Chain) error {
	d.rebuilt = append(d.rebuilt, chain)
	return nil
}

func indices(graphics, present int) gpu.QueueFamilyIndices {
	return gpu.QueueFamilyIndices{GraphicsFamily: &graphics, PresentFamily: &present}
}

func fixedCapabilities(width, height int) khr_surface.SurfaceCapabilities {
	return khr_surface.SurfaceCapabilities{
		MinImageCount:  2,
		MaxImageCount:  0,
		CurrentExtent:  core1_0.Extent2D{Width: width, Height: height},
		MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
	}
}

type managerFixture struct {
	events  []string
	device  *fakeChainDevice
	surface *fakeSurface
	window  *fakeWindow
	manager *Manager
}

func newManagerFixture(options Options) *managerFixture {
	f := &managerFixture{
		surface: &fakeSurface{capabilities: fixedCapabilities(800, 600)},
		window:  &fakeWindow{width: 800, height: 600},
	}
	f.device = newFakeChainDevice(&f.events)
	logger, _ := logtest.NewNullLogger()
	options.Logger = logger
	f.manager = NewManager(f.device, f.surface, f.window, options)
	return f
}

func (f *managerFixture) build(c *qt.C) *Chain {
	capabilities, err := f.surface.SurfaceCapabilities()
	c.Assert(err, qt.IsNil)
	chain, err := f.manager.Build(capabilities, f.window.width, f.window.height)
	c.Assert(err, qt.IsNil)
	return chain
}

func assertBalanced(c *qt.C, device *fakeChainDevice) {
	c.Helper()
	c.Assert(device.destroyed, qt.DeepEquals, device.created)
}

func TestBuildThenDestroyReleasesEverything(t *testing.T) {
	c := qt.New(t)

	f := newManagerFixture(Options{
		QueueFamilies: indices(0, 0),
		Samples:       core1_0.Samples4,
		DepthFormat:   core1_0.FormatD32SignedFloat,
	})
	chain := f.build(c)

	c.Assert(chain.ImageCount(), qt.Equals, 3)
	c.Assert(chain.Extent(), qt.Equals, core1_0.Extent2D{Width: 800, Height: 600})
	c.Assert(chain.SharingMode(), qt.Equals, core1_0.SharingModeExclusive)
	c.Assert(chain.QueueFamilies(), qt.HasLen, 0)
	c.Assert(chain.ColorAttachment(), qt.IsNotNil)
	c.Assert(chain.DepthAttachment().Format, qt.Equals, core1_0.FormatD32SignedFloat)
	c.Assert(chain.FramebufferAttachments(0), qt.HasLen, 3)
	c.Assert(f.device.created["view"], qt.Equals, 3)
	c.Assert(f.device.infos[0].MinImageCount, qt.Equals, 3)

	f.manager.Destroy()
	f.manager.Destroy()
	assertBalanced(c, f.device)
	c.Assert(chain.Live(), qt.IsFalse)
	c.Assert(f.manager.Chain(), qt.IsNil)
}

func TestDestroyEmptyChain(t *testing.T) {
	c := qt.New(t)

	chain := &Chain{}
	chain.Destroy()
	chain.Destroy()
	c.Assert(chain.ImageCount(), qt.Equals, 0)

	var missing *Chain
	missing.Destroy()
	c.Assert(missing.Live(), qt.IsFalse)
}

func TestSharingModeFollowsQueueFamilies(t *testing.T) {
	c := qt.New(t)

	f := newManagerFixture(Options{QueueFamilies: indices(0, 2)})
	chain := f.build(c)

	c.Assert(chain.SharingMode(), qt.Equals, core1_0.SharingModeConcurrent)
	c.Assert(chain.QueueFamilies(), qt.DeepEquals, []int{0, 2})
	c.Assert(f.device.infos[0].QueueFamilyIndices, qt.DeepEquals, []int{0, 2})
	c.Assert(chain.ColorAttachment(), qt.IsNil)
	c.Assert(chain.DepthAttachment(), qt.IsNil)
	c.Assert(chain.FramebufferAttachments(1), qt.HasLen, 1)
}

func TestBuildFailureUnwinds(t *testing.T) {
	for _, failOn := range []string{"swapchain", "view", "color", "depth"} {
		t.Run(failOn, func(t *testing.T) {
			c := qt.New(t)

			f := newManagerFixture(Options{
				QueueFamilies: indices(1, 1),
				Samples:       core1_0.Samples2,
				DepthFormat:   core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
			})
			f.device.failOn = failOn

			capabilities, _ := f.surface.SurfaceCapabilities()
			chain, err := f.manager.Build(capabilities, 800, 600)
			c.Assert(chain, qt.IsNil)
			c.Assert(errors.Is(err, gpu.ErrResourceCreation), qt.IsTrue)
			c.Assert(f.manager.Chain(), qt.IsNil)
			assertBalanced(c, f.device)
		})
	}
}

func TestBuildTwiceIsAProgrammingError(t *testing.T) {
	c := qt.New(t)

	f := newManagerFixture(Options{QueueFamilies: indices(0, 0)})
	f.build(c)

	capabilities, _ := f.surface.SurfaceCapabilities()
	_, err := f.manager.Build(capabilities, 800, 600)
	c.Assert(errors.HasAssertionFailure(err), qt.IsTrue)
}

func TestRecreateWithZeroExtentKeepsChain(t *testing.T) {
	c := qt.New(t)

	f := newManagerFixture(Options{QueueFamilies: indices(0, 0)})
	chain := f.build(c)
	format := chain.Format()

	f.surface.capabilities = fixedCapabilities(0, 0)
	dependents := &fakeDependents{events: &f.events}

	rebuilt, err := f.manager.Recreate(dependents)
	c.Assert(err, qt.IsNil)
	c.Assert(rebuilt, qt.IsFalse)
	c.Assert(f.manager.Chain(), qt.Equals, chain)
	c.Assert(chain.Live(), qt.IsTrue)
	c.Assert(chain.ImageCount(), qt.Equals, 3)
	c.Assert(chain.Format(), qt.Equals, format)
	c.Assert(f.device.waitIdle, qt.Equals, 0)
	c.Assert(f.events, qt.HasLen, 0)
}

func TestRecreateWithMinimizedWindow(t *testing.T) {
	c := qt.New(t)

	f := newManagerFixture(Options{QueueFamilies: indices(0, 0)})
	chain := f.build(c)

	undefined := fixedCapabilities(gpu.UndefinedExtent, gpu.UndefinedExtent)
	f.surface.capabilities = undefined
	f.window.width, f.window.height = 0, 0

	rebuilt, err := f.manager.Recreate(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(rebuilt, qt.IsFalse)
	c.Assert(f.manager.Chain(), qt.Equals, chain)
}

func TestRecreateOrder(t *testing.T) {
	c := qt.New(t)

	f := newManagerFixture(Options{
		QueueFamilies: indices(0, 0),
		Samples:       core1_0.Samples8,
		DepthFormat:   core1_0.FormatD32SignedFloat,
	})
	old := f.build(c)
	imageCount := old.ImageCount()

	f.surface.capabilities = fixedCapabilities(1024, 768)
	dependents := &fakeDependents{events: &f.events}

	rebuilt, err := f.manager.Recreate(dependents)
	c.Assert(err, qt.IsNil)
	c.Assert(rebuilt, qt.IsTrue)

	want := []string{
		"wait idle",
		"destroy color view", "destroy color image", "destroy color memory",
		"destroy depth view", "destroy depth image", "destroy depth memory",
		"release chain resources",
	}
	for i := 0; i < imageCount; i++ {
		want = append(want, "destroy view")
	}
	want = append(want, "destroy swapchain", "release image resources")
	c.Assert(f.events, qt.DeepEquals, want)

	chain := f.manager.Chain()
	c.Assert(chain, qt.Not(qt.Equals), old)
	c.Assert(chain.Extent(), qt.Equals, core1_0.Extent2D{Width: 1024, Height: 768})
	c.Assert(dependents.rebuilt, qt.HasLen, 1)
	c.Assert(dependents.rebuilt[0], qt.Equals, chain)

	f.manager.Destroy()
	assertBalanced(c, f.device)
}

func TestRecreateWithUndefinedExtentClampsDrawableSize(t *testing.T) {
	c := qt.New(t)

	f := newManagerFixture(Options{QueueFamilies: indices(0, 0)})
	f.build(c)

	f.surface.capabilities = fixedCapabilities(gpu.UndefinedExtent, gpu.UndefinedExtent)
	f.window.width, f.window.height = 10000, 10000

	rebuilt, err := f.manager.Recreate(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(rebuilt, qt.IsTrue)
	c.Assert(f.manager.Chain().Extent(), qt.Equals, core1_0.Extent2D{Width: 4096, Height: 4096})
	c.Assert(f.device.waitIdle, qt.Equals, 1)
}
