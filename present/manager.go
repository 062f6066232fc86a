package present

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/renderer/gpu"
)

// AttachmentSpec describes a single-mip image that lives as long as the chain.
type AttachmentSpec struct {
	Extent  core1_0.Extent2D
	Format  core1_0.Format
	Samples core1_0.SampleCountFlags
	Usage   core1_0.ImageUsageFlags
	Aspect  core1_0.ImageAspectFlags
}

// ChainDevice creates and destroys the resources a chain is made of.
type ChainDevice interface {
	CreateSwapchain(info khr_swapchain.SwapchainCreateInfo) (*gpu.Handle[khr_swapchain.Swapchain], error)
	SwapchainImages(swapchain khr_swapchain.Swapchain) ([]core1_0.Image, error)
	CreateImageView(image core1_0.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags, mipLevels int) (*gpu.Handle[core1_0.ImageView], error)
	CreateAttachment(spec AttachmentSpec) (*Attachment, error)
	WaitIdle() error
}

// SurfaceQuerier reports the surface's current capabilities.
type SurfaceQuerier interface {
	SurfaceCapabilities() (*khr_surface.SurfaceCapabilities, error)
}

type DrawableSizer interface {
	DrawableSize() (width, height int)
}

// Dependents own the resources built on top of a chain. The manager releases them in
// two stages around the chain itself and asks them to rebuild once a new chain exists.
type Dependents interface {
	// ReleaseChainResources destroys framebuffers, command buffers, the pipeline, its
	// layout and the render pass.
	ReleaseChainResources()
	// ReleaseImageResources destroys per-image uniform buffers and the descriptor pool.
	ReleaseImageResources()
	Rebuild(chain *Chain) error
}

type Options struct {
	Surface       khr_surface.Surface
	Formats       []khr_surface.SurfaceFormat
	PresentModes  []khr_surface.PresentMode
	QueueFamilies gpu.QueueFamilyIndices

	// Samples above one add a transient multisampled color attachment.
	Samples core1_0.SampleCountFlags
	// DepthFormat adds a depth attachment unless it is FormatUndefined.
	DepthFormat core1_0.Format

	Logger logrus.FieldLogger
}

// Manager builds the presentable chain and rebuilds it when the surface changes.
type Manager struct {
	device  ChainDevice
	surface SurfaceQuerier
	window  DrawableSizer
	options Options
	logger  logrus.FieldLogger

	chain *Chain
}

func NewManager(device ChainDevice, surface SurfaceQuerier, window DrawableSizer, options Options) *Manager {
	logger := options.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if options.Samples == 0 {
		options.Samples = core1_0.Samples1
	}

	return &Manager{
		device:  device,
		surface: surface,
		window:  window,
		options: options,
		logger:  logger.WithField("component", "swapchain"),
	}
}

// Chain returns the current chain, or nil before Build and after Destroy.
func (m *Manager) Chain() *Chain {
	return m.chain
}

// Build creates a chain for the given capabilities and requested size. Any failure
// destroys whatever was already created.
func (m *Manager) Build(capabilities *khr_surface.SurfaceCapabilities, width, height int) (*Chain, error) {
	if m.chain.Live() {
		return nil, errors.AssertionFailedf("swapchain built twice without being destroyed")
	}
	if capabilities == nil {
		return nil, errors.AssertionFailedf("swapchain built without surface capabilities")
	}
	if !m.options.QueueFamilies.IsComplete() {
		return nil, errors.AssertionFailedf("swapchain built without graphics and present queue families")
	}

	chain := &Chain{
		format:      gpu.ChooseSurfaceFormat(m.options.Formats),
		presentMode: gpu.ChoosePresentMode(m.options.PresentModes),
		extent:      gpu.ChooseExtent(capabilities, width, height),
		sharingMode: core1_0.SharingModeExclusive,
		samples:     m.options.Samples,
	}

	families := m.options.QueueFamilies
	if !families.Shared() {
		chain.sharingMode = core1_0.SharingModeConcurrent
		chain.queueFamilies = []int{*families.GraphicsFamily, *families.PresentFamily}
	}

	if err := m.populate(chain, capabilities); err != nil {
		chain.Destroy()
		return nil, err
	}

	m.chain = chain
	m.logger.WithFields(logrus.Fields{
		"images":  chain.ImageCount(),
		"format":  chain.format.Format,
		"mode":    chain.presentMode,
		"width":   chain.extent.Width,
		"height":  chain.extent.Height,
		"sharing": chain.sharingMode,
	}).Info("swapchain built")
	return chain, nil
}

func (m *Manager) populate(chain *Chain, capabilities *khr_surface.SurfaceCapabilities) error {
	swapchain, err := m.device.CreateSwapchain(khr_swapchain.SwapchainCreateInfo{
		Surface: m.options.Surface,

		MinImageCount:    gpu.ChooseImageCount(capabilities),
		ImageFormat:      chain.format.Format,
		ImageColorSpace:  chain.format.ColorSpace,
		ImageExtent:      chain.extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   chain.sharingMode,
		QueueFamilyIndices: chain.queueFamilies,

		PreTransform:   capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    chain.presentMode,
		Clipped:        true,
	})
	if err != nil {
		return gpu.ResourceError(err, "creating swapchain")
	}
	chain.swapchain = swapchain

	chain.images, err = m.device.SwapchainImages(swapchain.Get())
	if err != nil {
		return gpu.ResourceError(err, "retrieving swapchain images")
	}

	for i, image := range chain.images {
		view, err := m.device.CreateImageView(image, chain.format.Format, core1_0.ImageAspectColor, 1)
		if err != nil {
			return gpu.ResourceError(err, "creating view for swapchain image %d", i)
		}
		chain.views = append(chain.views, view)
	}

	if chain.samples != core1_0.Samples1 {
		chain.color, err = m.device.CreateAttachment(AttachmentSpec{
			Extent:  chain.extent,
			Format:  chain.format.Format,
			Samples: chain.samples,
			Usage:   core1_0.ImageUsageTransientAttachment | core1_0.ImageUsageColorAttachment,
			Aspect:  core1_0.ImageAspectColor,
		})
		if err != nil {
			return gpu.ResourceError(err, "creating color attachment")
		}
	}

	if m.options.DepthFormat != core1_0.FormatUndefined {
		chain.depth, err = m.device.CreateAttachment(AttachmentSpec{
			Extent:  chain.extent,
			Format:  m.options.DepthFormat,
			Samples: chain.samples,
			Usage:   core1_0.ImageUsageDepthStencilAttachment,
			Aspect:  core1_0.ImageAspectDepth,
		})
		if err != nil {
			return gpu.ResourceError(err, "creating depth attachment")
		}
	}

	return nil
}

// Recreate rebuilds the chain and its dependents for the surface's current size. It
// reports false, leaving everything in place, while the surface has no area.
func (m *Manager) Recreate(dependents Dependents) (bool, error) {
	capabilities, err := m.surface.SurfaceCapabilities()
	if err != nil {
		return false, errors.Wrap(err, "querying surface capabilities")
	}

	width, height := m.window.DrawableSize()
	if zeroArea(capabilities, width, height) {
		m.logger.Debug("surface has no area, keeping the current swapchain")
		return false, nil
	}

	if err := m.device.WaitIdle(); err != nil {
		return false, errors.Wrap(err, "waiting for device idle")
	}

	old := m.chain
	old.ReleaseAttachments()
	if dependents != nil {
		dependents.ReleaseChainResources()
	}
	old.Destroy()
	if dependents != nil {
		dependents.ReleaseImageResources()
	}
	m.chain = nil

	chain, err := m.Build(capabilities, width, height)
	if err != nil {
		return false, err
	}

	if dependents != nil {
		if err := dependents.Rebuild(chain); err != nil {
			return false, err
		}
	}

	m.logger.Debug("swapchain recreated")
	return true, nil
}

// Destroy releases the current chain, if any.
func (m *Manager) Destroy() {
	m.chain.Destroy()
	m.chain = nil
}

func zeroArea(capabilities *khr_surface.SurfaceCapabilities, width, height int) bool {
	current := capabilities.CurrentExtent
	if current.Width == gpu.UndefinedExtent {
		return width <= 0 || height <= 0
	}
	return current.Width == 0 || current.Height == 0
}
