// Package renderer draws a textured, spinning mesh on top of the gpu, vkng and present
// packages.
package renderer

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/renderer/assets"
	"github.com/vkngwrapper/renderer/config"
	"github.com/vkngwrapper/renderer/gpu"
	"github.com/vkngwrapper/renderer/pipelinecache"
	"github.com/vkngwrapper/renderer/platform"
	"github.com/vkngwrapper/renderer/present"
	"github.com/vkngwrapper/renderer/vkng"
)

type Options struct {
	Config config.Configuration
	Window platform.Window
	Global core1_0.GlobalDriver
	Assets *assets.Assets
	Logger logrus.FieldLogger
}

// Renderer owns every Vulkan object needed to draw the scene. It must be used from the
// goroutine that created it, except for NotifyResized.
type Renderer struct {
	logger logrus.FieldLogger

	instance  *vkng.Instance
	context   *gpu.Context[*vkng.Device]
	device    *vkng.Device
	driver    core1_0.CoreDeviceDriver
	adapter   *gpu.Adapter
	manager   *present.Manager
	scheduler *present.Scheduler

	cacheStore    *pipelinecache.Store
	pipelineCache *gpu.Handle[core1_0.PipelineCache]
	commandPool   *vkng.CommandPool

	vertexShader   []uint32
	fragmentShader []uint32

	vertexBuffer *vkng.Buffer
	indexBuffer  *vkng.Buffer
	indexCount   int

	texture     *vkng.Image
	textureView *gpu.Handle[core1_0.ImageView]
	sampler     *gpu.Handle[core1_0.Sampler]

	descriptorSetLayout *gpu.Handle[core1_0.DescriptorSetLayout]

	// Rebuilt with the chain.
	renderPass     *gpu.Handle[core1_0.RenderPass]
	clearValues    []core1_0.ClearValue
	pipelineLayout *gpu.Handle[core1_0.PipelineLayout]
	pipeline       *gpu.Handle[core1_0.Pipeline]
	framebuffers   []*gpu.Handle[core1_0.Framebuffer]
	commandBuffers []core1_0.CommandBuffer

	// Rebuilt per swapchain image.
	uniformBuffers []*vkng.Buffer
	descriptorPool *gpu.Handle[core1_0.DescriptorPool]
	descriptorSets []core1_0.DescriptorSet

	start time.Duration
}

var (
	_ present.FrameSource = (*Renderer)(nil)
	_ present.Dependents  = (*Renderer)(nil)
)

// New brings up the whole stack: instance, surface, adapter, device, swapchain and the
// scene resources. On failure everything created so far is destroyed.
func New(options Options) (*Renderer, error) {
	logger := options.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cfg := options.Config

	r := &Renderer{
		logger:         logger.WithField("component", "renderer"),
		cacheStore:     pipelinecache.NewStore(cfg.PipelineCache, logger),
		vertexShader:   options.Assets.VertexShader,
		fragmentShader: options.Assets.FragmentShader,
		start:          hrtime.Now(),
	}

	if err := r.init(options, logger); err != nil {
		r.Destroy()
		return nil, err
	}
	return r, nil
}

func (r *Renderer) init(options Options, logger logrus.FieldLogger) error {
	cfg := options.Config
	var err error

	r.instance, err = vkng.NewInstance(options.Global, vkng.InstanceOptions{
		ApplicationName:       cfg.Window.Title,
		Extensions:            options.Window.RequiredExtensions(),
		Validation:            cfg.Debug.Validation,
		FailOnValidationError: cfg.Debug.FailOnValidationError,
		Logger:                logger,
	})
	if err != nil {
		return err
	}

	if err := r.instance.AttachSurface(options.Window); err != nil {
		return err
	}

	required, err := cfg.RequiredFeatures()
	if err != nil {
		return err
	}
	features := gpu.MergeFeatures(&core1_0.PhysicalDeviceFeatures{SamplerAnisotropy: true}, required)
	selector, err := gpu.NewSelector(r.instance, logger)
	if err != nil {
		return err
	}
	r.adapter, err = selector.
		PresetGraphics(cfg.Device.MinDeviceLocalMemory).
		PreferDeviceType(cfg.DevicePreference()).
		RequireFeatures(features).
		Select()
	if err != nil {
		return err
	}

	families := r.adapter.FindQueueFamilies()
	builder := gpu.NewDeviceBuilder(r.adapter).
		QueueFamilies(families).
		Extensions(khr_swapchain.ExtensionName).
		Features(features)
	r.context, err = gpu.BuildDevice[*vkng.Device](builder, vkng.NewDeviceFactory(r.instance, logger))
	if err != nil {
		return err
	}
	r.device = r.context.Device()
	r.driver = r.device.Driver()

	graphics, _ := r.context.Queue(*families.GraphicsFamily, 0)
	presentQueue, _ := r.context.Queue(*families.PresentFamily, 0)
	r.device.UseQueues(graphics, presentQueue)

	depthFormat, err := r.instance.FindDepthFormat(r.adapter)
	if err != nil {
		return err
	}

	r.manager = present.NewManager(r.device, r.instance.SurfaceQuery(r.adapter), options.Window, present.Options{
		Surface:       r.instance.Surface(),
		Formats:       r.adapter.Surface.Formats,
		PresentModes:  r.adapter.Surface.PresentModes,
		QueueFamilies: families,
		Samples:       sampleCount(r.adapter.MaxUsableSampleCount(), cfg.Device.MaxSamples),
		DepthFormat:   depthFormat,
		Logger:        logger,
	})

	r.commandPool, err = r.device.CreateCommandPool(*families.GraphicsFamily, 0)
	if err != nil {
		return err
	}

	if err := r.createDescriptorSetLayout(); err != nil {
		return err
	}
	if err := r.createPipelineCache(); err != nil {
		return err
	}
	if err := r.uploadMesh(options.Assets.Mesh); err != nil {
		return err
	}
	if err := r.createTexture(options.Assets.Texture); err != nil {
		return err
	}

	capabilities, err := r.instance.SurfaceQuery(r.adapter).SurfaceCapabilities()
	if err != nil {
		return errors.Wrap(err, "querying surface capabilities")
	}
	width, height := options.Window.DrawableSize()
	chain, err := r.manager.Build(capabilities, width, height)
	if err != nil {
		return err
	}
	if err := r.Rebuild(chain); err != nil {
		return err
	}

	r.scheduler, err = present.NewScheduler(r.device, r, logger)
	if err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"adapter": r.adapter.Name(),
		"samples": chain.Samples(),
		"extent":  chain.Extent(),
	}).Info("renderer ready")
	return nil
}

// sampleCount caps the adapter's maximum. A limit of zero means no cap.
func sampleCount(maxSamples core1_0.SampleCountFlags, limit int) core1_0.SampleCountFlags {
	if limit == 0 || int(maxSamples) <= limit {
		return maxSamples
	}
	return core1_0.SampleCountFlags(limit)
}

func (r *Renderer) uploadMesh(mesh *assets.Mesh) error {
	vertices, err := vkng.Encode(mesh.Vertices)
	if err != nil {
		return errors.Wrap(err, "encoding vertices")
	}
	r.vertexBuffer, err = r.commandPool.StageBuffer(vertices, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return errors.Wrap(err, "uploading vertices")
	}

	indices, err := vkng.Encode(mesh.Indices)
	if err != nil {
		return errors.Wrap(err, "encoding indices")
	}
	r.indexBuffer, err = r.commandPool.StageBuffer(indices, core1_0.BufferUsageIndexBuffer)
	if err != nil {
		return errors.Wrap(err, "uploading indices")
	}
	r.indexCount = len(mesh.Indices)

	r.logger.WithFields(logrus.Fields{
		"vertices": len(mesh.Vertices),
		"indices":  len(mesh.Indices),
	}).Debug("mesh uploaded")
	return nil
}

// Rebuild creates everything that depends on the chain's format, extent and image count.
func (r *Renderer) Rebuild(chain *present.Chain) error {
	layout := layoutOf(chain)
	if err := r.createRenderPass(layout); err != nil {
		return err
	}
	if err := r.createGraphicsPipeline(chain.Extent(), layout.samples, layout.hasDepth()); err != nil {
		return err
	}
	if err := r.createFramebuffers(chain); err != nil {
		return err
	}
	if err := r.createUniformBuffers(chain.ImageCount()); err != nil {
		return err
	}
	if err := r.createDescriptorPool(chain.ImageCount()); err != nil {
		return err
	}
	if err := r.createDescriptorSets(chain.ImageCount()); err != nil {
		return err
	}
	return r.recordCommandBuffers(chain)
}

func (r *Renderer) ReleaseChainResources() {
	gpu.DestroyAll(r.framebuffers)
	r.framebuffers = nil

	r.commandPool.Free(r.commandBuffers)
	r.commandBuffers = nil

	r.pipeline.Destroy()
	r.pipelineLayout.Destroy()
	r.renderPass.Destroy()
}

func (r *Renderer) ReleaseImageResources() {
	for _, buffer := range r.uniformBuffers {
		buffer.Destroy()
	}
	r.uniformBuffers = nil

	r.descriptorPool.Destroy()
	r.descriptorSets = nil
}

func (r *Renderer) Chain() *present.Chain {
	return r.manager.Chain()
}

func (r *Renderer) Recreate() (bool, error) {
	return r.manager.Recreate(r)
}

// DrawFrame renders one frame, or returns the first error the validation layers
// reported when the configuration asks for that.
func (r *Renderer) DrawFrame() error {
	if err := r.instance.ValidationError(); err != nil {
		return err
	}
	return r.scheduler.DrawFrame()
}

// NotifyResized asks for the chain to be rebuilt before the next frame is presented.
func (r *Renderer) NotifyResized() {
	if r.scheduler != nil {
		r.scheduler.NotifyResized()
	}
}

func (r *Renderer) elapsed() time.Duration {
	return hrtime.Since(r.start)
}

// Destroy waits for the device and releases everything in reverse creation order. It is
// safe on a partially constructed renderer.
func (r *Renderer) Destroy() {
	if r.device != nil {
		if err := r.device.WaitIdle(); err != nil {
			r.logger.WithError(err).Warn("device did not go idle")
		}
	}

	if r.scheduler != nil {
		r.scheduler.Destroy()
		r.scheduler = nil
	}

	if r.manager != nil {
		if chain := r.manager.Chain(); chain != nil {
			chain.ReleaseAttachments()
		}
		r.ReleaseChainResources()
		r.manager.Destroy()
		r.ReleaseImageResources()
		r.manager = nil
	}

	r.sampler.Destroy()
	r.textureView.Destroy()
	r.texture.Destroy()
	r.indexBuffer.Destroy()
	r.vertexBuffer.Destroy()

	r.savePipelineCache()
	r.pipelineCache.Destroy()
	r.descriptorSetLayout.Destroy()
	r.commandPool.Destroy()

	if r.context != nil {
		r.context.Destroy()
		r.context = nil
		r.device = nil
	}
	if r.instance != nil {
		r.instance.Destroy()
		r.instance = nil
	}
}
