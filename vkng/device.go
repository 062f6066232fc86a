package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/renderer/gpu"
	"github.com/vkngwrapper/renderer/present"
)

// DeviceFactory creates logical devices from an instance.
type DeviceFactory struct {
	instance *Instance
	logger   logrus.FieldLogger
}

func NewDeviceFactory(instance *Instance, logger logrus.FieldLogger) *DeviceFactory {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DeviceFactory{instance: instance, logger: logger.WithField("component", "device")}
}

// CreateDevice enables the portability subset whenever the adapter offers it.
func (f *DeviceFactory) CreateDevice(adapter *gpu.Adapter, info core1_0.DeviceCreateInfo) (*Device, error) {
	if adapter.HasExtension(khr_portability_subset.ExtensionName) {
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, khr_portability_subset.ExtensionName)
	}

	driver, _, err := f.instance.driver.CreateDevice(adapter.Handle, nil, info)
	if err != nil {
		return nil, err
	}

	d := &Device{
		driver:   driver,
		instance: f.instance,
		adapter:  adapter,
		logger:   f.logger.WithField("adapter", adapter.Name()),
	}
	for _, extension := range info.EnabledExtensionNames {
		if extension == khr_swapchain.ExtensionName {
			d.swapchainDriver = khr_swapchain.CreateExtensionDriverFromCoreDriver(driver)
		}
	}

	d.logger.WithField("extensions", info.EnabledExtensionNames).Info("logical device created")
	return d, nil
}

// Device is a logical device. Once UseQueues has been called it can drive the swapchain
// and the frame loop.
type Device struct {
	driver          core1_0.CoreDeviceDriver
	swapchainDriver khr_swapchain.ExtensionDriver
	instance        *Instance
	adapter         *gpu.Adapter
	logger          logrus.FieldLogger

	graphics core1_0.Queue
	present  core1_0.Queue
}

var (
	_ gpu.LogicalDevice   = (*Device)(nil)
	_ present.ChainDevice = (*Device)(nil)
	_ present.SyncDevice  = (*Device)(nil)
)

func (d *Device) Queue(family, index int) core1_0.Queue {
	return d.driver.GetQueue(family, index)
}

// UseQueues sets the queues that submission and presentation go to.
func (d *Device) UseQueues(graphics, present core1_0.Queue) {
	d.graphics = graphics
	d.present = present
}

func (d *Device) Driver() core1_0.CoreDeviceDriver {
	return d.driver
}

func (d *Device) Adapter() *gpu.Adapter {
	return d.adapter
}

func (d *Device) GraphicsQueue() core1_0.Queue {
	return d.graphics
}

func (d *Device) Destroy() {
	if d.driver == nil {
		return
	}
	d.driver.DestroyDevice(nil)
	d.driver = nil
	d.swapchainDriver = nil
}

func (d *Device) WaitIdle() error {
	_, err := d.driver.DeviceWaitIdle()
	return err
}

func (d *Device) CreateSwapchain(info khr_swapchain.SwapchainCreateInfo) (*gpu.Handle[khr_swapchain.Swapchain], error) {
	if d.swapchainDriver == nil {
		return nil, errors.AssertionFailedf("device was created without %s", khr_swapchain.ExtensionName)
	}

	swapchain, _, err := d.swapchainDriver.CreateSwapchain(nil, info)
	if err != nil {
		return nil, err
	}
	return gpu.NewHandle(swapchain, func(swapchain khr_swapchain.Swapchain) {
		d.swapchainDriver.DestroySwapchain(swapchain, nil)
	}), nil
}

func (d *Device) SwapchainImages(swapchain khr_swapchain.Swapchain) ([]core1_0.Image, error) {
	images, _, err := d.swapchainDriver.GetSwapchainImages(swapchain)
	return images, err
}

func (d *Device) CreateImageView(image core1_0.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags, mipLevels int) (*gpu.Handle[core1_0.ImageView], error) {
	view, _, err := d.driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     mipLevels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return nil, err
	}
	return gpu.NewHandle(view, func(view core1_0.ImageView) {
		d.driver.DestroyImageView(view, nil)
	}), nil
}

// CreateImage creates an image and binds it to a fresh allocation.
func (d *Device) CreateImage(spec ImageSpec) (*Image, error) {
	if spec.MipLevels == 0 {
		spec.MipLevels = 1
	}
	if spec.Samples == 0 {
		spec.Samples = core1_0.Samples1
	}

	handle, _, err := d.driver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  spec.Width,
			Height: spec.Height,
			Depth:  1,
		},
		MipLevels:     spec.MipLevels,
		ArrayLayers:   1,
		Format:        spec.Format,
		Tiling:        spec.Tiling,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         spec.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       spec.Samples,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating image")
	}

	image := &Image{
		Image: gpu.NewHandle(handle, func(image core1_0.Image) {
			d.driver.DestroyImage(image, nil)
		}),
		Format:    spec.Format,
		Width:     spec.Width,
		Height:    spec.Height,
		MipLevels: spec.MipLevels,
	}

	requirements := d.driver.GetImageMemoryRequirements(handle)
	image.Memory, err = d.allocate(requirements, spec.Properties)
	if err != nil {
		image.Destroy()
		return nil, err
	}

	if _, err := d.driver.BindImageMemory(handle, image.Memory.Get(), 0); err != nil {
		image.Destroy()
		return nil, errors.Wrap(err, "binding image memory")
	}
	return image, nil
}

// CreateAttachment creates a device-local render target with its view.
func (d *Device) CreateAttachment(spec present.AttachmentSpec) (*present.Attachment, error) {
	image, err := d.CreateImage(ImageSpec{
		Width:      spec.Extent.Width,
		Height:     spec.Extent.Height,
		Samples:    spec.Samples,
		Format:     spec.Format,
		Tiling:     core1_0.ImageTilingOptimal,
		Usage:      spec.Usage,
		Properties: core1_0.MemoryPropertyDeviceLocal,
	})
	if err != nil {
		return nil, err
	}

	view, err := d.CreateImageView(image.Get(), spec.Format, spec.Aspect, 1)
	if err != nil {
		image.Destroy()
		return nil, errors.Wrap(err, "creating attachment view")
	}

	return &present.Attachment{
		Image:  image.Image,
		Memory: image.Memory,
		View:   view,
		Format: spec.Format,
	}, nil
}

// CreateBuffer creates a buffer and binds it to a fresh allocation.
func (d *Device) CreateBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (*Buffer, error) {
	handle, _, err := d.driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating buffer")
	}

	buffer := &Buffer{
		Buffer: gpu.NewHandle(handle, func(buffer core1_0.Buffer) {
			d.driver.DestroyBuffer(buffer, nil)
		}),
		Size: size,
	}

	requirements := d.driver.GetBufferMemoryRequirements(handle)
	buffer.Memory, err = d.allocate(requirements, properties)
	if err != nil {
		buffer.Destroy()
		return nil, err
	}

	if _, err := d.driver.BindBufferMemory(handle, buffer.Memory.Get(), 0); err != nil {
		buffer.Destroy()
		return nil, errors.Wrap(err, "binding buffer memory")
	}
	return buffer, nil
}

func (d *Device) allocate(requirements *core1_0.MemoryRequirements, properties core1_0.MemoryPropertyFlags) (*gpu.Handle[core1_0.DeviceMemory], error) {
	memoryType, err := FindMemoryType(d.adapter.Memory, requirements.MemoryTypeBits, properties)
	if err != nil {
		return nil, err
	}

	memory, _, err := d.driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryType,
	})
	if err != nil {
		return nil, errors.Wrap(err, "allocating memory")
	}
	return gpu.NewHandle(memory, func(memory core1_0.DeviceMemory) {
		d.driver.FreeMemory(memory, nil)
	}), nil
}

// Upload fills a host-visible buffer.
func (d *Device) Upload(buffer *Buffer, data any) error {
	return WriteData(d.driver, buffer.Memory.Get(), 0, data)
}

func (d *Device) CreateSemaphore() (*present.Semaphore, error) {
	semaphore, _, err := d.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, err
	}
	return gpu.NewHandle(semaphore, func(semaphore core1_0.Semaphore) {
		d.driver.DestroySemaphore(semaphore, nil)
	}), nil
}

func (d *Device) CreateFence(signaled bool) (*present.Fence, error) {
	info := core1_0.FenceCreateInfo{}
	if signaled {
		info.Flags = core1_0.FenceCreateSignaled
	}

	fence, _, err := d.driver.CreateFence(nil, info)
	if err != nil {
		return nil, err
	}
	return gpu.NewHandle(fence, func(fence core1_0.Fence) {
		d.driver.DestroyFence(fence, nil)
	}), nil
}

func (d *Device) WaitForFence(fence *present.Fence) error {
	_, err := d.driver.WaitForFences(true, common.NoTimeout, fence.Get())
	return err
}

func (d *Device) ResetFence(fence *present.Fence) error {
	_, err := d.driver.ResetFences(fence.Get())
	return err
}

// AcquireNextImage reports an out of date chain as a status rather than an error.
func (d *Device) AcquireNextImage(chain *present.Chain, signal *present.Semaphore) (int, present.Status, error) {
	semaphore := signal.Get()
	imageIndex, res, err := d.swapchainDriver.AcquireNextImage(chain.Swapchain(), common.NoTimeout, &semaphore, nil)

	switch {
	case res == khr_swapchain.VKErrorOutOfDate:
		return 0, present.StatusOutOfDate, nil
	case err != nil:
		return 0, present.StatusOK, err
	case res == khr_swapchain.VKSuboptimal:
		return imageIndex, present.StatusSuboptimal, nil
	}
	return imageIndex, present.StatusOK, nil
}

func (d *Device) Submit(submission present.Submission) error {
	fence := submission.Fence.Get()
	_, err := d.driver.QueueSubmit(d.graphics, &fence, core1_0.SubmitInfo{
		WaitSemaphores:   []core1_0.Semaphore{submission.Wait.Get()},
		WaitDstStageMask: []core1_0.PipelineStageFlags{submission.WaitStage},
		CommandBuffers:   []core1_0.CommandBuffer{submission.Commands},
		SignalSemaphores: []core1_0.Semaphore{submission.Signal.Get()},
	})
	return err
}

func (d *Device) Present(chain *present.Chain, imageIndex int, wait *present.Semaphore) (present.Status, error) {
	res, err := d.swapchainDriver.QueuePresent(d.present, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{wait.Get()},
		Swapchains:     []khr_swapchain.Swapchain{chain.Swapchain()},
		ImageIndices:   []int{imageIndex},
	})

	switch {
	case res == khr_swapchain.VKErrorOutOfDate:
		return present.StatusOutOfDate, nil
	case err != nil:
		return present.StatusOK, err
	case res == khr_swapchain.VKSuboptimal:
		return present.StatusSuboptimal, nil
	}
	return present.StatusOK, nil
}
