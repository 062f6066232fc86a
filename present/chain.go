package present

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/renderer/gpu"
)

// Attachment is an image with its own memory and view, sized to the chain.
type Attachment struct {
	Image  *gpu.Handle[core1_0.Image]
	Memory *gpu.Handle[core1_0.DeviceMemory]
	View   *gpu.Handle[core1_0.ImageView]
	Format core1_0.Format
}

// Destroy releases the view, then the image, then its memory.
func (a *Attachment) Destroy() {
	if a == nil {
		return
	}
	a.View.Destroy()
	a.Image.Destroy()
	a.Memory.Destroy()
}

// Chain is a swapchain together with one view per image and the multisampled color and
// depth attachments rendered alongside it.
type Chain struct {
	swapchain *gpu.Handle[khr_swapchain.Swapchain]
	images    []core1_0.Image
	views     []*gpu.Handle[core1_0.ImageView]

	format      khr_surface.SurfaceFormat
	presentMode khr_surface.PresentMode
	extent      core1_0.Extent2D

	sharingMode   core1_0.SharingMode
	queueFamilies []int

	samples core1_0.SampleCountFlags
	color   *Attachment
	depth   *Attachment
}

func (c *Chain) Swapchain() khr_swapchain.Swapchain {
	return c.swapchain.Get()
}

func (c *Chain) Live() bool {
	return c != nil && c.swapchain.Live()
}

func (c *Chain) ImageCount() int {
	if c == nil {
		return 0
	}
	return len(c.images)
}

func (c *Chain) Images() []core1_0.Image {
	return c.images
}

func (c *Chain) View(index int) core1_0.ImageView {
	return c.views[index].Get()
}

func (c *Chain) Format() khr_surface.SurfaceFormat {
	return c.format
}

func (c *Chain) PresentMode() khr_surface.PresentMode {
	return c.presentMode
}

func (c *Chain) Extent() core1_0.Extent2D {
	return c.extent
}

// SharingMode is concurrent only when graphics and presentation use different families.
func (c *Chain) SharingMode() core1_0.SharingMode {
	return c.sharingMode
}

func (c *Chain) QueueFamilies() []int {
	return c.queueFamilies
}

func (c *Chain) Samples() core1_0.SampleCountFlags {
	return c.samples
}

// ColorAttachment is nil when rendering single-sampled.
func (c *Chain) ColorAttachment() *Attachment {
	return c.color
}

// DepthAttachment is nil when no depth format was configured.
func (c *Chain) DepthAttachment() *Attachment {
	return c.depth
}

// FramebufferAttachments lists the views a framebuffer for image index binds, in
// color, depth, resolve order. Missing attachments are skipped.
func (c *Chain) FramebufferAttachments(index int) []core1_0.ImageView {
	var views []core1_0.ImageView
	if c.color != nil {
		views = append(views, c.color.View.Get())
	}
	if c.depth != nil {
		views = append(views, c.depth.View.Get())
	}
	return append(views, c.View(index))
}

// ReleaseAttachments destroys the color and depth attachments and leaves the
// swapchain and its views alone.
func (c *Chain) ReleaseAttachments() {
	if c == nil {
		return
	}
	c.color.Destroy()
	c.color = nil
	c.depth.Destroy()
	c.depth = nil
}

// Destroy releases the attachments, every view and finally the swapchain. It may be
// called on a partially built chain and any number of times.
func (c *Chain) Destroy() {
	if c == nil {
		return
	}
	c.ReleaseAttachments()

	gpu.DestroyAll(c.views)
	c.views = nil

	c.swapchain.Destroy()
	c.images = nil
}
