package renderer

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/renderer/gpu"
	"github.com/vkngwrapper/renderer/present"
)

// attachmentLayout lists the render pass attachments in the order present.Chain binds
// them to framebuffers: multisampled color, depth, then the swapchain image.
type attachmentLayout struct {
	format      core1_0.Format
	depthFormat core1_0.Format
	samples     core1_0.SampleCountFlags
}

func (l attachmentLayout) multisampled() bool {
	return l.samples != core1_0.Samples1
}

func (l attachmentLayout) hasDepth() bool {
	return l.depthFormat != core1_0.FormatUndefined
}

func (l attachmentLayout) renderPassInfo() core1_0.RenderPassCreateInfo {
	var attachments []core1_0.AttachmentDescription
	subpass := core1_0.SubpassDescription{
		PipelineBindPoint: core1_0.PipelineBindPointGraphics,
	}

	if l.multisampled() {
		attachments = append(attachments, core1_0.AttachmentDescription{
			Format:         l.format,
			Samples:        l.samples,
			LoadOp:         core1_0.AttachmentLoadOpClear,
			StoreOp:        core1_0.AttachmentStoreOpStore,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutUndefined,
			FinalLayout:    core1_0.ImageLayoutColorAttachmentOptimal,
		})
		subpass.ColorAttachments = []core1_0.AttachmentReference{
			{Attachment: len(attachments) - 1, Layout: core1_0.ImageLayoutColorAttachmentOptimal},
		}
	}

	if l.hasDepth() {
		attachments = append(attachments, core1_0.AttachmentDescription{
			Format:         l.depthFormat,
			Samples:        l.samples,
			LoadOp:         core1_0.AttachmentLoadOpClear,
			StoreOp:        core1_0.AttachmentStoreOpDontCare,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutUndefined,
			FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.DepthStencilAttachment = &core1_0.AttachmentReference{
			Attachment: len(attachments) - 1,
			Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	presented := core1_0.AttachmentDescription{
		Format:         l.format,
		Samples:        core1_0.Samples1,
		LoadOp:         core1_0.AttachmentLoadOpClear,
		StoreOp:        core1_0.AttachmentStoreOpStore,
		StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
		StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
		InitialLayout:  core1_0.ImageLayoutUndefined,
		FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
	}
	if l.multisampled() {
		// Fully overwritten by the resolve.
		presented.LoadOp = core1_0.AttachmentLoadOpDontCare
	}
	attachments = append(attachments, presented)

	reference := []core1_0.AttachmentReference{
		{Attachment: len(attachments) - 1, Layout: core1_0.ImageLayoutColorAttachmentOptimal},
	}
	if l.multisampled() {
		subpass.ResolveAttachments = reference
	} else {
		subpass.ColorAttachments = reference
	}

	stages := core1_0.PipelineStageColorAttachmentOutput
	access := core1_0.AccessColorAttachmentWrite
	if l.hasDepth() {
		stages |= core1_0.PipelineStageEarlyFragmentTests
		access |= core1_0.AccessDepthStencilAttachmentWrite
	}

	return core1_0.RenderPassCreateInfo{
		Attachments: attachments,
		Subpasses:   []core1_0.SubpassDescription{subpass},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  stages,
				SrcAccessMask: 0,

				DstStageMask:  stages,
				DstAccessMask: access,
			},
		},
	}
}

// clearValues has one entry per attachment, in attachment order.
func (l attachmentLayout) clearValues() []core1_0.ClearValue {
	var values []core1_0.ClearValue
	if l.multisampled() {
		values = append(values, core1_0.ClearValueFloat{0, 0, 0, 1})
	}
	if l.hasDepth() {
		values = append(values, core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0})
	}
	return append(values, core1_0.ClearValueFloat{0, 0, 0, 1})
}

func layoutOf(chain *present.Chain) attachmentLayout {
	layout := attachmentLayout{
		format:      chain.Format().Format,
		depthFormat: core1_0.FormatUndefined,
		samples:     chain.Samples(),
	}
	if depth := chain.DepthAttachment(); depth != nil {
		layout.depthFormat = depth.Format
	}
	return layout
}

func (r *Renderer) createRenderPass(layout attachmentLayout) error {
	renderPass, _, err := r.driver.CreateRenderPass(nil, layout.renderPassInfo())
	if err != nil {
		return gpu.ResourceError(err, "creating render pass")
	}

	r.renderPass = gpu.NewHandle(renderPass, func(renderPass core1_0.RenderPass) {
		r.driver.DestroyRenderPass(renderPass, nil)
	})
	r.clearValues = layout.clearValues()
	return nil
}

func (r *Renderer) createFramebuffers(chain *present.Chain) error {
	extent := chain.Extent()
	for i := 0; i < chain.ImageCount(); i++ {
		framebuffer, _, err := r.driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass:  r.renderPass.Get(),
			Layers:      1,
			Attachments: chain.FramebufferAttachments(i),
			Width:       extent.Width,
			Height:      extent.Height,
		})
		if err != nil {
			return gpu.ResourceError(err, "creating framebuffer %d", i)
		}

		r.framebuffers = append(r.framebuffers, gpu.NewHandle(framebuffer, func(framebuffer core1_0.Framebuffer) {
			r.driver.DestroyFramebuffer(framebuffer, nil)
		}))
	}
	return nil
}
