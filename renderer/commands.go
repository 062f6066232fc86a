package renderer

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/renderer/gpu"
	"github.com/vkngwrapper/renderer/present"
)

// recordCommandBuffers records the whole draw for every image once. They are only
// recorded again when the chain is rebuilt.
func (r *Renderer) recordCommandBuffers(chain *present.Chain) error {
	buffers, err := r.commandPool.Allocate(chain.ImageCount())
	if err != nil {
		return err
	}
	r.commandBuffers = buffers

	for i, buffer := range buffers {
		if err := r.recordDraw(buffer, i, chain.Extent()); err != nil {
			return gpu.ResourceError(err, "recording command buffer %d", i)
		}
	}
	return nil
}

func (r *Renderer) recordDraw(buffer core1_0.CommandBuffer, imageIndex int, extent core1_0.Extent2D) error {
	_, err := r.driver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{})
	if err != nil {
		return err
	}

	err = r.driver.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  r.renderPass.Get(),
			Framebuffer: r.framebuffers[imageIndex].Get(),
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: extent,
			},
			ClearValues: r.clearValues,
		})
	if err != nil {
		return err
	}

	r.driver.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, r.pipeline.Get())
	r.driver.CmdBindVertexBuffers(buffer, 0, []core1_0.Buffer{r.vertexBuffer.Get()}, []int{0})
	r.driver.CmdBindIndexBuffer(buffer, r.indexBuffer.Get(), 0, core1_0.IndexTypeUInt32)
	r.driver.CmdBindDescriptorSets(buffer, core1_0.PipelineBindPointGraphics, r.pipelineLayout.Get(), 0,
		[]core1_0.DescriptorSet{r.descriptorSets[imageIndex]}, nil)
	r.driver.CmdDrawIndexed(buffer, r.indexCount, 1, 0, 0, 0)
	r.driver.CmdEndRenderPass(buffer)

	_, err = r.driver.EndCommandBuffer(buffer)
	return err
}

// CommandBuffer returns the recorded draw for the image.
func (r *Renderer) CommandBuffer(imageIndex int) core1_0.CommandBuffer {
	return r.commandBuffers[imageIndex]
}
