package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/renderer/assets"
	"github.com/vkngwrapper/renderer/gpu"
	"github.com/vkngwrapper/renderer/vkng"
)

const textureFormat = core1_0.FormatR8G8B8A8SRGB

func colorRange(baseMip, levels int) core1_0.ImageSubresourceRange {
	return core1_0.ImageSubresourceRange{
		AspectMask:     core1_0.ImageAspectColor,
		BaseMipLevel:   baseMip,
		LevelCount:     levels,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}

func colorLayers(mip int) core1_0.ImageSubresourceLayers {
	return core1_0.ImageSubresourceLayers{
		AspectMask:     core1_0.ImageAspectColor,
		MipLevel:       mip,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}

// mipBlits returns the blit from each level into the next, halving each side down to a
// minimum of one texel.
func mipBlits(width, height, levels int) []core1_0.ImageBlit {
	var blits []core1_0.ImageBlit
	for i := 1; i < levels; i++ {
		nextWidth, nextHeight := width, height
		if nextWidth > 1 {
			nextWidth /= 2
		}
		if nextHeight > 1 {
			nextHeight /= 2
		}

		blits = append(blits, core1_0.ImageBlit{
			SrcSubresource: colorLayers(i - 1),
			SrcOffsets: [2]core1_0.Offset3D{
				{X: 0, Y: 0, Z: 0},
				{X: width, Y: height, Z: 1},
			},
			DstSubresource: colorLayers(i),
			DstOffsets: [2]core1_0.Offset3D{
				{X: 0, Y: 0, Z: 0},
				{X: nextWidth, Y: nextHeight, Z: 1},
			},
		})

		width, height = nextWidth, nextHeight
	}
	return blits
}

// createTexture uploads the texture through a staging buffer and fills its mip chain
// on the graphics queue. Formats that cannot be blitted linearly get a single level.
func (r *Renderer) createTexture(texture *assets.Texture) error {
	mipLevels := texture.MipLevels()
	if !r.instance.SupportsLinearBlit(r.adapter, textureFormat) {
		r.logger.WithField("format", textureFormat).Warn("format cannot be blitted linearly, skipping mipmaps")
		mipLevels = 1
	}

	staging, err := r.device.CreateBuffer(texture.Size(), core1_0.BufferUsageTransferSrc,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return gpu.ResourceError(err, "creating texture staging buffer")
	}
	defer staging.Destroy()

	if err := vkng.WriteBytes(r.driver, staging.Memory.Get(), 0, texture.Pixels); err != nil {
		return err
	}

	r.texture, err = r.device.CreateImage(vkng.ImageSpec{
		Width:      texture.Width,
		Height:     texture.Height,
		MipLevels:  mipLevels,
		Samples:    core1_0.Samples1,
		Format:     textureFormat,
		Tiling:     core1_0.ImageTilingOptimal,
		Usage:      core1_0.ImageUsageTransferSrc | core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled,
		Properties: core1_0.MemoryPropertyDeviceLocal,
	})
	if err != nil {
		return gpu.ResourceError(err, "creating texture image")
	}

	err = r.commandPool.RunOnce(func(buffer core1_0.CommandBuffer) error {
		return r.recordTextureUpload(buffer, staging, r.texture)
	})
	if err != nil {
		return errors.Wrap(err, "uploading texture")
	}

	r.textureView, err = r.device.CreateImageView(r.texture.Get(), textureFormat, core1_0.ImageAspectColor, mipLevels)
	if err != nil {
		return gpu.ResourceError(err, "creating texture view")
	}

	return r.createSampler(mipLevels)
}

func (r *Renderer) recordTextureUpload(buffer core1_0.CommandBuffer, staging *vkng.Buffer, image *vkng.Image) error {
	err := r.driver.CmdPipelineBarrier(buffer, core1_0.PipelineStageTopOfPipe, core1_0.PipelineStageTransfer, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           core1_0.ImageLayoutUndefined,
			NewLayout:           core1_0.ImageLayoutTransferDstOptimal,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               image.Get(),
			SubresourceRange:    colorRange(0, image.MipLevels),
			SrcAccessMask:       0,
			DstAccessMask:       core1_0.AccessTransferWrite,
		},
	})
	if err != nil {
		return err
	}

	err = r.driver.CmdCopyBufferToImage(buffer, staging.Get(), image.Get(), core1_0.ImageLayoutTransferDstOptimal,
		core1_0.BufferImageCopy{
			ImageSubresource: colorLayers(0),
			ImageOffset:      core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent:      core1_0.Extent3D{Width: image.Width, Height: image.Height, Depth: 1},
		},
	)
	if err != nil {
		return err
	}

	barrier := core1_0.ImageMemoryBarrier{
		Image:               image.Get(),
		SrcQueueFamilyIndex: -1,
		DstQueueFamilyIndex: -1,
		SubresourceRange:    colorRange(0, 1),
	}

	for _, blit := range mipBlits(image.Width, image.Height, image.MipLevels) {
		source := blit.SrcSubresource.MipLevel

		barrier.SubresourceRange.BaseMipLevel = source
		barrier.OldLayout = core1_0.ImageLayoutTransferDstOptimal
		barrier.NewLayout = core1_0.ImageLayoutTransferSrcOptimal
		barrier.SrcAccessMask = core1_0.AccessTransferWrite
		barrier.DstAccessMask = core1_0.AccessTransferRead
		err = r.driver.CmdPipelineBarrier(buffer, core1_0.PipelineStageTransfer, core1_0.PipelineStageTransfer, 0, nil, nil, []core1_0.ImageMemoryBarrier{barrier})
		if err != nil {
			return err
		}

		err = r.driver.CmdBlitImage(buffer,
			image.Get(), core1_0.ImageLayoutTransferSrcOptimal,
			image.Get(), core1_0.ImageLayoutTransferDstOptimal,
			[]core1_0.ImageBlit{blit}, core1_0.FilterLinear)
		if err != nil {
			return err
		}

		barrier.OldLayout = core1_0.ImageLayoutTransferSrcOptimal
		barrier.NewLayout = core1_0.ImageLayoutShaderReadOnlyOptimal
		barrier.SrcAccessMask = core1_0.AccessTransferRead
		barrier.DstAccessMask = core1_0.AccessShaderRead
		err = r.driver.CmdPipelineBarrier(buffer, core1_0.PipelineStageTransfer, core1_0.PipelineStageFragmentShader, 0, nil, nil, []core1_0.ImageMemoryBarrier{barrier})
		if err != nil {
			return err
		}
	}

	// The last level was only ever written.
	barrier.SubresourceRange.BaseMipLevel = image.MipLevels - 1
	barrier.OldLayout = core1_0.ImageLayoutTransferDstOptimal
	barrier.NewLayout = core1_0.ImageLayoutShaderReadOnlyOptimal
	barrier.SrcAccessMask = core1_0.AccessTransferWrite
	barrier.DstAccessMask = core1_0.AccessShaderRead
	return r.driver.CmdPipelineBarrier(buffer, core1_0.PipelineStageTransfer, core1_0.PipelineStageFragmentShader, 0, nil, nil, []core1_0.ImageMemoryBarrier{barrier})
}

func (r *Renderer) createSampler(mipLevels int) error {
	info := core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeRepeat,
		AddressModeV: core1_0.SamplerAddressModeRepeat,
		AddressModeW: core1_0.SamplerAddressModeRepeat,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
		MinLod:     0,
		MaxLod:     float32(mipLevels),
	}
	if r.adapter.Features != nil && r.adapter.Features.SamplerAnisotropy {
		info.AnisotropyEnable = true
		info.MaxAnisotropy = r.adapter.Properties.Limits.MaxSamplerAnisotropy
	}

	sampler, _, err := r.driver.CreateSampler(nil, info)
	if err != nil {
		return gpu.ResourceError(err, "creating texture sampler")
	}

	r.sampler = gpu.NewHandle(sampler, func(sampler core1_0.Sampler) {
		r.driver.DestroySampler(sampler, nil)
	})
	return nil
}
