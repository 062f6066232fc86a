package renderer

import (
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/renderer/gpu"
	"github.com/vkngwrapper/renderer/vkng"
)

type UniformBufferObject struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

var uniformSize = int(unsafe.Sizeof(UniformBufferObject{}))

// Clip maps OpenGL clip space onto Vulkan's: Y points down and depth runs from 0 to 1.
var Clip = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// computeUniforms spins the model a quarter turn per second around Z.
func computeUniforms(seconds float64, extent core1_0.Extent2D) UniformBufferObject {
	angle := math.Mod(seconds, 4) * math.Pi / 2
	aspect := float32(extent.Width) / float32(extent.Height)

	return UniformBufferObject{
		Model: mgl32.HomogRotate3DZ(float32(angle)),
		View: mgl32.LookAtV(
			mgl32.Vec3{2, 2, 2},
			mgl32.Vec3{0, 0, 0},
			mgl32.Vec3{0, 0, 1},
		),
		Proj: Clip.Mul4(mgl32.Perspective(mgl32.DegToRad(45), aspect, 0.1, 10)),
	}
}

func (r *Renderer) createUniformBuffers(count int) error {
	for i := 0; i < count; i++ {
		buffer, err := r.device.CreateBuffer(uniformSize, core1_0.BufferUsageUniformBuffer,
			core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
		if err != nil {
			return gpu.ResourceError(err, "creating uniform buffer %d", i)
		}
		r.uniformBuffers = append(r.uniformBuffers, buffer)
	}
	return nil
}

func (r *Renderer) createDescriptorPool(count int) error {
	pool, _, err := r.driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets: count,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: count,
			},
			{
				Type:            core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: count,
			},
		},
	})
	if err != nil {
		return gpu.ResourceError(err, "creating descriptor pool")
	}

	r.descriptorPool = gpu.NewHandle(pool, func(pool core1_0.DescriptorPool) {
		r.driver.DestroyDescriptorPool(pool, nil)
	})
	return nil
}

// createDescriptorSets allocates one set per image. The sets are freed with the pool.
func (r *Renderer) createDescriptorSets(count int) error {
	layouts := make([]core1_0.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = r.descriptorSetLayout.Get()
	}

	sets, _, err := r.driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: r.descriptorPool.Get(),
		SetLayouts:     layouts,
	})
	if err != nil {
		return gpu.ResourceError(err, "allocating %d descriptor sets", count)
	}
	r.descriptorSets = sets

	for i, set := range sets {
		err = r.driver.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
			{
				DstSet:          set,
				DstBinding:      0,
				DstArrayElement: 0,
				DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
				BufferInfo: []core1_0.DescriptorBufferInfo{
					{
						Buffer: r.uniformBuffers[i].Get(),
						Offset: 0,
						Range:  uniformSize,
					},
				},
			},
			{
				DstSet:          set,
				DstBinding:      1,
				DstArrayElement: 0,
				DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
				ImageInfo: []core1_0.DescriptorImageInfo{
					{
						ImageView:   r.textureView.Get(),
						Sampler:     r.sampler.Get(),
						ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
					},
				},
			},
		}, nil)
		if err != nil {
			return gpu.ResourceError(err, "writing descriptor set %d", i)
		}
	}
	return nil
}

// UpdateFrame writes the current transforms into the image's uniform buffer.
func (r *Renderer) UpdateFrame(imageIndex int) error {
	chain := r.manager.Chain()
	ubo := computeUniforms(r.elapsed().Seconds(), chain.Extent())
	return vkng.WriteData(r.driver, r.uniformBuffers[imageIndex].Memory.Get(), 0, &ubo)
}

