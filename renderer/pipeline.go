package renderer

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/renderer/assets"
	"github.com/vkngwrapper/renderer/gpu"
	"github.com/vkngwrapper/renderer/pipelinecache"
)

func (r *Renderer) createDescriptorSetLayout() error {
	layout, _, err := r.driver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,

				StageFlags: core1_0.StageVertex,
			},
			{
				Binding:         1,
				DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: 1,

				StageFlags: core1_0.StageFragment,
			},
		},
	})
	if err != nil {
		return gpu.ResourceError(err, "creating descriptor set layout")
	}

	r.descriptorSetLayout = gpu.NewHandle(layout, func(layout core1_0.DescriptorSetLayout) {
		r.driver.DestroyDescriptorSetLayout(layout, nil)
	})
	return nil
}

// createPipelineCache seeds the cache with whatever the store kept from an earlier run
// on the same device.
func (r *Renderer) createPipelineCache() error {
	initial, err := r.cacheStore.Load(pipelinecache.IdentityOf(r.adapter.Properties))
	if err != nil {
		r.logger.WithError(err).Warn("starting with an empty pipeline cache")
		initial = nil
	}

	cache, _, err := r.driver.CreatePipelineCache(nil, core1_0.PipelineCacheCreateInfo{
		InitialData: initial,
	})
	if err != nil {
		return gpu.ResourceError(err, "creating pipeline cache")
	}

	r.pipelineCache = gpu.NewHandle(cache, func(cache core1_0.PipelineCache) {
		r.driver.DestroyPipelineCache(cache, nil)
	})
	return nil
}

// savePipelineCache stores the cache contents for the next run. Failures only cost
// startup time later, so they are logged and dropped.
func (r *Renderer) savePipelineCache() {
	if !r.pipelineCache.Live() {
		return
	}

	data, _, err := r.driver.GetPipelineCacheData(r.pipelineCache.Get())
	if err == nil {
		err = r.cacheStore.Save(data)
	}
	if err != nil {
		r.logger.WithError(err).Warn("pipeline cache not saved")
	}
}

func (r *Renderer) createShaderModule(code []uint32) (core1_0.ShaderModule, error) {
	module, _, err := r.driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	return module, err
}

func (r *Renderer) createGraphicsPipeline(extent core1_0.Extent2D, samples core1_0.SampleCountFlags, depth bool) error {
	vertShader, err := r.createShaderModule(r.vertexShader)
	if err != nil {
		return gpu.ResourceError(err, "creating vertex shader module")
	}
	defer r.driver.DestroyShaderModule(vertShader, nil)

	fragShader, err := r.createShaderModule(r.fragmentShader)
	if err != nil {
		return gpu.ResourceError(err, "creating fragment shader module")
	}
	defer r.driver.DestroyShaderModule(fragShader, nil)

	layout, _, err := r.driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{
			r.descriptorSetLayout.Get(),
		},
	})
	if err != nil {
		return gpu.ResourceError(err, "creating pipeline layout")
	}
	r.pipelineLayout = gpu.NewHandle(layout, func(layout core1_0.PipelineLayout) {
		r.driver.DestroyPipelineLayout(layout, nil)
	})

	cache := r.pipelineCache.Get()
	pipelines, _, err := r.driver.CreateGraphicsPipelines(&cache, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				{
					Stage:  core1_0.StageVertex,
					Module: vertShader,
					Name:   "main",
				},
				{
					Stage:  core1_0.StageFragment,
					Module: fragShader,
					Name:   "main",
				},
			},
			VertexInputState: &core1_0.PipelineVertexInputStateCreateInfo{
				VertexBindingDescriptions:   assets.VertexBindingDescriptions(),
				VertexAttributeDescriptions: assets.VertexAttributeDescriptions(),
			},
			InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
				Topology:               core1_0.PrimitiveTopologyTriangleList,
				PrimitiveRestartEnable: false,
			},
			ViewportState: &core1_0.PipelineViewportStateCreateInfo{
				Viewports: []core1_0.Viewport{
					{
						X:        0,
						Y:        0,
						Width:    float32(extent.Width),
						Height:   float32(extent.Height),
						MinDepth: 0,
						MaxDepth: 1,
					},
				},
				Scissors: []core1_0.Rect2D{
					{
						Offset: core1_0.Offset2D{X: 0, Y: 0},
						Extent: extent,
					},
				},
			},
			RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
				PolygonMode: core1_0.PolygonModeFill,
				CullMode:    core1_0.CullModeBack,
				FrontFace:   core1_0.FrontFaceCounterClockwise,
				LineWidth:   1.0,
			},
			MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
				RasterizationSamples: samples,
				MinSampleShading:     1.0,
			},
			DepthStencilState: &core1_0.PipelineDepthStencilStateCreateInfo{
				DepthTestEnable:  depth,
				DepthWriteEnable: depth,
				DepthCompareOp:   core1_0.CompareOpLess,
			},
			ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
				LogicOp: core1_0.LogicOpCopy,
				Attachments: []core1_0.PipelineColorBlendAttachmentState{
					{
						ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
					},
				},
			},
			Layout:            layout,
			RenderPass:        r.renderPass.Get(),
			Subpass:           0,
			BasePipelineIndex: -1,
		},
	)
	if err != nil {
		return gpu.ResourceError(err, "creating graphics pipeline")
	}

	r.pipeline = gpu.NewHandle(pipelines[0], func(pipeline core1_0.Pipeline) {
		r.driver.DestroyPipeline(pipeline, nil)
	})
	return nil
}
