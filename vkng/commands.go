package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/renderer/gpu"
)

// CommandPool allocates command buffers for a single queue family.
type CommandPool struct {
	device *Device
	pool   *gpu.Handle[core1_0.CommandPool]
}

func (d *Device) CreateCommandPool(family int, flags core1_0.CommandPoolCreateFlags) (*CommandPool, error) {
	pool, _, err := d.driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            flags,
		QueueFamilyIndex: family,
	})
	if err != nil {
		return nil, gpu.ResourceError(err, "creating command pool for queue family %d", family)
	}

	return &CommandPool{
		device: d,
		pool: gpu.NewHandle(pool, func(pool core1_0.CommandPool) {
			d.driver.DestroyCommandPool(pool, nil)
		}),
	}, nil
}

func (p *CommandPool) Get() core1_0.CommandPool {
	return p.pool.Get()
}

// Allocate returns count primary command buffers.
func (p *CommandPool) Allocate(count int) ([]core1_0.CommandBuffer, error) {
	buffers, _, err := p.device.driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p.pool.Get(),
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, gpu.ResourceError(err, "allocating %d command buffers", count)
	}
	return buffers, nil
}

func (p *CommandPool) Free(buffers []core1_0.CommandBuffer) {
	if len(buffers) == 0 || !p.pool.Live() {
		return
	}
	p.device.driver.FreeCommandBuffers(buffers...)
}

// RunOnce records commands into a throwaway buffer, submits it to the graphics queue and
// waits for the queue to drain.
func (p *CommandPool) RunOnce(record func(buffer core1_0.CommandBuffer) error) error {
	buffers, err := p.Allocate(1)
	if err != nil {
		return err
	}
	buffer := buffers[0]
	defer p.Free(buffers)

	driver := p.device.driver
	if _, err := driver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	}); err != nil {
		return errors.Wrap(err, "beginning one-time commands")
	}

	if err := record(buffer); err != nil {
		return err
	}

	if _, err := driver.EndCommandBuffer(buffer); err != nil {
		return errors.Wrap(err, "ending one-time commands")
	}

	if _, err := driver.QueueSubmit(p.device.graphics, nil, core1_0.SubmitInfo{
		CommandBuffers: []core1_0.CommandBuffer{buffer},
	}); err != nil {
		return errors.Wrap(err, "submitting one-time commands")
	}

	_, err = driver.QueueWaitIdle(p.device.graphics)
	return err
}

// CopyBuffer copies size bytes from the start of src to the start of dst.
func (p *CommandPool) CopyBuffer(src, dst *Buffer, size int) error {
	return p.RunOnce(func(buffer core1_0.CommandBuffer) error {
		return p.device.driver.CmdCopyBuffer(buffer, src.Get(), dst.Get(), core1_0.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		})
	})
}

// StageBuffer uploads data into a new device-local buffer through a staging buffer.
func (p *CommandPool) StageBuffer(data []byte, usage core1_0.BufferUsageFlags) (*Buffer, error) {
	staging, err := p.device.CreateBuffer(len(data), core1_0.BufferUsageTransferSrc,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, gpu.ResourceError(err, "creating staging buffer")
	}
	defer staging.Destroy()

	if err := WriteBytes(p.device.driver, staging.Memory.Get(), 0, data); err != nil {
		return nil, err
	}

	buffer, err := p.device.CreateBuffer(len(data), core1_0.BufferUsageTransferDst|usage, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, gpu.ResourceError(err, "creating device-local buffer")
	}

	if err := p.CopyBuffer(staging, buffer, len(data)); err != nil {
		buffer.Destroy()
		return nil, err
	}
	return buffer, nil
}

func (p *CommandPool) Destroy() {
	if p == nil {
		return
	}
	p.pool.Destroy()
}
