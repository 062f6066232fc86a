package vkng

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/renderer/gpu"
)

// FindMemoryType returns the first memory type allowed by typeBits that has every
// requested property.
func FindMemoryType(memory *core1_0.PhysicalDeviceMemoryProperties, typeBits uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	if memory != nil {
		for i, memoryType := range memory.MemoryTypes {
			if typeBits&(1<<uint(i)) == 0 {
				continue
			}
			if memoryType.PropertyFlags&properties == properties {
				return i, nil
			}
		}
	}

	return 0, errors.Mark(errors.Newf("no memory type in %#x with properties %s", typeBits, properties), gpu.ErrResourceCreation)
}

// Buffer is a buffer bound to its own allocation.
type Buffer struct {
	Buffer *gpu.Handle[core1_0.Buffer]
	Memory *gpu.Handle[core1_0.DeviceMemory]
	Size   int
}

func (b *Buffer) Get() core1_0.Buffer {
	return b.Buffer.Get()
}

func (b *Buffer) Destroy() {
	if b == nil {
		return
	}
	b.Buffer.Destroy()
	b.Memory.Destroy()
}

// Image is an image bound to its own allocation.
type Image struct {
	Image     *gpu.Handle[core1_0.Image]
	Memory    *gpu.Handle[core1_0.DeviceMemory]
	Format    core1_0.Format
	Width     int
	Height    int
	MipLevels int
}

func (i *Image) Get() core1_0.Image {
	return i.Image.Get()
}

func (i *Image) Destroy() {
	if i == nil {
		return
	}
	i.Image.Destroy()
	i.Memory.Destroy()
}

// ImageSpec describes a two-dimensional image and the memory backing it.
type ImageSpec struct {
	Width, Height int
	MipLevels     int
	Samples       core1_0.SampleCountFlags
	Format        core1_0.Format
	Tiling        core1_0.ImageTiling
	Usage         core1_0.ImageUsageFlags
	Properties    core1_0.MemoryPropertyFlags
}

// Encode lays data out the way the device reads host memory.
func Encode(data any) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, data); err != nil {
		return nil, errors.Wrap(err, "encoding buffer contents")
	}
	return buf.Bytes(), nil
}

// WriteData copies data into host-visible memory at offset.
func WriteData(driver core1_0.DeviceDriver, memory core1_0.DeviceMemory, offset int, data any) error {
	encoded, err := Encode(data)
	if err != nil {
		return err
	}
	return WriteBytes(driver, memory, offset, encoded)
}

func WriteBytes(driver core1_0.DeviceDriver, memory core1_0.DeviceMemory, offset int, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	pointer, _, err := driver.MapMemory(memory, offset, len(data), 0)
	if err != nil {
		return errors.Wrap(err, "mapping memory")
	}
	defer driver.UnmapMemory(memory)

	copy(unsafe.Slice((*byte)(pointer), len(data)), data)
	return nil
}
