// Package pipelinecache keeps pipeline cache data between runs and refuses data written
// by a different driver or device.
package pipelinecache

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/core1_0"
)

const (
	// HeaderVersionOne is the only header layout Vulkan defines.
	HeaderVersionOne uint32 = 1
	// HeaderSize is the length of a version one header.
	HeaderSize = 16 + len(uuid.UUID{})
)

// ErrIncompatible marks cache data that the current device cannot use.
var ErrIncompatible = errors.New("incompatible pipeline cache")

// Header is the prefix every driver writes in front of its cache data. All fields are
// stored least significant byte first.
type Header struct {
	Length   uint32
	Version  uint32
	VendorID uint32
	DeviceID uint32
	UUID     uuid.UUID
}

// Identity is what a header must match for a device to accept the data after it.
type Identity struct {
	VendorID uint32
	DeviceID uint32
	UUID     uuid.UUID
}

func IdentityOf(properties *core1_0.PhysicalDeviceProperties) Identity {
	return Identity{
		VendorID: properties.VendorID,
		DeviceID: properties.DeviceID,
		UUID:     properties.PipelineCacheUUID,
	}
}

func (i Identity) String() string {
	return fmt.Sprintf("vendor %#x device %#x cache %s", i.VendorID, i.DeviceID, i.UUID)
}

func ParseHeader(data []byte) (Header, error) {
	var header Header
	if len(data) < HeaderSize {
		return header, errors.Mark(errors.Newf("cache data is %d bytes, shorter than its header", len(data)), ErrIncompatible)
	}

	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return header, errors.Wrap(err, "reading pipeline cache header")
	}
	return header, nil
}

func (h Header) Encode() []byte {
	var buf bytes.Buffer
	// Writes to a bytes.Buffer cannot fail.
	_ = binary.Write(&buf, binary.LittleEndian, h)
	return buf.Bytes()
}

// Check reports every way the header disagrees with the device's identity.
func (h Header) Check(identity Identity) error {
	var problems []string

	if h.Length < uint32(HeaderSize) {
		problems = append(problems, fmt.Sprintf("header length %d", h.Length))
	}
	if h.Version != HeaderVersionOne {
		problems = append(problems, fmt.Sprintf("header version %d", h.Version))
	}
	if h.VendorID != identity.VendorID {
		problems = append(problems, fmt.Sprintf("vendor %#x, expected %#x", h.VendorID, identity.VendorID))
	}
	if h.DeviceID != identity.DeviceID {
		problems = append(problems, fmt.Sprintf("device %#x, expected %#x", h.DeviceID, identity.DeviceID))
	}
	if h.UUID != identity.UUID {
		problems = append(problems, fmt.Sprintf("cache id %s, expected %s", h.UUID, identity.UUID))
	}

	if len(problems) == 0 {
		return nil
	}

	err := errors.Mark(errors.Newf("pipeline cache written for another device: %d mismatches", len(problems)), ErrIncompatible)
	for _, problem := range problems {
		err = errors.WithDetail(err, problem)
	}
	return err
}

// Validate parses data's header and checks it against identity.
func Validate(data []byte, identity Identity) error {
	header, err := ParseHeader(data)
	if err != nil {
		return err
	}
	return header.Check(identity)
}
