package pipelinecache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/vkngwrapper/core/v3/core1_0"
)

var device = Identity{
	VendorID: 0x10de,
	DeviceID: 0x2484,
	UUID:     uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
}

func cacheData(identity Identity, body string) []byte {
	header := Header{
		Length:   uint32(HeaderSize),
		Version:  HeaderVersionOne,
		VendorID: identity.VendorID,
		DeviceID: identity.DeviceID,
		UUID:     identity.UUID,
	}
	return append(header.Encode(), body...)
}

func TestHeaderLayout(t *testing.T) {
	c := qt.New(t)

	data := cacheData(device, "")
	c.Assert(data, qt.HasLen, 32)
	c.Assert(data[:4], qt.DeepEquals, []byte{32, 0, 0, 0})
	c.Assert(data[4:8], qt.DeepEquals, []byte{1, 0, 0, 0})
	c.Assert(data[8:12], qt.DeepEquals, []byte{0xde, 0x10, 0, 0})
	c.Assert(data[16:], qt.DeepEquals, device.UUID[:])

	header, err := ParseHeader(data)
	c.Assert(err, qt.IsNil)
	c.Assert(header.DeviceID, qt.Equals, uint32(0x2484))
	c.Assert(header.UUID, qt.Equals, device.UUID)
}

func TestIdentityOf(t *testing.T) {
	c := qt.New(t)

	identity := IdentityOf(&core1_0.PhysicalDeviceProperties{
		VendorID:          device.VendorID,
		DeviceID:          device.DeviceID,
		PipelineCacheUUID: device.UUID,
	})
	c.Assert(identity, qt.Equals, device)
}

func TestValidate(t *testing.T) {
	otherUUID := device
	otherUUID.UUID = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")
	otherVendor := device
	otherVendor.VendorID = 0x1002

	badVersion := cacheData(device, "")
	badVersion[4] = 2

	tests := []struct {
		name string
		data []byte
		ok   bool
	}{
		{"matching", cacheData(device, "body"), true},
		{"other uuid", cacheData(otherUUID, "body"), false},
		{"other vendor", cacheData(otherVendor, "body"), false},
		{"bad version", badVersion, false},
		{"truncated", cacheData(device, "")[:20], false},
		{"empty", nil, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := qt.New(t)
			err := Validate(test.data, device)
			if test.ok {
				c.Assert(err, qt.IsNil)
				return
			}
			c.Assert(errors.Is(err, ErrIncompatible), qt.IsTrue)
		})
	}
}

func TestMismatchDetails(t *testing.T) {
	c := qt.New(t)

	other := Identity{VendorID: 1, DeviceID: 2, UUID: uuid.Nil}
	err := Validate(cacheData(device, ""), other)
	c.Assert(err, qt.ErrorMatches, "pipeline cache written for another device: 3 mismatches")
	c.Assert(errors.GetAllDetails(err), qt.HasLen, 3)
}

func newTestStore(c *qt.C) *Store {
	logger, _ := logtest.NewNullLogger()
	return NewStore(filepath.Join(c.TempDir(), "cache", "pipelines.lz4"), logger)
}

func TestStoreRoundTrip(t *testing.T) {
	c := qt.New(t)

	store := newTestStore(c)
	data, err := store.Load(device)
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.IsNil)

	saved := cacheData(device, "compiled pipelines compiled pipelines compiled pipelines")
	c.Assert(store.Save(saved), qt.IsNil)

	compressed, err := os.ReadFile(store.Path())
	c.Assert(err, qt.IsNil)
	c.Assert(compressed, qt.Not(qt.DeepEquals), saved)

	data, err = store.Load(device)
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.DeepEquals, saved)

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.HasLen, 1)
}

func TestStoreDiscardsIncompatibleData(t *testing.T) {
	c := qt.New(t)

	store := newTestStore(c)
	c.Assert(store.Save(cacheData(device, "body")), qt.IsNil)

	other := device
	other.DeviceID++
	data, err := store.Load(other)
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.IsNil)

	_, err = os.Stat(store.Path())
	c.Assert(os.IsNotExist(err), qt.IsTrue)
}

func TestStoreDiscardsCorruptFile(t *testing.T) {
	c := qt.New(t)

	store := newTestStore(c)
	c.Assert(os.MkdirAll(filepath.Dir(store.Path()), 0o755), qt.IsNil)
	c.Assert(os.WriteFile(store.Path(), []byte("not lz4"), 0o644), qt.IsNil)

	data, err := store.Load(device)
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.IsNil)

	_, err = os.Stat(store.Path())
	c.Assert(os.IsNotExist(err), qt.IsTrue)
}

func TestStoreWithoutPath(t *testing.T) {
	c := qt.New(t)

	store := NewStore("", nil)
	c.Assert(store.Save([]byte("data")), qt.IsNil)
	data, err := store.Load(device)
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.IsNil)
}
