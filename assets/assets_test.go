package assets

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/go-gl/mathgl/mgl32"
)

var spirvHeader = []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

func TestBytesToBytecode(t *testing.T) {
	c := qt.New(t)

	c.Assert(BytesToBytecode(spirvHeader), qt.DeepEquals, []uint32{SPIRVMagic, 0x00010000})
	c.Assert(BytesToBytecode(nil), qt.HasLen, 0)
}

func TestParseShader(t *testing.T) {
	c := qt.New(t)

	code, err := ParseShader(spirvHeader)
	c.Assert(err, qt.IsNil)
	c.Assert(code, qt.HasLen, 2)

	_, err = ParseShader(spirvHeader[:6])
	c.Assert(err, qt.ErrorMatches, "shader is 6 bytes, not a whole number of words")

	_, err = ParseShader([]byte{1, 2, 3, 4})
	c.Assert(err, qt.ErrorMatches, ".*not the SPIR-V magic number")

	_, err = ParseShader(nil)
	c.Assert(err, qt.Not(qt.IsNil))
}

const quad = `o quad
v -1 -1 0
v 1 -1 0
v 1 1 0
v -1 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
f 1/1 2/2 3/3 4/4
`

func TestDecodeMeshTriangulates(t *testing.T) {
	c := qt.New(t)

	mesh, err := DecodeMesh(strings.NewReader(quad), nil)
	c.Assert(err, qt.IsNil)
	c.Assert(mesh.Vertices, qt.HasLen, 4)
	c.Assert(mesh.Indices, qt.DeepEquals, []uint32{0, 1, 2, 0, 2, 3})

	c.Assert(mesh.Vertices[1].Position, qt.Equals, mgl32.Vec3{1, -1, 0})
	c.Assert(mesh.Vertices[1].Color, qt.Equals, mgl32.Vec3{1, 1, 1})
	// Flipped to a top-left origin.
	c.Assert(mesh.Vertices[0].TexCoord, qt.Equals, mgl32.Vec2{0, 1})
	c.Assert(mesh.Vertices[2].TexCoord, qt.Equals, mgl32.Vec2{1, 0})
}

func TestDecodeMeshSplitsSeams(t *testing.T) {
	c := qt.New(t)

	const seam = `o seam
v 0 0 0
v 1 0 0
v 0 1 0
v 1 1 0
vt 0 0
vt 1 0
vt 0 1
vt 0.5 0.5
f 1/1 2/2 3/3
f 2/4 4/2 3/3
`

	mesh, err := DecodeMesh(strings.NewReader(seam), strings.NewReader(""))
	c.Assert(err, qt.IsNil)
	c.Assert(mesh.Indices, qt.HasLen, 6)
	// Position 2 appears with two different texture coordinates.
	c.Assert(mesh.Vertices, qt.HasLen, 5)
}

func TestDecodeMeshWithoutFaces(t *testing.T) {
	c := qt.New(t)

	_, err := DecodeMesh(strings.NewReader("o empty\nv 0 0 0\n"), nil)
	c.Assert(err, qt.ErrorMatches, "model has no faces")
}

func TestVertexLayout(t *testing.T) {
	c := qt.New(t)

	bindings := VertexBindingDescriptions()
	c.Assert(bindings, qt.HasLen, 1)
	c.Assert(bindings[0].Stride, qt.Equals, 32)

	attributes := VertexAttributeDescriptions()
	c.Assert(attributes, qt.HasLen, 3)
	offsets := []int{attributes[0].Offset, attributes[1].Offset, attributes[2].Offset}
	c.Assert(offsets, qt.DeepEquals, []int{0, 12, 24})
}

func encodePNG(c *qt.C, width, height int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 7, A: 255})
		}
	}

	var buf bytes.Buffer
	c.Assert(png.Encode(&buf, img), qt.IsNil)
	return buf.Bytes()
}

func TestDecodeTexture(t *testing.T) {
	c := qt.New(t)

	texture, err := DecodeTexture(bytes.NewReader(encodePNG(c, 5, 3)))
	c.Assert(err, qt.IsNil)
	c.Assert(texture.Width, qt.Equals, 5)
	c.Assert(texture.Height, qt.Equals, 3)
	c.Assert(texture.Size(), qt.Equals, 5*3*4)

	// Pixel (4, 2).
	offset := (2*5 + 4) * 4
	c.Assert(texture.Pixels[offset:offset+4], qt.DeepEquals, []byte{4, 2, 7, 255})
}

func TestDecodeTextureRejectsGarbage(t *testing.T) {
	c := qt.New(t)

	_, err := DecodeTexture(strings.NewReader("not an image"))
	c.Assert(err, qt.ErrorMatches, "decoding image: .*")
}

func TestMipLevels(t *testing.T) {
	tests := []struct {
		width, height int
		want          int
	}{
		{1, 1, 1},
		{2, 1, 2},
		{512, 512, 10},
		{1024, 300, 11},
		{300, 1023, 10},
		{0, 0, 1},
	}

	for _, test := range tests {
		texture := &Texture{Width: test.width, Height: test.height}
		qt.Check(t, texture.MipLevels(), qt.Equals, test.want, qt.Commentf("%dx%d", test.width, test.height))
	}
}

func TestLoad(t *testing.T) {
	c := qt.New(t)

	dir := t.TempDir()
	write := func(name string, data []byte) string {
		path := filepath.Join(dir, name)
		c.Assert(os.WriteFile(path, data, 0o644), qt.IsNil)
		return path
	}

	paths := Paths{
		VertexShader:   write("vert.spv", spirvHeader),
		FragmentShader: write("frag.spv", spirvHeader),
		Model:          write("quad.obj", []byte(quad)),
		Texture:        write("texture.png", encodePNG(c, 4, 4)),
	}

	assets, err := Load(paths)
	c.Assert(err, qt.IsNil)
	c.Assert(assets.VertexShader, qt.HasLen, 2)
	c.Assert(assets.FragmentShader, qt.HasLen, 2)
	c.Assert(assets.Mesh.Indices, qt.HasLen, 6)
	c.Assert(assets.Texture.MipLevels(), qt.Equals, 3)

	paths.Texture = filepath.Join(dir, "missing.png")
	_, err = Load(paths)
	c.Assert(err, qt.ErrorMatches, "opening texture: .*")
}
