package assets

import (
	"io"
	"os"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"
)

type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
	TexCoord mgl32.Vec2
}

func VertexBindingDescriptions() []core1_0.VertexInputBindingDescription {
	v := Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func VertexAttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.TexCoord)),
		},
	}
}

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

type vertexKey struct {
	position int
	uv       int
}

type meshBuilder struct {
	decoder *obj.Decoder
	mesh    *Mesh
	unique  map[vertexKey]uint32
}

func (b *meshBuilder) add(face obj.Face, corner int) {
	key := vertexKey{position: face.Vertices[corner], uv: -1}
	if corner < len(face.Uvs) {
		key.uv = face.Uvs[corner]
	}

	index, ok := b.unique[key]
	if !ok {
		vertex := Vertex{
			Position: mgl32.Vec3{
				b.decoder.Vertices[key.position*3],
				b.decoder.Vertices[key.position*3+1],
				b.decoder.Vertices[key.position*3+2],
			},
			Color: mgl32.Vec3{1, 1, 1},
		}
		if key.uv >= 0 {
			// OBJ puts the texture origin at the bottom left, Vulkan samples from the top left.
			vertex.TexCoord = mgl32.Vec2{
				b.decoder.Uvs[key.uv*2],
				1.0 - b.decoder.Uvs[key.uv*2+1],
			}
		}

		index = uint32(len(b.mesh.Vertices))
		b.mesh.Vertices = append(b.mesh.Vertices, vertex)
		b.unique[key] = index
	}

	b.mesh.Indices = append(b.mesh.Indices, index)
}

// DecodeMesh reads an OBJ model, fanning polygons out into triangles and merging
// corners that share a position and texture coordinate. The material reader may be nil.
func DecodeMesh(model, materials io.Reader) (*Mesh, error) {
	if materials == nil {
		materials = strings.NewReader("")
	}

	decoder, err := obj.DecodeReader(model, materials)
	if err != nil {
		return nil, errors.Wrap(err, "decoding obj")
	}

	b := &meshBuilder{
		decoder: decoder,
		mesh:    &Mesh{},
		unique:  make(map[vertexKey]uint32),
	}
	for _, object := range decoder.Objects {
		for _, face := range object.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				b.add(face, 0)
				b.add(face, i-1)
				b.add(face, i)
			}
		}
	}

	if len(b.mesh.Indices) == 0 {
		return nil, errors.New("model has no faces")
	}
	return b.mesh, nil
}

// LoadMesh reads an OBJ file and, when materialPath is not empty, its material library.
func LoadMesh(modelPath, materialPath string) (*Mesh, error) {
	model, err := os.Open(modelPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening model")
	}
	defer model.Close()

	var materials io.Reader
	if materialPath != "" {
		file, err := os.Open(materialPath)
		if err != nil {
			return nil, errors.Wrap(err, "opening materials")
		}
		defer file.Close()
		materials = file
	}

	mesh, err := DecodeMesh(model, materials)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", modelPath)
	}
	return mesh, nil
}
