package assets

import (
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math/bits"
	"os"

	"github.com/cockroachdb/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Texture is an image decoded to tightly packed 8-bit RGBA.
type Texture struct {
	Width, Height int
	Pixels        []byte
}

// MipLevels is the length of the full mip chain down to a single texel.
func (t *Texture) MipLevels() int {
	largest := t.Width
	if t.Height > largest {
		largest = t.Height
	}
	if largest <= 0 {
		return 1
	}
	return bits.Len(uint(largest))
}

func (t *Texture) Size() int {
	return len(t.Pixels)
}

// DecodeTexture accepts PNG, JPEG, BMP, TIFF and WebP.
func DecodeTexture(r io.Reader) (*Texture, error) {
	decoded, format, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decoding image")
	}

	bounds := decoded.Bounds()
	if bounds.Empty() {
		return nil, errors.Newf("%s image is empty", format)
	}

	rgba, ok := decoded.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), decoded, bounds.Min, draw.Src)
	}

	return &Texture{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Pixels: rgba.Pix,
	}, nil
}

func LoadTexture(path string) (*Texture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening texture")
	}
	defer file.Close()

	texture, err := DecodeTexture(file)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return texture, nil
}
