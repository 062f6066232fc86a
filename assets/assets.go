// Package assets loads the shaders, model and texture the renderer draws.
package assets

import (
	"golang.org/x/sync/errgroup"
)

type Paths struct {
	VertexShader   string
	FragmentShader string
	Model          string
	// Materials may be empty.
	Materials string
	Texture   string
}

type Assets struct {
	VertexShader   []uint32
	FragmentShader []uint32
	Mesh           *Mesh
	Texture        *Texture
}

// Load decodes every asset concurrently and returns the first failure.
func Load(paths Paths) (*Assets, error) {
	assets := &Assets{}
	var group errgroup.Group

	group.Go(func() (err error) {
		assets.VertexShader, err = LoadShader(paths.VertexShader)
		return err
	})
	group.Go(func() (err error) {
		assets.FragmentShader, err = LoadShader(paths.FragmentShader)
		return err
	})
	group.Go(func() (err error) {
		assets.Mesh, err = LoadMesh(paths.Model, paths.Materials)
		return err
	})
	group.Go(func() (err error) {
		assets.Texture, err = LoadTexture(paths.Texture)
		return err
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return assets, nil
}
