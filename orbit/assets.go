package orbit

import (
	"context"
	"errors"

	"github.com/echoflaresat/orbitview/config"
	"github.com/echoflaresat/orbitview/texture"
)

// Textures are the surface images of the three bodies.
type Textures struct {
	Sun, Earth, Moon *texture.Texture
}

// LoadTextures loads all three body textures at once. The error is a
// *texture.AssetLoadError naming the first file that failed.
func LoadTextures(ctx context.Context, cfg config.Config) (Textures, error) {
	loaded, err := texture.LoadAll(ctx, cfg.Sun.Texture, cfg.Earth.Texture, cfg.Moon.Texture)
	if err != nil {
		return Textures{}, err
	}
	return Textures{Sun: loaded[0], Earth: loaded[1], Moon: loaded[2]}, nil
}

func (t Textures) Close() error {
	return errors.Join(t.Sun.Close(), t.Earth.Close(), t.Moon.Close())
}
