package texture

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// LoadAll loads every path concurrently and returns the textures in the same
// order. If any load fails the others are closed and the first failure is
// returned as an *AssetLoadError.
func LoadAll(ctx context.Context, paths ...string) ([]*Texture, error) {
	out := make([]*Texture, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return &AssetLoadError{Path: path, Err: err}
			}
			t, err := Load(path)
			if err != nil {
				return err
			}
			out[i] = t
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, t := range out {
			t.Close()
		}
		return nil, err
	}
	return out, nil
}
