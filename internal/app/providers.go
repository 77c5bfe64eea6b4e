package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oggyb/amora/internal/config"
	"github.com/oggyb/amora/internal/platform/firebase"
	"github.com/oggyb/amora/internal/platform/storage"
)

// Providers builds the external collaborators from config: object storage,
// and Firebase identity plus push when a project is configured.
func Providers(ctx context.Context, cfg *config.Config, log *slog.Logger) ([]Option, error) {
	blobs, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	opts := []Option{WithStorage(blobs)}

	fb, err := firebase.NewApp(ctx, cfg)
	if errors.Is(err, firebase.ErrNotConfigured) {
		log.Warn("firebase not configured; firebase login and push are disabled")
		return opts, nil
	}
	if err != nil {
		return nil, err
	}
	authClient, err := fb.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}
	msgClient, err := fb.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	return append(opts,
		WithIdentity(firebase.NewIdentityProvider(authClient)),
		WithPusher(firebase.NewPusher(msgClient)),
	), nil
}
