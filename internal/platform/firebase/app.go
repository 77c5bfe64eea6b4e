// Package firebase adapts the Firebase Admin SDK to the identity and push boundaries.
package firebase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/oggyb/amora/internal/config"
)

// ErrNotConfigured means no project id was provided; callers run without Firebase.
var ErrNotConfigured = errors.New("firebase is not configured")

// NewApp builds the Firebase app from a credentials file or base64-encoded JSON.
// Without either, application default credentials are used.
func NewApp(ctx context.Context, cfg *config.Config) (*firebase.App, error) {
	if cfg.Firebase.ProjectID == "" {
		return nil, ErrNotConfigured
	}

	var opts []option.ClientOption
	switch {
	case cfg.Firebase.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	case cfg.Firebase.CredentialsBase64 != "":
		jsonKey, err := base64.StdEncoding.DecodeString(cfg.Firebase.CredentialsBase64)
		if err != nil {
			return nil, errors.New("FIREBASE_SERVICE_ACCOUNT_JSON_BASE64 is not a valid base64 string")
		}
		opts = append(opts, option.WithCredentialsJSON(jsonKey))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Firebase.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	return app, nil
}
