package domain

import (
	"context"
	"errors"
	"io"
	"time"
)

const PublicURLDatasource = "public_url"

var ErrOAuthNotFound = errors.New("oauth credential not found")

type ResourceMetadata struct {
	ID        string
	Filename  string
	URL       string
	Checksum  string
	Size      int64
	UpdatedAt *time.Time
}

type DatasourceProvider interface {
	Name() string

	GetResourceMetadata(ctx context.Context, itemID string) (*ResourceMetadata, error)

	// ProvidesDownloadURL reports whether metadata carries a direct URL the
	// bytes can be fetched from.
	ProvidesDownloadURL() bool

	// Stream pulls the resource through the provider's own transfer mechanism.
	Stream(ctx context.Context, metadata *ResourceMetadata) (io.ReadCloser, error)
}

// TokenReceiver is implemented by providers that need an OAuth bearer token.
type TokenReceiver interface {
	SetToken(token string)
}

type DatasourceFactory interface {
	Get(ctx context.Context, name string, owner *User) (DatasourceProvider, error)
}

type OAuthRepository interface {
	Token(ctx context.Context, userID, service string) (string, error)
	Save(ctx context.Context, userID, service, token string) error
	Revoke(ctx context.Context, userID, service string) error
}
