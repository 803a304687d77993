package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
)

const defaultTimeout = 60 * time.Second

// PublicURLProvider treats the item id as a plain URL.
type PublicURLProvider struct {
	client *http.Client
}

func NewPublicURLProvider(client *http.Client) *PublicURLProvider {
	return &PublicURLProvider{client: client}
}

func (p *PublicURLProvider) Name() string {
	return domain.PublicURLDatasource
}

func (p *PublicURLProvider) GetResourceMetadata(ctx context.Context, itemID string) (*domain.ResourceMetadata, error) {
	u, err := url.Parse(itemID)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, domain.NewDatasourceError(domain.KindDatasource, p.Name(), err, "invalid url %q", itemID)
	}
	return &domain.ResourceMetadata{
		ID:       itemID,
		Filename: path.Base(u.Path),
		URL:      itemID,
	}, nil
}

func (p *PublicURLProvider) ProvidesDownloadURL() bool {
	return true
}

func (p *PublicURLProvider) Stream(ctx context.Context, metadata *domain.ResourceMetadata) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadata.URL, nil)
	if err != nil {
		return nil, domain.NewDatasourceError(domain.KindDataDownload, p.Name(), err, "invalid url %q", metadata.URL)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, domain.NewDatasourceError(domain.KindDataDownload, p.Name(), err, "failed to download %s", metadata.URL)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, domain.NewDatasourceError(domain.KindDataDownload, p.Name(), nil, "HTTP %d for URL %s", resp.StatusCode, metadata.URL)
	}
	return resp.Body, nil
}

func (p *PublicURLProvider) String() string {
	return fmt.Sprintf("<datasource %s>", p.Name())
}
