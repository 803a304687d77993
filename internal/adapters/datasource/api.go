package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
)

const (
	APIDatasource = "api"

	maxMetadataSize = 1 << 20
)

var _ domain.TokenReceiver = (*APIProvider)(nil)

// APIProvider talks to a remote file API with an OAuth bearer token:
//
//	GET {base}/files/{id}          metadata document
//	GET {base}/files/{id}/content  raw bytes
type APIProvider struct {
	baseURL string
	base    *http.Client
	token   string
}

func NewAPIProvider(baseURL string, client *http.Client) *APIProvider {
	return &APIProvider{baseURL: baseURL, base: client}
}

func (p *APIProvider) Name() string {
	return APIDatasource
}

func (p *APIProvider) SetToken(token string) {
	p.token = token
}

func (p *APIProvider) ProvidesDownloadURL() bool {
	return false
}

func (p *APIProvider) client(ctx context.Context) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.base)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.token, TokenType: "Bearer"}))
}

func (p *APIProvider) GetResourceMetadata(ctx context.Context, itemID string) (*domain.ResourceMetadata, error) {
	resp, err := p.get(ctx, fmt.Sprintf("%s/files/%s", p.baseURL, url.PathEscape(itemID)))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataSize))
	if err != nil {
		return nil, domain.NewDatasourceError(domain.KindDatasource, p.Name(), err, "failed to read metadata")
	}
	if !gjson.ValidBytes(body) {
		return nil, domain.NewDatasourceError(domain.KindDatasource, p.Name(), nil, "malformed metadata for item %s", itemID)
	}

	doc := gjson.ParseBytes(body)
	meta := &domain.ResourceMetadata{
		ID:       doc.Get("id").String(),
		Filename: doc.Get("name").String(),
		URL:      doc.Get("download_url").String(),
		Checksum: doc.Get("checksum").String(),
		Size:     doc.Get("size").Int(),
	}
	if meta.ID == "" {
		meta.ID = itemID
	}
	if ts := doc.Get("modified_time"); ts.Exists() {
		if t, err := time.Parse(time.RFC3339, ts.String()); err == nil {
			meta.UpdatedAt = &t
		}
	}
	return meta, nil
}

func (p *APIProvider) Stream(ctx context.Context, metadata *domain.ResourceMetadata) (io.ReadCloser, error) {
	resp, err := p.get(ctx, fmt.Sprintf("%s/files/%s/content", p.baseURL, url.PathEscape(metadata.ID)))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (p *APIProvider) get(ctx context.Context, target string) (*http.Response, error) {
	if p.token == "" {
		return nil, domain.NewDatasourceError(domain.KindMissingConfiguration, p.Name(), nil, "datasource %s requires an oauth token", p.Name())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, domain.NewDatasourceError(domain.KindDatasource, p.Name(), err, "invalid request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client(ctx).Do(req)
	if err != nil {
		return nil, domain.NewDatasourceError(domain.KindDatasource, p.Name(), err, "request to %s failed", target)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		_ = resp.Body.Close()
		return nil, domain.NewDatasourceError(domain.KindTokenExpiredOrInvalid, p.Name(), nil, "token expired or invalid")
	case resp.StatusCode == http.StatusForbidden:
		_ = resp.Body.Close()
		return nil, domain.NewDatasourceError(domain.KindAuth, p.Name(), nil, "access to %s denied", target)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_ = resp.Body.Close()
		return nil, domain.NewDatasourceError(domain.KindDatasource, p.Name(), nil, "HTTP %d for URL %s", resp.StatusCode, target)
	}
	return resp, nil
}
