// Package datasource provides the data source providers synchronizations pull from.
package datasource

import (
	"context"
	"net/http"
	"strings"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
)

var _ domain.DatasourceFactory = (*Factory)(nil)

type Factory struct {
	apiURL     string
	httpClient *http.Client
}

// NewFactory builds providers by service name. An empty apiURL disables the
// remote file API provider.
func NewFactory(apiURL string, httpClient *http.Client) *Factory {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Factory{
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: httpClient,
	}
}

func (f *Factory) Get(ctx context.Context, name string, owner *domain.User) (domain.DatasourceProvider, error) {
	switch name {
	case domain.PublicURLDatasource:
		return NewPublicURLProvider(f.httpClient), nil
	case APIDatasource:
		if f.apiURL == "" {
			return nil, domain.NewDatasourceError(domain.KindMissingConfiguration, name, nil, "datasource %s has no api url configured", name)
		}
		return NewAPIProvider(f.apiURL, f.httpClient), nil
	default:
		return nil, domain.NewDatasourceError(domain.KindInvalidService, name, nil, "unsupported datasource: %s", name)
	}
}
