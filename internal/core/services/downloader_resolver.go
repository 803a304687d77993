package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
	"github.com/comitanigiacomo/kanso-tablesync/internal/core/download"
)

type DownloaderResolver struct {
	factory         domain.DatasourceFactory
	oauth           domain.OAuthRepository
	downloadTimeout time.Duration
	logger          zerolog.Logger
}

func NewDownloaderResolver(factory domain.DatasourceFactory, oauth domain.OAuthRepository, downloadTimeout time.Duration, logger zerolog.Logger) *DownloaderResolver {
	return &DownloaderResolver{
		factory:         factory,
		oauth:           oauth,
		downloadTimeout: downloadTimeout,
		logger:          logger.With().Str("component", "downloader_resolver").Logger(),
	}
}

// Resolve picks the downloader for a synchronization. Blank service fields
// default to the public url data source with the url as item id, and are
// written back onto sync.
func (r *DownloaderResolver) Resolve(ctx context.Context, sync *domain.Synchronization, owner *domain.User, runLog *domain.RunLog) (domain.Downloader, error) {
	name := strings.TrimSpace(sync.ServiceName)
	if name == "" {
		name = domain.PublicURLDatasource
	}
	if strings.TrimSpace(sync.ServiceItemID) == "" {
		sync.ServiceItemID = sync.URL
	}

	provider, err := r.factory.Get(ctx, name, owner)
	if err != nil || provider == nil {
		if err == nil {
			err = domain.ErrDatasourceUnavailable
		}
		return nil, domain.NewDatasourceError(domain.KindUninitialized, name, err, "datasource %s could not be instantiated", name)
	}

	if sync.ServiceItemID == "" {
		return nil, domain.NewDatasourceError(domain.KindDatasource, name, domain.ErrMissingItemID, "datasource %s without item id", name)
	}

	if receiver, ok := provider.(domain.TokenReceiver); ok {
		if err := r.injectToken(ctx, receiver, owner, name); err != nil {
			return nil, err
		}
	}

	r.appendLog(ctx, runLog, fmt.Sprintf("Fetching datasource %s metadata for item id %s", provider.Name(), sync.ServiceItemID))
	metadata, err := provider.GetResourceMetadata(ctx, sync.ServiceItemID)
	if err != nil {
		return nil, err
	}

	if provider.ProvidesDownloadURL() {
		url := sync.URL
		if metadata != nil && metadata.URL != "" {
			url = metadata.URL
		}
		downloader := &download.URLDownloader{
			URL:           url,
			ETag:          sync.ETag,
			LastModified:  sync.ModifiedAt,
			Checksum:      sync.Checksum,
			VerifySSLCert: false,
			Service:       name,
			Timeout:       r.downloadTimeout,
		}
		r.appendLog(ctx, runLog, fmt.Sprintf("File will be downloaded from %s", downloader.URL))
		return downloader, nil
	}

	r.appendLog(ctx, runLog, "Downloading file data from datasource")
	return &download.DatasourceDownloader{
		Provider: provider,
		Metadata: metadata,
		Checksum: sync.Checksum,
	}, nil
}

func (r *DownloaderResolver) appendLog(ctx context.Context, runLog *domain.RunLog, line string) {
	if err := runLog.Append(ctx, line); err != nil {
		r.logger.Warn().Err(err).Str("log_id", runLog.ID()).Msg("failed to append to run log")
	}
}

func (r *DownloaderResolver) injectToken(ctx context.Context, receiver domain.TokenReceiver, owner *domain.User, service string) error {
	if r.oauth == nil || owner == nil {
		return domain.NewDatasourceError(domain.KindMissingConfiguration, service, nil, "no oauth credentials available for %s", service)
	}
	token, err := r.oauth.Token(ctx, owner.ID, service)
	if errors.Is(err, domain.ErrOAuthNotFound) {
		return domain.NewDatasourceError(domain.KindMissingConfiguration, service, err, "no oauth credentials available for %s", service)
	}
	if err != nil {
		return fmt.Errorf("resolver: failed to load oauth token: %w", err)
	}
	receiver.SetToken(token)
	return nil
}
