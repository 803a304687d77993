package download

import (
	"context"
	"fmt"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
)

// DatasourceDownloader pulls the resource through the provider's own stream.
type DatasourceDownloader struct {
	Provider domain.DatasourceProvider
	Metadata *domain.ResourceMetadata
	Checksum string
}

func (d *DatasourceDownloader) Source() string {
	if d.Metadata == nil {
		return d.Provider.Name()
	}
	return fmt.Sprintf("%s:%s", d.Provider.Name(), d.Metadata.ID)
}

func (d *DatasourceDownloader) Fetch(ctx context.Context) (*domain.Download, error) {
	stream, err := d.Provider.Stream(ctx, d.Metadata)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = stream.Close()
	}()

	body, checksum, err := readLimited(stream)
	if err != nil {
		return nil, domain.NewDatasourceError(domain.KindDatasource, d.Provider.Name(), err, "failed to stream resource")
	}

	result := &domain.Download{
		Data:     body,
		Checksum: checksum,
	}
	if d.Metadata != nil {
		result.LastModified = d.Metadata.UpdatedAt
	}
	if d.Checksum != "" && checksum == d.Checksum {
		result.NotModified = true
	}
	return result, nil
}
