package domain

import (
	"context"
	"net"
	"net/url"
	"time"
)

// Downloader yields the raw bytes of a synchronization source.
type Downloader interface {
	// Source describes where the bytes come from, for logs.
	Source() string
	Fetch(ctx context.Context) (*Download, error)
}

type Download struct {
	Data         []byte
	ETag         string
	LastModified *time.Time
	Checksum     string
	// NotModified is set when the source reports no change since the last fetch.
	NotModified bool
}

type DatabaseCredentials struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string
}

// DSN builds a postgres connection url with the user info escaped.
func (c DatabaseCredentials) DSN() string {
	host := c.Host
	if c.Port != "" {
		host = net.JoinHostPort(c.Host, c.Port)
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   host,
		Path:   "/" + c.Database,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

type ImportJob struct {
	SynchronizationID string
	TableName         string
	Credentials       DatabaseCredentials
	Downloader        Downloader
	Log               *RunLog
	QuotaLimit        int64
	ErrorCodes        map[ErrorKind]int
}

type ImportOutcome struct {
	Success      bool
	ETag         string
	Checksum     string
	LastModified *time.Time
	ErrorCode    int
	ErrorMessage string
	LogTrace     string
	// UsedBytesDelta is how much the staged bytes of the owner changed.
	UsedBytesDelta int64
}

// ImportRunner materializes downloaded content into the owner's database.
type ImportRunner interface {
	Run(ctx context.Context, job ImportJob) (*ImportOutcome, error)
}

// PostProcessor runs after a successful import, e.g. automatic geocoding.
type PostProcessor interface {
	Process(ctx context.Context, sync *Synchronization, log *RunLog) error
}
