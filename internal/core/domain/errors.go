package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is a failure category raised by the data source or download layer.
type ErrorKind string

const (
	KindAuth                  ErrorKind = "auth"
	KindDataDownload          ErrorKind = "data_download"
	KindTokenExpiredOrInvalid ErrorKind = "token_expired_or_invalid"
	KindDatasource            ErrorKind = "datasource"
	KindInvalidService        ErrorKind = "invalid_service"
	KindMissingConfiguration  ErrorKind = "missing_configuration"
	KindUninitialized         ErrorKind = "uninitialized"
)

const (
	ErrorCodeDownload   = 1011
	ErrorCodeDatasource = 1012

	// ErrorCodeUnknown is reported for failures outside the mapping table.
	ErrorCodeUnknown = 99999
)

// Downstream alerting keys on these codes, keep them stable.
var errorCodes = map[ErrorKind]int{
	KindAuth:                  ErrorCodeDownload,
	KindDataDownload:          ErrorCodeDownload,
	KindTokenExpiredOrInvalid: ErrorCodeDatasource,
	KindDatasource:            ErrorCodeDatasource,
	KindInvalidService:        ErrorCodeDatasource,
	KindMissingConfiguration:  ErrorCodeDatasource,
	KindUninitialized:         ErrorCodeDatasource,
}

// ErrorCodes returns a copy of the error code mapping handed to import runners.
func ErrorCodes() map[ErrorKind]int {
	out := make(map[ErrorKind]int, len(errorCodes))
	for k, v := range errorCodes {
		out[k] = v
	}
	return out
}

var (
	ErrDatasourceUnavailable = errors.New("data source unavailable")
	ErrMissingItemID         = errors.New("missing item id")
)

type DatasourceError struct {
	Kind    ErrorKind
	Service string
	Message string
	Err     error
}

func NewDatasourceError(kind ErrorKind, service string, err error, format string, args ...any) *DatasourceError {
	return &DatasourceError{
		Kind:    kind,
		Service: service,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func (e *DatasourceError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DatasourceError) Unwrap() error {
	return e.Err
}

// Classify maps an error onto the code table. Unclassified errors get
// ErrorCodeUnknown.
func Classify(err error, codes map[ErrorKind]int) (int, string) {
	if err == nil {
		return 0, ""
	}
	if codes == nil {
		codes = errorCodes
	}
	var dsErr *DatasourceError
	if errors.As(err, &dsErr) {
		if code, ok := codes[dsErr.Kind]; ok {
			return code, err.Error()
		}
	}
	return ErrorCodeUnknown, err.Error()
}

// TokenExpiredService reports the provider whose credential expired, if err
// is a token expiry.
func TokenExpiredService(err error) (string, bool) {
	var dsErr *DatasourceError
	if errors.As(err, &dsErr) && dsErr.Kind == KindTokenExpiredOrInvalid {
		return dsErr.Service, true
	}
	return "", false
}

// OutcomeFromError builds a failed import outcome out of a classified error.
func OutcomeFromError(err error, trace string) *ImportOutcome {
	code, msg := Classify(err, nil)
	return &ImportOutcome{
		Success:      false,
		ErrorCode:    code,
		ErrorMessage: msg,
		LogTrace:     trace,
	}
}
