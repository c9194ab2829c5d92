package constants

import "errors"

// Configuration errors.
var (
	ErrConfigRequired       = errors.New("config is required")
	ErrBaseURLRequired      = errors.New("base URL is required")
	ErrEndpointMethodNeeded = errors.New("endpoint method is required")
	ErrInvalidDuration      = errors.New("invalid duration")
)

// Data-source errors.
var (
	ErrNATSBucketRequired = errors.New("NATS bucket is required")
	ErrNATSURLRequired    = errors.New("NATS URL is required")
	ErrEmptySourceValue   = errors.New("data source entry is empty")
)

// CLI errors.
var (
	ErrInvalidKeyValue      = errors.New("invalid key=value pair")
	ErrUnknownOutputFormat  = errors.New("unknown output format")
	ErrNoConfigFileSelected = errors.New("no config file found")
)
