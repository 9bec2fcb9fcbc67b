package config

import (
	"time"

	"github.com/Sumatoshi-tech/fillspc/pkg/pipeline"
)

// Monitoring defaults.
const (
	DefaultComponents        = pipeline.DefaultComponents
	DefaultVarianceThreshold = 0.0
	DefaultScaling           = "autoscale"
	DefaultConfidence        = pipeline.DefaultConfidence
	DefaultT2Method          = "f"
	DefaultQMethod           = "jackson-mudholkar"
	DefaultJoint             = pipeline.DefaultJoint
	DefaultWorkers           = 0
	DefaultChunkSize         = pipeline.DefaultChunkSize
)

// Output defaults.
const (
	DefaultOutputDir     = "spc_output"
	DefaultOutputFormat  = "text"
	DefaultCompressModel = false
	DefaultTheme         = "dark"
	DefaultMaxRows       = 20
)

// Cache defaults.
const (
	DefaultCacheEnabled = true
	DefaultCacheMaxSize = "64MB"
)

// Server defaults.
const (
	DefaultServerHost   = "127.0.0.1"
	DefaultServerPort   = 8050
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 60 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Telemetry defaults.
const (
	DefaultPrometheus  = true
	DefaultSampleRatio = 0.0
)
