package audiostream

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/koscakluka/ema-face/core/audiostream"

var (
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)
