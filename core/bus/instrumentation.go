package bus

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-face/core/bus"

var logger = otelslog.NewLogger(scopeName)
