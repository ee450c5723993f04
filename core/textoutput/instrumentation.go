package textoutput

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-face/core/textoutput"

var logger = otelslog.NewLogger(scopeName)
