package textinput

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-face/core/textinput"

var logger = otelslog.NewLogger(scopeName)
