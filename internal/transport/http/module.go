package http

import (
	"go.uber.org/fx"

	recordstransport "github.com/Additional-Code/tabula/internal/transport/http/records"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	recordstransport.Module,
)
