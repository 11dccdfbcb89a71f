package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/tabula/internal/config"
	"github.com/Additional-Code/tabula/internal/database"
	"github.com/Additional-Code/tabula/internal/dispatch"
	"github.com/Additional-Code/tabula/internal/logger"
	"github.com/Additional-Code/tabula/internal/messaging"
	"github.com/Additional-Code/tabula/internal/migration"
	"github.com/Additional-Code/tabula/internal/observability"
	grpcserver "github.com/Additional-Code/tabula/internal/server/grpc"
	httpserver "github.com/Additional-Code/tabula/internal/server/http"
	"github.com/Additional-Code/tabula/internal/service/records"
	"github.com/Additional-Code/tabula/internal/storage"
	transporthttp "github.com/Additional-Code/tabula/internal/transport/http"
	"github.com/Additional-Code/tabula/internal/worker"
	workerrecords "github.com/Additional-Code/tabula/internal/worker/records"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	logger.Module,
	logger.FxEvents,
	observability.Module,
	database.Module,
	migration.Module,
	storage.Module,
	messaging.Module,
	records.Module,
)

// HTTP wires the action endpoint and the optional gRPC health server on top
// of the core modules.
var HTTP = fx.Options(
	Core,
	records.AutoSetup,
	dispatch.Module,
	httpserver.Module,
	transporthttp.Module,
	grpcserver.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerrecords.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
