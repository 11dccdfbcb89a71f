package records

import (
	"io"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/tabula/internal/config"
	"github.com/Additional-Code/tabula/internal/dispatch"
	"github.com/Additional-Code/tabula/internal/presentation/http/response"
	"github.com/Additional-Code/tabula/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/tabula/transport/http/records")

// Handler exposes the action endpoint over HTTP.
type Handler struct {
	dispatcher *dispatch.Dispatcher
}

// NewHandler constructs a records Handler.
func NewHandler(dispatcher *dispatch.Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

// Register mounts the endpoint on the configured path and on the root.
func Register(e *echo.Echo, cfg config.Config, h *Handler) {
	paths := []string{cfg.HTTP.EndpointPath}
	if cfg.HTTP.EndpointPath != "/" {
		paths = append(paths, "/")
	}
	for _, p := range paths {
		e.GET(p, h.read)
		e.POST(p, h.write)
	}
}

func (h *Handler) read(c echo.Context) error {
	b := response.New(c).WithCallback(c.QueryParam("callback"))

	action, err := dispatch.ParseRead(c.QueryParam("action"))
	if err != nil {
		return b.WithError(err).Build()
	}
	// syncAll writes on GET, so nothing runs unless the reply can be delivered.
	if !b.CallbackValid() {
		return b.Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "records.read",
		trace.WithAttributes(attribute.String("tabula.action", action.String())))
	defer span.End()

	result, err := h.dispatcher.Read(ctx, action, c.QueryParam("data"))
	if err != nil {
		mark(span, err)
		return b.WithError(err).Build()
	}
	return b.WithData(result).Build()
}

func (h *Handler) write(c echo.Context) error {
	b := response.New(c)

	action, err := dispatch.ParseWrite(c.QueryParam("action"))
	if err != nil {
		return b.WithError(err).Build()
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return b.WithError(errorbank.MalformedPayload(err)).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "records.write",
		trace.WithAttributes(
			attribute.String("tabula.action", action.String()),
			attribute.Int("http.request.body.size", len(body)),
		))
	defer span.End()

	result, err := h.dispatcher.Write(ctx, action, body)
	if err != nil {
		mark(span, err)
		return b.WithError(err).Build()
	}
	return b.WithData(result).Build()
}

func mark(span trace.Span, err error) {
	appErr := errorbank.From(err)
	span.SetAttributes(attribute.String("tabula.error.kind", string(appErr.Kind())))
	if !appErr.ClientFault() {
		span.RecordError(err)
		span.SetStatus(codes.Error, appErr.Message())
	}
}
