package response

import (
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/tabula/internal/dto"
	"github.com/Additional-Code/tabula/internal/rowstore"
	"github.com/Additional-Code/tabula/pkg/errorbank"
)

// Every response is sent with 200: clients tell success from failure by the
// presence of an "error" field.
const status = http.StatusOK

const invalidCallback = "Invalid callback"

// callbackName accepts dotted JavaScript identifiers such as jQuery's
// generated callbacks.
var callbackName = regexp.MustCompile(`^[A-Za-z_$][0-9A-Za-z_$]*(\.[A-Za-z_$][0-9A-Za-z_$]*)*$`)

// Builder helps construct envelope responses.
type Builder struct {
	ctx      echo.Context
	data     any
	err      error
	callback string
}

// New instantiates a Builder for the provided request context.
func New(ctx echo.Context) *Builder {
	return &Builder{ctx: ctx}
}

// WithData attaches the operation result.
func (b *Builder) WithData(data any) *Builder {
	b.data = data
	return b
}

// WithError records an error to be rendered as {"error": message}.
func (b *Builder) WithError(err error) *Builder {
	b.err = err
	return b
}

// WithCallback wraps the JSON as name(json). An empty name leaves it plain.
func (b *Builder) WithCallback(name string) *Builder {
	b.callback = name
	return b
}

// CallbackValid reports whether the attached callback, if any, can be used.
// Build renders {"error":"Invalid callback"} when it cannot.
func (b *Builder) CallbackValid() bool {
	return b.callback == "" || ValidCallback(b.callback)
}

// Build finalises and emits the HTTP response.
func (b *Builder) Build() error {
	payload := b.data
	if b.err != nil {
		payload = dto.ErrorResponse{Error: errorbank.From(b.err).Message()}
	}

	if !b.CallbackValid() {
		return b.json(dto.ErrorResponse{Error: invalidCallback})
	}

	body, err := rowstore.MarshalText(payload)
	if err != nil {
		return b.json(dto.ErrorResponse{Error: err.Error()})
	}
	if b.callback == "" {
		return b.ctx.Blob(status, echo.MIMEApplicationJSON, body)
	}

	wrapped := make([]byte, 0, len(b.callback)+len(body)+2)
	wrapped = append(wrapped, b.callback...)
	wrapped = append(wrapped, '(')
	wrapped = append(wrapped, body...)
	wrapped = append(wrapped, ')')
	return b.ctx.Blob(status, echo.MIMEApplicationJavaScriptCharsetUTF8, wrapped)
}

func (b *Builder) json(payload dto.ErrorResponse) error {
	body, err := rowstore.MarshalText(payload)
	if err != nil {
		return err
	}
	return b.ctx.Blob(status, echo.MIMEApplicationJSON, body)
}

// ValidCallback reports whether name is usable as a callback.
func ValidCallback(name string) bool {
	return callbackName.MatchString(name)
}
