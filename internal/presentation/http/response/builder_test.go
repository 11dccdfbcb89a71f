package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tabula/pkg/errorbank"
)

func render(t *testing.T, build func(*Builder) *Builder) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/exec", nil), rec)
	require.NoError(t, build(New(c)).Build())
	return rec
}

func TestPlainJSON(t *testing.T) {
	rec := render(t, func(b *Builder) *Builder {
		return b.WithData([]map[string]any{{"id": "p1", "name": "<b>"}})
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, echo.MIMEApplicationJSON, rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, `[{"id":"p1","name":"<b>"}]`, rec.Body.String())
}

func TestCallbackWrapping(t *testing.T) {
	rec := render(t, func(b *Builder) *Builder {
		return b.WithData([]string{}).WithCallback("foo")
	})
	assert.Equal(t, echo.MIMEApplicationJavaScriptCharsetUTF8, rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, `foo([])`, rec.Body.String())
}

func TestErrorsRenderMessage(t *testing.T) {
	rec := render(t, func(b *Builder) *Builder {
		return b.WithError(errorbank.InvalidAction())
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"error":"Invalid action"}`, rec.Body.String())

	rec = render(t, func(b *Builder) *Builder {
		return b.WithError(errors.New("quota exceeded")).WithCallback("cb")
	})
	assert.Equal(t, `cb({"error":"quota exceeded"})`, rec.Body.String())
}

func TestInvalidCallbackFallsBackToJSON(t *testing.T) {
	rec := render(t, func(b *Builder) *Builder {
		return b.WithData([]string{}).WithCallback("alert(1);x")
	})
	assert.Equal(t, echo.MIMEApplicationJSON, rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, `{"error":"Invalid callback"}`, rec.Body.String())
}

func TestValidCallback(t *testing.T) {
	for _, name := range []string{"foo", "_cb", "$", "jQuery351_1700000000000", "app.handlers.done"} {
		assert.True(t, ValidCallback(name), name)
	}
	for _, name := range []string{"1abc", "a-b", "a..b", "a.", "foo()", ""} {
		assert.False(t, ValidCallback(name), name)
	}
}

func TestCallbackValid(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/exec", nil), httptest.NewRecorder())
	assert.True(t, New(c).CallbackValid())
	assert.True(t, New(c).WithCallback("cb").CallbackValid())
	assert.False(t, New(c).WithCallback("alert(1)//").CallbackValid())
}
