package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvester/internal/core"
)

func parse(t *testing.T, body string) *RequestBodyParser {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	p := NewRequestBodyParser(httptest.NewRecorder(), r)
	require.NoError(t, p.Parse())
	return p
}

func TestRequestBodyParserJSON(t *testing.T) {
	p := parse(t, `{"name":"  Ramesh\u0007 ","acres":2.5,"isSettled":true,"paidAmount":null}`)
	assert.True(t, p.IsJSON())
	assert.Equal(t, "Ramesh", p.Get("name"))
	assert.Equal(t, "2.5", p.Get("acres"))
	assert.True(t, p.Bool("isSettled"))
	assert.Equal(t, "", p.Get("paidAmount"))
	assert.Equal(t, "", p.Get("missing"))
}

func TestRequestBodyParserForm(t *testing.T) {
	p := parse(t, "name=Suresh&isSettled=on&rate=1%2C500")
	assert.False(t, p.IsJSON())
	assert.Equal(t, "Suresh", p.Get("name"))
	assert.Equal(t, "1,500", p.Get("rate"))
	assert.True(t, p.Bool("isSettled"))
	assert.False(t, p.Bool("comments"))

	empty := parse(t, "")
	assert.Equal(t, "", empty.Get("name"))
}

func TestRequestBodyParserTooLarge(t *testing.T) {
	body := "comments=" + strings.Repeat("x", maxFormBytes)
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	p := NewRequestBodyParser(httptest.NewRecorder(), r)
	assert.Error(t, p.Parse())
}

func TestFilterFromQuery(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	f, err := filterFromQuery(url.Values{"q": {" wheat "}, "range": {"month"}}, now)
	require.NoError(t, err)
	assert.Equal(t, "wheat", f.Query)
	assert.Equal(t, "2024-03-01", f.From.Key())
	assert.Equal(t, "2024-03-15", f.To.Key())

	f, err = filterFromQuery(url.Values{"range": {"month"}, "from": {"2024-02-01"}}, now)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", f.From.Key())
	assert.Equal(t, "2024-03-15", f.To.Key())

	_, err = filterFromQuery(url.Values{"to": {"15/03/2024"}}, now)
	assert.ErrorIs(t, err, core.ErrValidation)

	f, err = filterFromQuery(url.Values{}, now)
	require.NoError(t, err)
	assert.True(t, f.IsZero())
}
