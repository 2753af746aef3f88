package api

import (
	"bytes"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

const maxBodySize = 64 << 10

var errMalformedBody = echo.NewHTTPError(http.StatusBadRequest, "Malformed JSON body.")

// SonicSerializer plugs sonic into echo's JSON encoding.
type SonicSerializer struct{}

func (SonicSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (SonicSerializer) Deserialize(c echo.Context, i interface{}) error {
	return decodeBody(c, i)
}

// decodeBody reads a JSON object into dst. An empty body leaves dst untouched.
func decodeBody(c echo.Context, dst interface{}) error {
	body := c.Request().Body
	if body == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(body, maxBodySize))
	if err != nil {
		return errMalformedBody
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := sonic.ConfigStd.Unmarshal(data, dst); err != nil {
		return errMalformedBody
	}
	return nil
}
