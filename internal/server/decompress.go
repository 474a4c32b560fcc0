package server

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/labstack/echo/v4"

	"barback/internal/core"
)

// DecompressRequest transparently decompresses request bodies sent with a
// Content-Encoding of gzip, deflate or br. Catalog uploads can be large and
// compress well, so admin clients are encouraged to send them compressed.
func DecompressRequest() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			encoding := req.Header.Get(echo.HeaderContentEncoding)
			if encoding == "" || encoding == "identity" || req.Body == nil {
				return next(c)
			}

			var reader io.ReadCloser
			switch encoding {
			case "gzip":
				gz, err := gzip.NewReader(req.Body)
				if err != nil {
					svcErr := core.NewInvalidRequestError("malformed gzip request body", err)
					return c.JSON(svcErr.HTTPStatusCode(), svcErr.ToJSON())
				}
				reader = gz
			case "deflate":
				reader = flate.NewReader(req.Body)
			case "br":
				reader = io.NopCloser(brotli.NewReader(req.Body))
			default:
				svcErr := core.NewInvalidRequestErrorWithStatus(
					http.StatusUnsupportedMediaType,
					"unsupported content encoding: "+encoding, nil)
				return c.JSON(svcErr.HTTPStatusCode(), svcErr.ToJSON())
			}

			original := req.Body
			defer original.Close()

			req.Body = reader
			// The advertised length no longer matches the decompressed body.
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			req.ContentLength = -1

			return next(c)
		}
	}
}
