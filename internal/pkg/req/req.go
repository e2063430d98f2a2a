/*
Package req decodes REST request bodies.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/whisper/matchmaker/internal/pkg/errs"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes int64 = 64 << 10

// BindJSON decodes the request body into dst. The content type must be JSON,
// unknown fields are rejected and nothing may follow the first value.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return errs.NewError(errs.CodeUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.CodeInvalidJSON)
	}
	if decoder.More() {
		return errs.NewError(errs.CodeInvalidJSON)
	}
	return nil
}
