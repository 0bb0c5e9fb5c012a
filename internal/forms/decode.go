package forms

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/lumenforge/lumenforge-web/internal/xerrors"
)

// MaxBodyBytes caps a submission body.
const MaxBodyBytes = 16 << 10

var (
	errUnsupportedType = errors.New("unsupported content type")
	errTooLarge        = errors.New("request body too large")
	errMalformed       = errors.New("malformed form body")
)

// decodeForm reads a JSON object of strings or a urlencoded body into a
// flat field map. Only the first value of a repeated urlencoded key is kept.
func decodeForm(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, xerrors.Wrap(errUnsupportedType, "parse content type")
	}

	switch ct {
	case "application/json":
		var fields map[string]string
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(&fields); err != nil {
			return nil, classifyBodyErr(err)
		}
		if dec.More() {
			return nil, xerrors.Wrap(errMalformed, "trailing data after JSON object")
		}
		if fields == nil {
			fields = map[string]string{}
		}
		return fields, nil

	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, classifyBodyErr(err)
		}
		fields := make(map[string]string, len(r.PostForm))
		for k, vs := range r.PostForm {
			if len(vs) > 0 {
				fields[k] = vs[0]
			}
		}
		return fields, nil
	}
	return nil, xerrors.Wrapf(errUnsupportedType, "content type %s", ct)
}

func classifyBodyErr(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return xerrors.Wrap(errTooLarge, err.Error())
	}
	return xerrors.Wrap(errMalformed, err.Error())
}
