package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

// respond answers in protobuf when the client asked for it, JSON otherwise.
func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if wantsProtobuf(r) {
		writeProto(w, status, v)
		return
	}
	writeJSON(w, status, v)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	respond(w, r, status, errorBody{Error: code, Message: msg})
}

// decodeBody reads a JSON or protobuf body into v and validates it.  On
// failure it has already written the 400 response.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	var err error
	if isProtobuf(r) {
		err = readProto(r, v)
	} else {
		dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
		dec.DisallowUnknownFields()
		err = dec.Decode(v)
	}
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_body", describeDecodeError(err))
		return false
	}

	if err := validate.Struct(v); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", describeValidation(err))
		return false
	}
	return true
}

func describeDecodeError(err error) string {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, io.EOF):
		return "request body is empty"
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("invalid JSON at byte offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		return fmt.Sprintf("field %q should be of type %s", typeErr.Field, typeErr.Type)
	}
	return "invalid request body"
}

func describeValidation(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	out := make([]string, 0, len(ve))
	for _, fe := range ve {
		switch fe.Tag() {
		case "required":
			out = append(out, fmt.Sprintf("field %q is required", fe.Field()))
		case "oneof":
			out = append(out, fmt.Sprintf("field %q must be one of [%s]", fe.Field(), fe.Param()))
		default:
			out = append(out, fmt.Sprintf("field %q failed %q", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(out, ", ")
}
