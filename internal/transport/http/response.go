package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"proquiz-service/internal/domain"
)

// ErrCode identifies an API error independent of its message.
type ErrCode string

const (
	CodeInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	CodeTokenRequired      ErrCode = "TOKEN_REQUIRED"
	CodeTokenInvalid       ErrCode = "TOKEN_INVALID"
	CodeForbidden          ErrCode = "FORBIDDEN"
	CodeValidation         ErrCode = "VALIDATION_ERROR"
	CodeInvalidID          ErrCode = "INVALID_ID"
	CodeNotFound           ErrCode = "NOT_FOUND"
	CodeInvalidState       ErrCode = "INVALID_STATE"
	CodeUsernameTaken      ErrCode = "USERNAME_TAKEN"
	CodeSequenceMismatch   ErrCode = "SEQUENCE_MISMATCH"
	CodeFileRequired       ErrCode = "FILE_REQUIRED"
	CodeInternal           ErrCode = "INTERNAL_ERROR"
)

// Response is the JSON envelope of every API reply.
type Response struct {
	Data     interface{} `json:"data"`
	Error    *ErrorBody  `json:"error,omitempty"`
	Metadata Metadata    `json:"metadata"`
}

type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

func writeData(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	writeJSON(w, status, Response{Data: data, Metadata: metadata(r)})
}

func writeFail(w http.ResponseWriter, r *http.Request, status int, code ErrCode, message string, fields map[string]string) {
	writeJSON(w, status, Response{
		Error:    &ErrorBody{Code: code, Message: message, Fields: fields},
		Metadata: metadata(r),
	})
}

// writeError maps a core error to its HTTP status and code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		writeFail(w, r, http.StatusNotFound, CodeNotFound, err.Error(), nil)
	case domain.KindInvalidState:
		writeFail(w, r, http.StatusConflict, CodeInvalidState, err.Error(), nil)
	case domain.KindUsernameTaken:
		writeFail(w, r, http.StatusConflict, CodeUsernameTaken, err.Error(), nil)
	case domain.KindSequenceMismatch:
		writeFail(w, r, http.StatusConflict, CodeSequenceMismatch, err.Error(), nil)
	case domain.KindValidation:
		var fields map[string]string
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			fields = ve.Fields
		}
		writeFail(w, r, http.StatusBadRequest, CodeValidation, domain.ErrValidation.Error(), fields)
	case domain.KindForbidden:
		writeFail(w, r, http.StatusForbidden, CodeForbidden, err.Error(), nil)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeFail(w, r, http.StatusInternalServerError, CodeInternal, "internal server error", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func metadata(r *http.Request) Metadata {
	id := requestIDFrom(r.Context())
	if id == "" {
		id = uuid.New().String()
	}
	return Metadata{
		RequestID: id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
