package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"proquiz-service/internal/domain"
)

const maxBodyBytes = 1 << 20

// binder decodes JSON payloads and validates them with struct tags.
type binder struct {
	v     *validator.Validate
	trans ut.Translator
}

func newBinder() *binder {
	v := validator.New()
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)
	return &binder{v: v, trans: trans}
}

// bind fills dst from the request body. Failures come back as
// *domain.ValidationError.
func (b *binder) bind(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return domain.NewValidationError("body", "malformed JSON payload")
	}
	return b.validate(dst)
}

func (b *binder) validate(dst interface{}) error {
	err := b.v.Struct(dst)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return domain.NewValidationError("body", err.Error())
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Translate(b.trans)
	}
	return &domain.ValidationError{Fields: fields}
}
