package client

import (
	"fmt"
	"slices"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entrans "github.com/go-playground/validator/v10/translations/en"

	"github.com/artshield/artshield/internal/domain/protection"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	locale := en.New()
	uni := ut.New(locale, locale)
	translator, _ = uni.GetTranslator("en")

	if err := entrans.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(fmt.Sprintf("registering validator translations: %v", err))
	}
}

// checkParams runs struct-tag validation and reports the first violation as a
// ValidationError. All violations happen before any network activity.
func checkParams(p SubmitParams) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return protection.ValidationError{Field: "params", Reason: err.Error()}
	}

	first := verrs[0]
	return protection.ValidationError{
		Field:  first.Field(),
		Reason: first.Translate(translator),
	}
}

// sniffMIME detects the content type from the leading bytes of the file and
// checks it against the configured allow-list. The file extension is ignored;
// only content counts.
func sniffMIME(head []byte, accepted []string) (string, error) {
	mt := mimetype.Detect(head)

	detected := mt.String()
	for m := mt; m != nil; m = m.Parent() {
		if slices.Contains(accepted, m.String()) {
			return m.String(), nil
		}
	}

	return "", protection.ValidationError{
		Field:  "file",
		Reason: fmt.Sprintf("unsupported content type %s", detected),
	}
}
