package service

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/FACorreiaa/sales-manager/internal/domain/common"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationErrors maps validator failures to user facing messages.
func validationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := make(common.ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, &common.ValidationError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Este campo é obrigatório."
	case "min":
		if fe.Kind() == reflect.Slice {
			return "O arquivo enviado está vazio."
		}
		return fmt.Sprintf("Certifique-se de que o valor tenha no mínimo %s caracteres.", fe.Param())
	case "max":
		return fmt.Sprintf("Certifique-se de que o valor tenha no máximo %s caracteres.", fe.Param())
	case "email":
		return "Informe um endereço de email válido."
	default:
		return "Valor inválido."
	}
}

// checkExtension rejects file names whose extension is not allowed.
func checkExtension(fileName string, allowed []string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	for _, a := range allowed {
		if ext == a {
			return nil
		}
	}
	return &common.ValidationError{
		Field:   "file",
		Message: "Arquivo não suportado. Extensões válidas: " + strings.Join(allowed, ", "),
	}
}
