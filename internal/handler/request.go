package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vyrodovalexey/bookstore/internal/model"
)

// MsgInvalidRequest heads the field errors of a rejected request body.
const MsgInvalidRequest = "One or more validation errors occurred."

// BookRequest is the body of create and update requests.
type BookRequest struct {
	ISBN     string   `json:"isbn" validate:"required,max=20"`
	Title    string   `json:"title" validate:"required,max=200"`
	Authors  []string `json:"authors" validate:"required,min=1,dive,required"`
	Category string   `json:"category" validate:"required,max=100"`
	Year     int      `json:"year" validate:"min=1000,max=3000"`
	Price    float64  `json:"price" validate:"min=0"`
}

// Book converts the request into a catalog record.
func (r BookRequest) Book() model.Book {
	return model.Book{
		ISBN:     strings.TrimSpace(r.ISBN),
		Title:    r.Title,
		Authors:  r.Authors,
		Category: r.Category,
		Year:     r.Year,
		Price:    r.Price,
	}
}

var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldErrors returns one message per failed constraint, or nil.
func (r BookRequest) fieldErrors() []string {
	err := requestValidator.Struct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, describe(fe))
	}
	return out
}

func describe(fe validator.FieldError) string {
	field := fe.Field()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
