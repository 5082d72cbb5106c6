package validation

import (
	"fmt"
	"strings"

	errors "github.com/frahmantamala/vip-checkout/internal"
)

type ValidatorFunc func(interface{}) *errors.AppError

type FieldValidator struct {
	FieldName  string
	Value      interface{}
	Validators []ValidatorFunc
}

type ValidationBuilder struct {
	fields []*FieldValidator
}

func NewValidator() *ValidationBuilder {
	return &ValidationBuilder{
		fields: make([]*FieldValidator, 0),
	}
}

func (v *ValidationBuilder) Field(name string, value interface{}) *FieldValidator {
	fv := &FieldValidator{
		FieldName:  name,
		Value:      value,
		Validators: make([]ValidatorFunc, 0),
	}
	v.fields = append(v.fields, fv)
	return fv
}

func (fv *FieldValidator) fail(message string, code errors.ErrorCode) *errors.AppError {
	return errors.NewValidationFieldError(fv.FieldName, message, code)
}

func (fv *FieldValidator) Required() *FieldValidator {
	return fv.RequiredWithCode(fmt.Sprintf("%s is required", fv.FieldName), errors.ErrCodeValidationFailed)
}

// RequiredWithCode is Required with a user-facing message and a specific code.
func (fv *FieldValidator) RequiredWithCode(message string, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		switch v := value.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return fv.fail(message, code)
			}
		case int64:
			if v == 0 {
				return fv.fail(message, code)
			}
		case *string:
			if v == nil || strings.TrimSpace(*v) == "" {
				return fv.fail(message, code)
			}
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MinInt(min int64, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(int64); ok && v < min {
			message := fmt.Sprintf("%s must be at least %d", fv.FieldName, min)
			if fv.FieldName == "amount" {
				message = fmt.Sprintf("minimum amount is %s VND", groupThousands(min))
			}
			return fv.fail(message, code)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) OneOf(allowed []string, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		v, ok := value.(string)
		if !ok || v == "" {
			return nil
		}
		for _, a := range allowed {
			if a == v {
				return nil
			}
		}
		return fv.fail(fmt.Sprintf("%s %q is not supported", fv.FieldName, v), code)
	})
	return fv
}

func (fv *FieldValidator) Digits(minLen, maxLen int, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		v, ok := value.(string)
		if !ok {
			return nil
		}
		v = strings.ReplaceAll(v, " ", "")
		if len(v) < minLen || len(v) > maxLen {
			return fv.fail(fmt.Sprintf("%s must have %d to %d digits", fv.FieldName, minLen, maxLen), code)
		}
		for _, r := range v {
			if r < '0' || r > '9' {
				return fv.fail(fmt.Sprintf("%s must contain digits only", fv.FieldName), code)
			}
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) Custom(validator func(interface{}) *errors.AppError) *FieldValidator {
	fv.Validators = append(fv.Validators, validator)
	return fv
}

// Validate runs every field and stops at the first failure per field.
func (v *ValidationBuilder) Validate() *errors.AppError {
	var validationErrors []errors.ValidationError

	for _, field := range v.fields {
		for _, validator := range field.Validators {
			err := validator(field.Value)
			if err == nil {
				continue
			}
			if details, ok := err.Details.(errors.ValidationErrors); ok {
				validationErrors = append(validationErrors, details.Errors...)
			} else {
				validationErrors = append(validationErrors, errors.ValidationError{
					Field:   field.FieldName,
					Message: err.Message,
					Code:    string(err.Code),
				})
			}
			break
		}
	}

	if len(validationErrors) > 0 {
		code := errors.ErrCodeValidationFailed
		if len(validationErrors) == 1 {
			code = errors.ErrorCode(validationErrors[0].Code)
		}
		return errors.NewValidationError("Validation failed", code).
			WithDetails(errors.ValidationErrors{Errors: validationErrors})
	}

	return nil
}

// ValidatePaymentAmount enforces the checkout minimum before any network call.
func ValidatePaymentAmount(amount, min int64) *errors.AppError {
	validator := NewValidator()
	validator.Field("amount", amount).
		RequiredWithCode("amount is required", errors.ErrCodeInvalidAmount).
		MinInt(min, errors.ErrCodeAmountTooLow)
	return validator.Validate()
}

func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return "-" + groupThousands(-n)
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
