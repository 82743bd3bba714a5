package repository

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/resource-api/internal/domain"
)

// fieldValidator checks client input against a kind's schema.
type fieldValidator struct {
	kind     domain.Kind
	validate *validator.Validate
}

// input filters raw client fields: reserved fields are dropped, unknown
// fields are rejected and every present value is checked against its
// declared type and rules. A nil value is kept so callers can clear fields.
func (fv fieldValidator) input(raw map[string]any) (map[string]any, error) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	// stable error reporting when several fields are wrong
	sort.Strings(names)

	out := make(map[string]any, len(raw))
	for _, name := range names {
		if domain.IsReservedField(name) {
			continue
		}
		f, ok := fv.kind.Field(name)
		if !ok {
			return nil, domain.NewValidationError(name, "is not a known field", domain.ErrUnknownField)
		}
		v := raw[name]
		if v != nil {
			if err := fv.value(f, v); err != nil {
				return nil, err
			}
		}
		out[name] = v
	}
	return out, nil
}

func (fv fieldValidator) value(f domain.Field, v any) error {
	if err := f.CheckType(v); err != nil {
		return err
	}

	if f.Type == domain.FieldTime {
		if _, err := time.Parse(time.RFC3339, v.(string)); err != nil {
			return domain.NewValidationError(f.Name, "must be an RFC 3339 timestamp", domain.ErrInvalidFormat)
		}
	}

	if f.Rules == "" {
		return nil
	}
	subject := v
	if f.Type == domain.FieldNumber {
		// json.Number is a string underneath; rules like min/max must see the value.
		n, _ := domain.Number(v)
		subject = n
	}
	if err := fv.validate.Var(subject, f.Rules); err != nil {
		return domain.NewValidationError(f.Name, ruleMessage(err), domain.ErrInvalidFormat)
	}
	return nil
}

// complete fills defaults and enforces required fields on a full record.
func (fv fieldValidator) complete(r domain.Record) error {
	for _, f := range fv.kind.Fields {
		v, present := r[f.Name]
		if present && v == nil {
			delete(r, f.Name)
			present = false
		}
		if !present && f.Default != nil {
			r[f.Name] = f.Default
			present = true
		}
		if !present && f.Required {
			return domain.NewValidationError(f.Name, "is required", domain.ErrValidation)
		}
	}
	return nil
}

func ruleMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed %s", fe.Tag())
	}
	return "is invalid"
}
