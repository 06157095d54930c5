package codec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/evstack/ocpp16/internal/ocpp16"
)

// FieldError is one failed field constraint, adapted from the teacher's
// internal/domain/validation/validator.go ValidationError.
type FieldError struct {
	Field   string
	Tag     string
	Value   string
	Message string
}

func (e FieldError) Error() string { return e.Message }

// FieldErrors joins multiple FieldError values, same shape as the
// teacher's ValidationErrors.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, fe := range e {
		msgs = append(msgs, fe.Message)
	}
	return strings.Join(msgs, "; ")
}

// StructValidator validates typed OCPP payload structs via
// go-playground/validator struct tags. This is the corpus's idiom for
// payload shape validation (see DESIGN.md's C1 entry) and stands in for
// the true JSON-Schema engine spec.md names as an external collaborator.
type StructValidator struct {
	validate *validator.Validate
}

func NewStructValidator() *StructValidator {
	v := validator.New()
	registerOCPPValidations(v)
	return &StructValidator{validate: v}
}

func (v *StructValidator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	var out FieldErrors
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Value:   fmt.Sprintf("%v", fe.Value()),
			Message: friendlyMessage(fe),
		})
	}
	return out
}

func registerOCPPValidations(v *validator.Validate) {
	v.RegisterValidation("ocpp_datetime", validateDateTime)
	v.RegisterValidation("ocpp_id_token", validateIDToken)
	v.RegisterValidation("ocpp_connector_id", validateConnectorID)
	v.RegisterValidation("ocpp_meter_value", validateMeterValue)
	v.RegisterValidation("ocpp_status", validateStatus)
}

func validateDateTime(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := time.Parse(time.RFC3339, value)
	return err == nil
}

var idTokenRe = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

func validateIDToken(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return len(value) <= 20 && idTokenRe.MatchString(value)
}

func validateConnectorID(fl validator.FieldLevel) bool {
	return fl.Field().Int() >= 0
}

func validateMeterValue(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return false
	}
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

var validChargePointStatuses = map[string]bool{
	string(ocpp16.StatusAvailable):     true,
	string(ocpp16.StatusPreparing):     true,
	string(ocpp16.StatusCharging):      true,
	string(ocpp16.StatusSuspendedEVSE): true,
	string(ocpp16.StatusSuspendedEV):   true,
	string(ocpp16.StatusFinishing):     true,
	string(ocpp16.StatusReserved):      true,
	string(ocpp16.StatusUnavailable):   true,
	string(ocpp16.StatusFaulted):       true,
}

func validateStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return validChargePointStatuses[value]
}

func friendlyMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field %q is required", fe.Field())
	case "min":
		return fmt.Sprintf("field %q must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("field %q must not exceed %s", fe.Field(), fe.Param())
	case "gt", "gte":
		return fmt.Sprintf("field %q must be %s %s", fe.Field(), fe.Tag(), fe.Param())
	case "ocpp_datetime":
		return fmt.Sprintf("field %q must be an RFC3339 datetime", fe.Field())
	case "ocpp_id_token":
		return fmt.Sprintf("field %q must be at most 20 alphanumeric characters", fe.Field())
	case "ocpp_connector_id":
		return fmt.Sprintf("field %q must be a connector id >= 0", fe.Field())
	case "ocpp_meter_value":
		return fmt.Sprintf("field %q must be a numeric meter reading", fe.Field())
	case "ocpp_status":
		return fmt.Sprintf("field %q must be a valid charge point status", fe.Field())
	default:
		return fmt.Sprintf("field %q failed validation %q", fe.Field(), fe.Tag())
	}
}

// SchemaValidator is the pluggable validation boundary spec.md treats as
// an external collaborator (JSON Schema engine). The struct-tag validator
// above is the default, grounded implementation; callers may substitute a
// real schema engine without touching the dispatcher.
type SchemaValidator interface {
	ValidatePayload(action ocpp16.Action, direction ocpp16.Direction, payload interface{}) error
}

// DefaultSchemaValidator wraps StructValidator to satisfy SchemaValidator.
type DefaultSchemaValidator struct {
	sv *StructValidator
}

func NewDefaultSchemaValidator() *DefaultSchemaValidator {
	return &DefaultSchemaValidator{sv: NewStructValidator()}
}

func (d *DefaultSchemaValidator) ValidatePayload(_ ocpp16.Action, _ ocpp16.Direction, payload interface{}) error {
	return d.sv.ValidateStruct(payload)
}

// PassthroughValidator accepts every payload unconditionally. The Local
// Controller role uses this: spec.md §4.5's invariant 9 requires a
// forwarded payload to reach the far leg byte-for-byte, so an LC-side
// dispatcher must not unmarshal into (and re-validate against) a typed
// struct at all — that risks losing unknown fields a newer CP/CS might
// send through a relay that shouldn't care.
type PassthroughValidator struct{}

func (PassthroughValidator) ValidatePayload(ocpp16.Action, ocpp16.Direction, interface{}) error {
	return nil
}
