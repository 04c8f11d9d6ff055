package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate is the global validator instance
var Validate *validator.Validate

// Travel modes accepted from clients. The directions backend uses its own
// names (car, bike, foot); the mapping lives in internal/directions.
var travelModes = []string{"driving", "bicycling", "walking"}

// MaxIncidentTypeID is the highest id in the hazard type catalog.
const MaxIncidentTypeID = 12

func init() {
	Validate = validator.New()

	_ = Validate.RegisterValidation("latitude", validateLatitude)
	_ = Validate.RegisterValidation("longitude", validateLongitude)
	_ = Validate.RegisterValidation("travel_mode", validateTravelMode)
	_ = Validate.RegisterValidation("incident_type", validateIncidentType)
	_ = Validate.RegisterValidation("bearing", validateBearing)
}

// ValidationError collects per-field messages.
type ValidationError struct {
	Errors map[string]string
}

// NewValidationError converts validator output into a ValidationError keyed
// by struct field name.
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	ve := &ValidationError{Errors: make(map[string]string, len(errs))}
	for _, fe := range errs {
		ve.AddError(fe.Field(), fieldMessage(fe))
	}
	return ve
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Errors[field]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) AddError(field, message string) {
	if e.Errors == nil {
		e.Errors = make(map[string]string)
	}
	e.Errors[field] = message
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) GetFieldError(field string) (string, bool) {
	msg, ok := e.Errors[field]
	return msg, ok
}

// ValidateStruct validates a struct and returns a ValidationError if validation fails
func ValidateStruct(s interface{}) error {
	err := Validate.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return NewValidationError(validationErrors)
	}
	return err
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "latitude":
		return "latitude must be between -90 and 90"
	case "longitude":
		return "longitude must be between -180 and 180"
	case "travel_mode":
		return "travel mode must be one of " + strings.Join(travelModes, ", ")
	case "incident_type":
		return fmt.Sprintf("incident type must be between 1 and %d", MaxIncidentTypeID)
	case "bearing":
		return "bearing must be in [0, 360)"
	default:
		return fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
	}
}

func validateLatitude(fl validator.FieldLevel) bool {
	latitude := fl.Field().Float()
	return latitude >= -90.0 && latitude <= 90.0
}

func validateLongitude(fl validator.FieldLevel) bool {
	longitude := fl.Field().Float()
	return longitude >= -180.0 && longitude <= 180.0
}

func validateBearing(fl validator.FieldLevel) bool {
	bearing := fl.Field().Float()
	return bearing >= 0 && bearing < 360
}

func validateTravelMode(fl validator.FieldLevel) bool {
	return IsTravelMode(fl.Field().String())
}

func validateIncidentType(fl validator.FieldLevel) bool {
	id := fl.Field().Int()
	return id >= 1 && id <= MaxIncidentTypeID
}

// IsTravelMode reports whether mode is a client travel mode, ignoring case
// and surrounding space.
func IsTravelMode(mode string) bool {
	mode = strings.ToLower(strings.TrimSpace(mode))
	for _, m := range travelModes {
		if m == mode {
			return true
		}
	}
	return false
}

// ValidateCoordinates validates latitude and longitude
func ValidateCoordinates(latitude, longitude float64) error {
	if latitude < -90.0 || latitude > 90.0 {
		return fmt.Errorf("latitude must be between -90 and 90, got: %f", latitude)
	}
	if longitude < -180.0 || longitude > 180.0 {
		return fmt.Errorf("longitude must be between -180 and 180, got: %f", longitude)
	}
	return nil
}
