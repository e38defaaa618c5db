package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// KindVideoProcessing is the job kind of VideoArgs
const KindVideoProcessing = "video_processing"

// VideoArgs represents arguments for video processing jobs
type VideoArgs struct {
	VideoURL           string `json:"video_url"`
	UserID             string `json:"user_id"`
	ProcessingStrategy string `json:"processing_strategy"`
}

// Kind returns the job type name
func (VideoArgs) Kind() string { return KindVideoProcessing }

// Strategy returns the requested sampling strategy
func (a VideoArgs) Strategy() Strategy { return Strategy(a.ProcessingStrategy) }

// videoPayload is the strict shape webhook data must satisfy. Pointers tell a missing
// field apart from an empty one.
type videoPayload struct {
	VideoURL           *string `json:"video_url" validate:"required,http_url"`
	UserID             *string `json:"user_id" validate:"required"`
	ProcessingStrategy *string `json:"processing_strategy" validate:"required"`
}

// ValidationError is returned when webhook data does not describe a valid video job
type ValidationError struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError whose message lists every field, sorted by name
func NewValidationError(fields map[string]string) *ValidationError {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+fields[name])
	}
	return &ValidationError{Message: strings.Join(parts, "; "), Fields: fields}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewVideoArgs re-validates loosely typed webhook data into VideoArgs. Every field must be
// present and a string, and video_url must be an absolute http(s) URL. Any failure yields
// a *ValidationError and a zero VideoArgs.
func NewVideoArgs(data map[string]any) (VideoArgs, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return VideoArgs{}, &ValidationError{Message: fmt.Sprintf("data is not encodable: %v", err)}
	}

	fields := make(map[string]string)

	var payload videoPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) || typeErr.Field == "" {
			return VideoArgs{}, &ValidationError{Message: fmt.Sprintf("data is malformed: %v", err)}
		}
		// Unmarshal keeps going past type mismatches, so the other fields are still set.
		fields[typeErr.Field] = "input should be a valid string"
	}

	if err := validate.Struct(payload); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return VideoArgs{}, fmt.Errorf("validate video payload: %w", err)
		}
		for _, fe := range verrs {
			if _, seen := fields[fe.Field()]; seen {
				continue
			}
			fields[fe.Field()] = reason(fe)
		}
	}

	if len(fields) > 0 {
		return VideoArgs{}, NewValidationError(fields)
	}

	return VideoArgs{
		VideoURL:           *payload.VideoURL,
		UserID:             *payload.UserID,
		ProcessingStrategy: *payload.ProcessingStrategy,
	}, nil
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "http_url":
		return "invalid URL, must be an absolute http or https URL"
	}
	return "failed " + fe.Tag() + " check"
}
