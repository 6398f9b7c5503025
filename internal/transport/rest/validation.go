package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"debtster-kpi/internal/kpi"
	"debtster-kpi/internal/report"
	"debtster-kpi/internal/repository"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("kpi_key", func(fl validator.FieldLevel) bool {
		_, err := report.Lookup(fl.Field().String())
		return err == nil
	})
	return v
}

// FilterRequest is the dashboard filter as sent in a query string or a JSON
// body. Dates are calendar days, YYYY-MM-DD.
type FilterRequest struct {
	StartDate string   `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string   `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Queue     string   `json:"queue" validate:"max=255"`
	Agent     string   `json:"agent" validate:"max=255"`
	KPI       []string `json:"kpi" validate:"omitempty,dive,kpi_key"`

	from *time.Time
	to   *time.Time
}

// ParseFilterQuery reads start_date, end_date, queue, agent and kpi from the
// query string. kpi accepts a comma separated list or repeated parameters.
func ParseFilterQuery(r *http.Request, loc *time.Location) (*FilterRequest, error) {
	q := r.URL.Query()
	req := &FilterRequest{
		StartDate: strings.TrimSpace(q.Get("start_date")),
		EndDate:   strings.TrimSpace(q.Get("end_date")),
		Queue:     strings.TrimSpace(q.Get("queue")),
		Agent:     strings.TrimSpace(q.Get("agent")),
		KPI:       splitList(q["kpi"]),
	}
	return req, req.validate(loc)
}

// ParseFilterBody decodes a JSON filter. An empty body means no filter.
func ParseFilterBody(r *http.Request, loc *time.Location) (*FilterRequest, error) {
	req := &FilterRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ValidationError{Field: "body", Message: "invalid JSON"}
	}
	req.StartDate = strings.TrimSpace(req.StartDate)
	req.EndDate = strings.TrimSpace(req.EndDate)
	req.Queue = strings.TrimSpace(req.Queue)
	req.Agent = strings.TrimSpace(req.Agent)
	req.KPI = splitList(req.KPI)
	return req, req.validate(loc)
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (f *FilterRequest) validate(loc *time.Location) error {
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return err
	}

	if loc == nil {
		loc = time.UTC
	}
	var err error
	if f.from, err = parseDay(f.StartDate, loc); err != nil {
		return &ValidationError{Field: "start_date", Message: "start_date must be YYYY-MM-DD or empty"}
	}
	if f.to, err = parseDay(f.EndDate, loc); err != nil {
		return &ValidationError{Field: "end_date", Message: "end_date must be YYYY-MM-DD or empty"}
	}
	if f.from != nil && f.to != nil && f.from.After(*f.to) {
		return &ValidationError{Field: "start_date", Message: "start_date must not be after end_date"}
	}
	return nil
}

func fieldError(fe validator.FieldError) *ValidationError {
	field := fe.Field()
	switch fe.Tag() {
	case "datetime":
		return &ValidationError{Field: field, Message: field + " must be YYYY-MM-DD or empty"}
	case "kpi_key":
		return &ValidationError{Field: "kpi", Message: "unknown kpi: " + fe.Value().(string)}
	case "max":
		return &ValidationError{Field: field, Message: field + " is too long"}
	default:
		return &ValidationError{Field: field, Message: field + " is invalid"}
	}
}

func parseDay(s string, loc *time.Location) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (f *FilterRequest) ToKPIFilter() kpi.Filter {
	return kpi.Filter{
		From:  f.from,
		To:    f.to,
		Queue: f.Queue,
		Agent: f.Agent,
	}
}

func (f *FilterRequest) ToRecordsFilter() repository.RecordsFilter {
	return repository.RecordsFilter{
		From:  f.from,
		To:    f.to,
		Queue: f.Queue,
		Agent: f.Agent,
	}
}
