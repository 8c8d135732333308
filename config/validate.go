package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/cschleiden/go-mediaflow/classifier"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their TOML names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(Duration); ok {
			return int64(d.Duration)
		}

		return nil
	}, Duration{})

	v.RegisterStructValidation(validateConfig, Config{})

	return v
}

func validateConfig(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)

	if c.Storage.Catalog == "broker" && c.Broker.Kind != "sqlite" {
		sl.ReportError(c.Storage.Catalog, "storage.catalog", "Catalog", "broker_sqlite", "")
	}

	if c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		sl.ReportError(c.Tracing.Endpoint, "tracing.endpoint", "Endpoint", "required_for_otlp", "")
	}

	// Both decision and activity leases are extended on the same interval
	if c.Worker.HeartbeatInterval.Duration >= min(c.Broker.DecisionLockTimeout.Duration, c.Broker.ActivityLockTimeout.Duration) {
		sl.ReportError(c.Worker.HeartbeatInterval, "worker.heartbeat_interval", "HeartbeatInterval", "lt_lock_timeout", "")
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	err := newValidator().Struct(c)
	if err == nil {
		_, err = classifier.New(c.Classifier)
		if err != nil {
			return fmt.Errorf("classifier: %w", err)
		}

		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}

	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	// Namespace is "Config.broker.kind"; drop the root type
	_, field, _ := strings.Cut(fe.Namespace(), ".")

	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "gt":
		return field + " must be greater than zero"
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "broker_sqlite":
		return "storage.catalog = \"broker\" requires broker.kind = \"sqlite\""
	case "required_for_otlp":
		return "tracing.endpoint is required for the otlp exporter"
	case "lt_lock_timeout":
		return "worker.heartbeat_interval must be shorter than broker.decision_lock_timeout and broker.activity_lock_timeout"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
