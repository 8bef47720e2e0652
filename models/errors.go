package models

import "fmt"

// ConfigurationError reports missing or invalid reference data or settings. Fatal to a run.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DiffComputationError reports a failure of the difference store. Fatal to a run.
type DiffComputationError struct {
	Op  string
	Err error
}

func (e *DiffComputationError) Error() string {
	return fmt.Sprintf("difference computation failed during %s: %v", e.Op, e.Err)
}

func (e *DiffComputationError) Unwrap() error { return e.Err }

// RecordError is scoped to a single batch entry. The entry is rolled back and the run
// continues.
type RecordError struct {
	DetailID uint
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.DetailID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// OrderingError reports a composite key that reappeared after its group was closed.
type OrderingError struct {
	Key CompositeKey
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("input not grouped by composite key: %s reappeared after its group closed", e.Key)
}

// DeliveryError reports a finished export file that could not be delivered. Fatal to a run.
type DeliveryError struct {
	Path string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver %s: %v", e.Path, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
