package registry

import "fmt"

// UnknownDatasetError reports a dataset id that is not registered.
type UnknownDatasetError struct {
	ID string
}

func (e *UnknownDatasetError) Error() string {
	return fmt.Sprintf("registry: unknown dataset %q", e.ID)
}

// DatasetUnavailableError reports a dataset whose build failed. The build is
// not retried; every call gets the original cause.
type DatasetUnavailableError struct {
	ID  string
	Err error
}

func (e *DatasetUnavailableError) Error() string {
	return fmt.Sprintf("registry: dataset %q unavailable: %v", e.ID, e.Err)
}

func (e *DatasetUnavailableError) Unwrap() error { return e.Err }
