package neighbourhood

import (
	"errors"
	"fmt"
)

var (
	// ErrProvisioningFailed matches every *ProvisioningError
	ErrProvisioningFailed = errors.New("neighbourhood provisioning failed")
	// ErrConfigurationNotYetVisible means a joined clone has not yet seen
	// the applet config; retry with RetryConfiguration
	ErrConfigurationNotYetVisible = errors.New("neighbourhood configuration not yet visible")
	// ErrInvalidTransition is returned for actions the current state forbids
	ErrInvalidTransition = errors.New("invalid provisioning transition")
	// ErrProvisioningInFlight is returned while another pipeline is running
	ErrProvisioningInFlight = errors.New("provisioning already in progress")
	// ErrMissingActivator is returned by Join without an activator key
	ErrMissingActivator = errors.New("community activator key required")
)

// ProvisioningError wraps the failure of one pipeline stage
type ProvisioningError struct {
	Action Action
	Stage  Stage
	Err    error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("%s neighbourhood failed at %s: %v", e.Action, e.Stage, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProvisioningFailed) hold
func (e *ProvisioningError) Is(target error) bool {
	return target == ErrProvisioningFailed
}
