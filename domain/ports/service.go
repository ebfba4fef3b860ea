package ports

import "context"

// ServiceExecutor is a named host service plugins can invoke through the
// service_execute host function. The host function is only registered when
// at least one executor is configured.
type ServiceExecutor interface {
	Name() string
	Execute(ctx context.Context, method string, payload []byte) ([]byte, error)
}
