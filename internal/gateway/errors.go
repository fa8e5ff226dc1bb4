package gateway

import "fmt"

// InitializationError means the gateway rejected the initialization request
// before a checkout session existed (bad request, bad credentials).
type InitializationError struct {
	Message string
}

func (e *InitializationError) Error() string {
	return "gateway initialization failed: " + e.Message
}

// NetworkError means no usable response came back at all.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("gateway %s: no response: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// GatewayDeclineError is a 4xx business rejection (invalid channel config,
// unknown reference, declined charge).
type GatewayDeclineError struct {
	StatusCode int
	Message    string
}

func (e *GatewayDeclineError) Error() string {
	return fmt.Sprintf("gateway declined (%d): %s", e.StatusCode, e.Message)
}

// ServerError is a 5xx from the gateway.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("gateway server error (%d)", e.StatusCode)
}
