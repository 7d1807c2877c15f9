package session

import (
	"errors"
)

var (
	// Connection errors.
	ErrConnectTimeout  = errors.New("connection to gateway timed out")
	ErrConnectRejected = errors.New("gateway rejected the connection")

	// Order errors.
	ErrNotConnected       = errors.New("not connected to gateway")
	ErrContractUnresolved = errors.New("instrument could not be qualified")
	ErrGatewayRejected    = errors.New("gateway rejected the order")
)
