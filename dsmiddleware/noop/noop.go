// Package noop provides a middleware that passes every RPC through.
package noop

import (
	"go.mercari.io/dataset"
)

var _ dataset.Middleware = &noop{}

// New no-op middleware creates and returns.
func New() dataset.Middleware {
	return &noop{}
}

type noop struct {
}

func (*noop) WrapService(next dataset.Service) dataset.Service {
	return &Service{Service: next}
}

// Service forwards every call to the embedded service. Embed it to write a
// middleware that only overrides some of the RPCs.
type Service struct {
	dataset.Service
}
