package handler

import "errors"

const (
	// RootPath is the root path the route group.
	RootPath = "/"

	// APIPath prefixes every API route.
	APIPath = RootPath + "api"

	// ErrNilDepsFatalLogMsg is used if app or a mandatory dependency is nil.
	ErrNilDepsFatalLogMsg = "app, cfg, auth service or user store is nil"
)

// Message is the body of plain API responses.
type Message struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrNilDeps is returned by Init when app or a mandatory dependency is nil.
var ErrNilDeps = errors.New(ErrNilDepsFatalLogMsg)
