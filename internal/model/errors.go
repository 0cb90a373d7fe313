package model

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrUpstream      = errors.New("upstream error")
	ErrNoCredentials = errors.New("upstream credentials not configured")
)
