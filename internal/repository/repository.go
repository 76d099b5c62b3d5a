package repository

import "errors"

// Package repository contains data access layer abstractions.
// Implementations live in subpackages (postgres for production, memory for
// development and concurrency tests). No business logic here — strictly
// persistence operations.

// ErrNotFound is returned when a row does not exist. Postgres implementations
// map sql.ErrNoRows to it so services never import database/sql.
var ErrNotFound = errors.New("record not found")

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
