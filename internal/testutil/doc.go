// Package testutil contains helper builders and participants used across
// tests to reduce boilerplate when constructing messages and observing what
// a participant receives. They are not intended for production usage.
package testutil
