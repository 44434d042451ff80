// Package testutil contains helper builders and canned agent functions used
// across tests to reduce boilerplate when constructing definitions and
// payloads. These helpers are intentionally minimal and avoid adding
// third-party dependencies. They are not intended for production usage.
package testutil
