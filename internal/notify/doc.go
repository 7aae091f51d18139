// Package notify keeps the user-facing notifications raised by the service
// and runs their actions.
package notify
