// Package integration provides integration tests for the plugin mirror.
// These tests run the complete application against a fake plugin directory
// and validate synchronization, read-through and change notifications.
package integration
