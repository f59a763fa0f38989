// Package server implements the core HTTP and WebSocket functionality for the
// FleetLink connection hub.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, routing, and HTTP handlers to keep the codebase
// maintainable and testable as the project grows. The hub multiplexes
// connections into named rooms, tracks announced agents by reported location,
// and routes dispatch payloads to the nearest agent.
package server
