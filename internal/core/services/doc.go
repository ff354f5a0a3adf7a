// Package services contains the core business logic: question
// classification, context orchestration, sync runs and scheduling.
// Services depend only on ports, never on concrete adapters.
package services
