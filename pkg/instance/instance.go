package instance

import "github.com/medstock/medstock-backend/pkg/env"

// GetID returns the process instance identifier used in worker log context.
// MEDSTOCK_INSTANCE_ID wins over the platform-provided DYNO name.
func GetID() string {
	if id := env.First("MEDSTOCK_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	return "local"
}
