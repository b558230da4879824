package jobs

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestHealthCheckJob_LogResourceUsage_DoesNotPanic(t *testing.T) {
	j := &HealthCheckJob{
		JobBase: NewJobBase("heartbeat"),
		log:     zerolog.Nop(),
	}

	// logResourceUsage only touches the host's own /proc (via gopsutil), so
	// it needs none of the six external clients Run() depends on.
	j.logResourceUsage()
}
