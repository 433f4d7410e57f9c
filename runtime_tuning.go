package shredder

import (
	"github.com/KimMachineGun/automemlimit/memlimit"
	"go.uber.org/automaxprocs/maxprocs"
)

// tuneRuntime runs once, when the process-wide collector is first
// constructed. It is purely a scheduling/memory-budget hint: both calls
// are best-effort and failures are logged, never fatal — the collector
// works fine on a GOMAXPROCS/GOMEMLIMIT Go picked on its own, these just
// make it container-aware.
func tuneRuntime() {
	if _, err := maxprocs.Set(maxprocs.Logger(maxprocsLogAdapter)); err != nil {
		log().Warn().Err(err).Msg("failed to adjust GOMAXPROCS for the current cgroup")
	}

	if _, err := memlimit.SetGoMemLimitWithOpts(memlimit.WithRatio(0.9)); err != nil {
		log().Warn().Err(err).Msg("failed to adjust GOMEMLIMIT for the current cgroup")
	}
}

func maxprocsLogAdapter(format string, args ...interface{}) {
	log().Info().Msgf(format, args...)
}
