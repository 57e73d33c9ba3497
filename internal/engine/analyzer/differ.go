package analyzer

import "NetSentinel/internal/model"

// Rate is the throughput of one interface in bytes per second.
type Rate struct {
	SentPerSec float64
	RecvPerSec float64
}

// DiffIO computes per-interface byte rates between two counter sets taken dt
// seconds apart. Interfaces missing from prev are skipped, and a counter that
// went backwards (reset, interface restart) is reported as zero traffic.
func DiffIO(prev, cur map[string]model.IOCounters, dt float64) map[string]Rate {
	res := make(map[string]Rate, len(cur))
	for nic, c := range cur {
		p, ok := prev[nic]
		if !ok {
			continue
		}
		res[nic] = Rate{
			SentPerSec: clampedRate(p.BytesSent, c.BytesSent, dt),
			RecvPerSec: clampedRate(p.BytesRecv, c.BytesRecv, dt),
		}
	}
	return res
}

func clampedRate(prev, cur uint64, dt float64) float64 {
	if cur <= prev {
		return 0
	}
	return float64(cur-prev) / dt
}
