package utils

import "fmt"

// providerPolicy is one row of the static volume policy table. A zero field
// means the provider has no such limit.
type providerPolicy struct {
	DailyCap      int
	SafetyMargin  int
	InfoThreshold int
}

// Keyed by "provider/mode" with a bare "provider" fallback.
var providerPolicies = map[string]providerPolicy{
	"resend/sandbox":    {DailyCap: 100, SafetyMargin: 90},
	"resend/production": {InfoThreshold: 10000},
	"smtp":              {DailyCap: 500, SafetyMargin: 450},
}

// AdviseVolume inspects the resolved recipient count against the provider's
// volume policy and returns an optional advisory. It is pure, never errors
// and never blocks or alters dispatch.
func AdviseVolume(recipientCount int, provider, mode string) *string {
	policy, ok := providerPolicies[provider+"/"+mode]
	if !ok {
		policy, ok = providerPolicies[provider]
	}
	if !ok {
		return nil
	}

	if policy.DailyCap > 0 {
		if recipientCount > policy.DailyCap {
			msg := fmt.Sprintf(
				"recipient count %d exceeds the %s daily cap of %d; deliveries beyond the cap may be rejected",
				recipientCount, provider, policy.DailyCap,
			)
			return &msg
		}
		if policy.SafetyMargin > 0 && recipientCount >= policy.SafetyMargin {
			msg := fmt.Sprintf(
				"recipient count %d is close to the %s daily cap of %d",
				recipientCount, provider, policy.DailyCap,
			)
			return &msg
		}
	}

	if policy.InfoThreshold > 0 && recipientCount >= policy.InfoThreshold {
		msg := fmt.Sprintf(
			"high-volume broadcast: %d recipients; consider splitting the send",
			recipientCount,
		)
		return &msg
	}

	return nil
}
