package settings

import "time"

type TimeoutMs int

func (d TimeoutMs) Int() int {
	return int(d)
}

func (d TimeoutMs) Duration() time.Duration {
	return time.Duration(d) * time.Millisecond
}

// Timeouts are the timer settings of a connection.
type Timeouts struct {
	ConnectMs         TimeoutMs `json:"ConnectMs"`
	ResendIntervalMs  TimeoutMs `json:"ResendIntervalMs"`
	ResendTimeoutMs   TimeoutMs `json:"ResendTimeoutMs"`
	SilenceMs         TimeoutMs `json:"SilenceMs"`
	DisconnectGraceMs TimeoutMs `json:"DisconnectGraceMs"`
	PingIntervalMs    TimeoutMs `json:"PingIntervalMs"`
	ResendTickMs      TimeoutMs `json:"ResendTickMs"`
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		ConnectMs:         DefaultConnectTimeoutMs,
		ResendIntervalMs:  DefaultResendIntervalMs,
		ResendTimeoutMs:   DefaultResendTimeoutMs,
		SilenceMs:         DefaultSilenceTimeoutMs,
		DisconnectGraceMs: DefaultDisconnectGraceMs,
		PingIntervalMs:    DefaultPingIntervalMs,
		ResendTickMs:      DefaultResendTickMs,
	}
}

// WithDefaults replaces every unset timer with its protocol default.
func (t Timeouts) WithDefaults() Timeouts {
	d := DefaultTimeouts()
	fill := func(v *TimeoutMs, def TimeoutMs) {
		if *v == 0 {
			*v = def
		}
	}
	fill(&t.ConnectMs, d.ConnectMs)
	fill(&t.ResendIntervalMs, d.ResendIntervalMs)
	fill(&t.ResendTimeoutMs, d.ResendTimeoutMs)
	fill(&t.SilenceMs, d.SilenceMs)
	fill(&t.DisconnectGraceMs, d.DisconnectGraceMs)
	fill(&t.PingIntervalMs, d.PingIntervalMs)
	fill(&t.ResendTickMs, d.ResendTickMs)
	return t
}

func (t Timeouts) validate() error {
	values := map[string]TimeoutMs{
		"ConnectMs":         t.ConnectMs,
		"ResendIntervalMs":  t.ResendIntervalMs,
		"ResendTimeoutMs":   t.ResendTimeoutMs,
		"SilenceMs":         t.SilenceMs,
		"DisconnectGraceMs": t.DisconnectGraceMs,
		"PingIntervalMs":    t.PingIntervalMs,
		"ResendTickMs":      t.ResendTickMs,
	}
	for name, v := range values {
		if v <= 0 {
			return &FieldError{Field: "Timeouts." + name, Reason: "must be positive"}
		}
	}
	if t.ResendTimeoutMs < t.ResendIntervalMs {
		return &FieldError{Field: "Timeouts.ResendTimeoutMs", Reason: "must not be shorter than ResendIntervalMs"}
	}
	return nil
}
