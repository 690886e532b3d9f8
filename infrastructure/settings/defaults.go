package settings

const (
	DefaultPort          uint16 = 9987
	DefaultSecurityLevel        = 8
	MaxSecurityLevel            = 160

	MinNicknameLength = 3
	MaxNicknameLength = 30

	DefaultConnectTimeoutMs  TimeoutMs = 15000
	DefaultResendIntervalMs  TimeoutMs = 1000
	DefaultResendTimeoutMs   TimeoutMs = 30000
	DefaultSilenceTimeoutMs  TimeoutMs = 30000
	DefaultDisconnectGraceMs TimeoutMs = 500
	DefaultPingIntervalMs    TimeoutMs = 1000
	DefaultResendTickMs      TimeoutMs = 100
)
