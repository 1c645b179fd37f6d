package protocol

// Wire constants shared by every node role.
const (
	Version     = 1
	CommandType = 0xC1

	ReportSize  = 8
	CommandSize = 7

	MaxTanks  = 3
	TargetAll = 255

	FlagValid  = 0x01
	FlagAtRisk = 0x02

	// RiskThresholdMM is the at-risk distance in millimetres (6.0 cm).
	RiskThresholdMM = 60

	maxDurationUnits = 0xFFFF
)
