package types

// ActivitySource identifies an inbound integration that emits activities.
type ActivitySource string

const (
	SourceUnspecified    ActivitySource = ""
	SourceHevy           ActivitySource = "HEVY"
	SourceStrava         ActivitySource = "STRAVA"
	SourceFitbit         ActivitySource = "FITBIT"
	SourceFileUpload     ActivitySource = "FILE_UPLOAD"
	SourceParkrunResults ActivitySource = "PARKRUN_RESULTS"
	SourceMock           ActivitySource = "MOCK"
)

// Destination identifies an outbound integration that receives uploads.
type Destination string

const (
	DestinationUnspecified Destination = ""
	DestinationMock        Destination = "MOCK"
	DestinationHevy        Destination = "HEVY"
	DestinationStrava      Destination = "STRAVA"
)

// EnricherProviderType is the stable identifier a pipeline step is configured
// with. Dispatch is a registry lookup on this value.
type EnricherProviderType string

const (
	EnricherProviderUnspecified    EnricherProviderType = ""
	EnricherProviderMock           EnricherProviderType = "MOCK"
	EnricherProviderLogicGate      EnricherProviderType = "LOGIC_GATE"
	EnricherProviderCalories       EnricherProviderType = "CALORIES_BURNED"
	EnricherProviderUserInput      EnricherProviderType = "USER_INPUT"
	EnricherProviderAutoIncrement  EnricherProviderType = "AUTO_INCREMENT"
	EnricherProviderBranding       EnricherProviderType = "BRANDING"
	EnricherProviderAICompanion    EnricherProviderType = "AI_COMPANION"
	EnricherProviderWorkoutSummary EnricherProviderType = "WORKOUT_SUMMARY"
)

// ActivityType is the normalized workout type.
type ActivityType string

const (
	ActivityTypeUnspecified    ActivityType = ""
	ActivityTypeRun            ActivityType = "RUN"
	ActivityTypeTrailRun       ActivityType = "TRAIL_RUN"
	ActivityTypeVirtualRun     ActivityType = "VIRTUAL_RUN"
	ActivityTypeWalk           ActivityType = "WALK"
	ActivityTypeHike           ActivityType = "HIKE"
	ActivityTypeRide           ActivityType = "RIDE"
	ActivityTypeVirtualRide    ActivityType = "VIRTUAL_RIDE"
	ActivityTypeSwim           ActivityType = "SWIM"
	ActivityTypeWeightTraining ActivityType = "WEIGHT_TRAINING"
	ActivityTypeCrossfit       ActivityType = "CROSSFIT"
	ActivityTypeYoga           ActivityType = "YOGA"
	ActivityTypeRowing         ActivityType = "ROWING"
	ActivityTypeElliptical     ActivityType = "ELLIPTICAL"
	ActivityTypeHIIT           ActivityType = "HIGH_INTENSITY_INTERVAL_TRAINING"
	ActivityTypeOther          ActivityType = "OTHER"
)

// ExecutionStatus is the lifecycle of a single stage invocation.
type ExecutionStatus string

const (
	StatusUnknown     ExecutionStatus = "STATUS_UNKNOWN"
	StatusPending     ExecutionStatus = "STATUS_PENDING"
	StatusStarted     ExecutionStatus = "STATUS_STARTED"
	StatusSuccess     ExecutionStatus = "STATUS_SUCCESS"
	StatusFailed      ExecutionStatus = "STATUS_FAILED"
	StatusSkipped     ExecutionStatus = "STATUS_SKIPPED"
	StatusWaiting     ExecutionStatus = "STATUS_WAITING"
	StatusLaggedRetry ExecutionStatus = "STATUS_LAGGED_RETRY"
)

// PipelineRunStatus is the lifecycle of one logical pipeline invocation.
// Transitions are monotonic except AWAITING_INPUT -> RUNNING on resume.
type PipelineRunStatus string

const (
	PipelineRunPending       PipelineRunStatus = "PENDING"
	PipelineRunRunning       PipelineRunStatus = "RUNNING"
	PipelineRunAwaitingInput PipelineRunStatus = "AWAITING_INPUT"
	PipelineRunSuccess       PipelineRunStatus = "SUCCESS"
	PipelineRunPartial       PipelineRunStatus = "PARTIAL"
	PipelineRunFailed        PipelineRunStatus = "FAILED"
	PipelineRunSkipped       PipelineRunStatus = "SKIPPED"
)

// DestinationStatus is a per-destination sub-status within a PipelineRun.
type DestinationStatus string

const (
	DestinationStatusPending DestinationStatus = "PENDING"
	DestinationStatusSuccess DestinationStatus = "SUCCESS"
	DestinationStatusFailed  DestinationStatus = "FAILED"
	DestinationStatusSkipped DestinationStatus = "SKIPPED"
)

// PendingInputStatus is the lifecycle of a paused enrichment.
type PendingInputStatus string

const (
	PendingInputWaiting       PendingInputStatus = "WAITING"
	PendingInputResolved      PendingInputStatus = "RESOLVED"
	PendingInputDismissed     PendingInputStatus = "DISMISSED"
	PendingInputAutoPopulated PendingInputStatus = "AUTO_POPULATED"
)

// UserTier is the stored subscription tier.
type UserTier string

const (
	UserTierHobbyist UserTier = "HOBBYIST"
	UserTierAthlete  UserTier = "ATHLETE"
)
