package types

// EngineType selects the table engine that reads and materializes GWAS tables.
type EngineType string

// EngineType values enumerate the supported table engines.
const (
	EngineHail     EngineType = "hail"
	EngineBigQuery EngineType = "bigquery"
)

// ProbeType selects how remote existence and listing checks are performed.
type ProbeType string

// ProbeType values enumerate the supported probe implementations.
const (
	ProbeAPI    ProbeType = "api"
	ProbeGsutil ProbeType = "gsutil"
)

// NotifyType defines a notification sink kind.
type NotifyType string

// NotifyType values enumerate the supported notification destinations.
const (
	NotifyConsole NotifyType = "console"
	NotifyPubSub  NotifyType = "pubsub"
	NotifyWebhook NotifyType = "webhook"
	NotifySQS     NotifyType = "sqs"
	NotifyEvents  NotifyType = "eventbridge"
	NotifyFile    NotifyType = "file"
)

// OutcomeLevel is the severity of an Outcome.
type OutcomeLevel string

// OutcomeLevel values, from routine progress to fatal failure.
const (
	OutcomeInfo    OutcomeLevel = "info"
	OutcomeSuccess OutcomeLevel = "success"
	OutcomeError   OutcomeLevel = "error"
)
