package config

const (
	// TopicErrorAlert carries alerts raised by the error monitor.
	TopicErrorAlert = "alerts.error"

	// TopicJobSubmit carries background jobs submitted by other services.
	TopicJobSubmit = "jobs.submit"
)
