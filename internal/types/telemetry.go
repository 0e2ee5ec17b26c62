package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricAPILatency      = "APILatency"
	MetricAPIRequest      = "APIRequest"
	MetricDeliveryAttempt = "DeliveryAttempt"
	MetricDeliveryLatency = "DeliveryLatency"

	// Dimension Keys
	DimEndpoint = "Endpoint"
	DimMethod   = "Method"
	DimStatus   = "Status"
	DimStage    = "Stage"
	DimChannel  = "Channel"

	// Delivery outcomes, used as the Status dimension of DeliveryAttempt.
	DeliverySuccess  = "success"
	DeliveryFailed   = "failed"
	DeliveryRejected = "rejected"

	// ChannelEmail is the only delivery channel.
	ChannelEmail = "email"

	// Metric Namespace
	MetricNamespace = "Zozbit/Notify"
)
