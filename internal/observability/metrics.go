package observability

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"
	MStoreMutations          MetricKey = "cart_store_mutations_total"
	MStorageFailures         MetricKey = "cart_storage_failures_total"
	MEventHandled            MetricKey = "event_handled_total"
)
