package obsmetrics

import "go.opentelemetry.io/otel/attribute"

func attrString(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}
