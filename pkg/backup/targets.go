package backup

import (
	"encoding/json"
	"errors"

	"github.com/aws/aws-lambda-go/events"
)

// ErrNoTargets means neither the event nor TARGET_FUNCTION yielded a
// function to process. A configuration problem, fatal for the invocation.
var ErrNoTargets = errors.New("no target functions provided; set TARGET_FUNCTION or invoke from EventBridge update events")

const (
	cloudTrailDetailType = "AWS API Call via CloudTrail"
	lambdaEventSource    = "lambda.amazonaws.com"
)

// functionNameFromEvent extracts the updated function from an EventBridge
// CloudTrail event. Any other payload shape yields "" — unrecognized
// events are never an error, they just fall through to polling mode.
func functionNameFromEvent(payload []byte) string {
	var evt events.CloudWatchEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return ""
	}
	if evt.DetailType != cloudTrailDetailType {
		return ""
	}
	var detail struct {
		EventSource       string `json:"eventSource"`
		RequestParameters struct {
			FunctionName string `json:"functionName"`
		} `json:"requestParameters"`
	}
	if err := json.Unmarshal(evt.Detail, &detail); err != nil {
		return ""
	}
	if detail.EventSource != lambdaEventSource {
		return ""
	}
	return detail.RequestParameters.FunctionName
}

// ResolveTargets decides which functions this invocation processes. An
// event-derived target wins outright; otherwise the static list is used
// verbatim (order kept, duplicates kept).
func ResolveTargets(payload []byte, staticTargets []string) ([]string, error) {
	if fn := functionNameFromEvent(payload); fn != "" {
		return []string{fn}, nil
	}
	if len(staticTargets) > 0 {
		return staticTargets, nil
	}
	return nil, ErrNoTargets
}
