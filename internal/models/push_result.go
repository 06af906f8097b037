package models

import (
	"encoding/json"
	"fmt"
)

const (
	// ResultDelivered indicates the push was acknowledged by the provider.
	ResultDelivered = "delivered"
	// ResultFailed indicates the provider rejected the push or it never arrived.
	ResultFailed = "failed"
)

// DeliveryFailure describes why a single target was not delivered.
type DeliveryFailure struct {
	// StatusCode is zero when no response was received.
	StatusCode int
	// ErrorCode is the FCM error code, e.g. UNREGISTERED.
	ErrorCode string
	// Detail holds the decoded JSON error body, or the raw text when it is not JSON.
	Detail interface{}
	Err    error
}

func (f *DeliveryFailure) Error() string {
	switch {
	case f.Err != nil:
		return f.Err.Error()
	case f.ErrorCode != "":
		return fmt.Sprintf("fcm: status %d: %s", f.StatusCode, f.ErrorCode)
	default:
		return fmt.Sprintf("fcm: status %d", f.StatusCode)
	}
}

func (f *DeliveryFailure) Unwrap() error {
	return f.Err
}

var errNoOutcome = fmt.Errorf("no outcome recorded")

// DeliveryOutcome is either a provider response or a failure, never both.
type DeliveryOutcome struct {
	response map[string]interface{}
	failure  *DeliveryFailure
}

// Delivered builds a successful outcome from the provider response body.
func Delivered(response map[string]interface{}) DeliveryOutcome {
	if response == nil {
		response = map[string]interface{}{}
	}
	return DeliveryOutcome{response: response}
}

// Failed builds a failed outcome.
func Failed(failure *DeliveryFailure) DeliveryOutcome {
	if failure == nil {
		failure = &DeliveryFailure{}
	}
	return DeliveryOutcome{failure: failure}
}

// Succeeded reports whether the outcome was built by Delivered. The zero
// value counts as a failure.
func (o DeliveryOutcome) Succeeded() bool {
	return o.failure == nil && o.response != nil
}

func (o DeliveryOutcome) Response() map[string]interface{} {
	return o.response
}

// Failure returns the failure details, or nil for a delivered outcome.
// An unset outcome reports a failure with an error.
func (o DeliveryOutcome) Failure() *DeliveryFailure {
	if o.failure == nil && o.response == nil {
		return &DeliveryFailure{Err: errNoOutcome}
	}
	return o.failure
}

func (o DeliveryOutcome) Status() string {
	if o.Succeeded() {
		return ResultDelivered
	}
	return ResultFailed
}

// TargetOutcome pairs a target with its outcome.
type TargetOutcome struct {
	Target  DeviceTarget
	Outcome DeliveryOutcome
}

// DeliveryReport summarizes a dispatch. It is only built by NewDeliveryReport
// and has no mutators.
type DeliveryReport struct {
	successful int
	failed     int
	outcomes   []TargetOutcome
}

// NewDeliveryReport pairs targets with outcomes by index and tallies them.
// A target without a matching outcome is counted as failed so that the
// counts always add up to len(targets).
func NewDeliveryReport(targets []DeviceTarget, outcomes []DeliveryOutcome) *DeliveryReport {
	report := &DeliveryReport{
		outcomes: make([]TargetOutcome, len(targets)),
	}
	for i, target := range targets {
		var outcome DeliveryOutcome
		if i < len(outcomes) {
			outcome = outcomes[i]
		} else {
			outcome = Failed(&DeliveryFailure{Err: errNoOutcome})
		}
		if outcome.Succeeded() {
			report.successful++
		} else {
			report.failed++
		}
		report.outcomes[i] = TargetOutcome{Target: target, Outcome: outcome}
	}
	return report
}

func (r *DeliveryReport) SuccessfulCount() int { return r.successful }
func (r *DeliveryReport) FailedCount() int     { return r.failed }
func (r *DeliveryReport) Len() int             { return len(r.outcomes) }

// Outcomes returns a copy of the per-target outcomes in target order.
func (r *DeliveryReport) Outcomes() []TargetOutcome {
	out := make([]TargetOutcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// PushResult captures the delivery outcome per device token.
type PushResult struct {
	Token      string                 `json:"token"`
	Platform   Platform               `json:"platform"`
	Status     string                 `json:"status"`
	Response   map[string]interface{} `json:"response,omitempty"`
	StatusCode int                    `json:"status_code,omitempty"`
	ErrorCode  string                 `json:"error_code,omitempty"`
	Error      interface{}            `json:"error,omitempty"`
}

// Results flattens the report into serializable per-token results.
func (r *DeliveryReport) Results() []PushResult {
	results := make([]PushResult, 0, len(r.outcomes))
	for _, item := range r.outcomes {
		res := PushResult{
			Token:    item.Target.RegistrationID,
			Platform: item.Target.Platform,
			Status:   item.Outcome.Status(),
			Response: item.Outcome.Response(),
		}
		if f := item.Outcome.Failure(); f != nil {
			res.StatusCode = f.StatusCode
			res.ErrorCode = f.ErrorCode
			if f.Detail != nil {
				res.Error = f.Detail
			} else {
				res.Error = f.Error()
			}
		}
		results = append(results, res)
	}
	return results
}

func (r *DeliveryReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Successful int          `json:"successful"`
		Failed     int          `json:"failed"`
		Results    []PushResult `json:"results"`
	}{
		Successful: r.successful,
		Failed:     r.failed,
		Results:    r.Results(),
	})
}
