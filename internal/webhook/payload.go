// Package webhook authenticates and normalizes provider callback payloads
// into the canonical (taskId, status, resultUrl, errorMessage) tuple the job
// store consumes.
package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
)

// Result is the canonical outcome extracted from any provider's payload.
// Status is derived, never copied verbatim: a non-empty result URL means
// completed, an explicit provider error means failed, anything else means
// the job is still processing.
type Result struct {
	TaskID       string
	Status       domain.JobStatus
	ResultURL    string
	ErrorMessage string
}

// runwarePayload covers both delivery shapes Runware uses: a bare task
// object, or the same object wrapped in a data array. Field casing varies
// between API revisions, so every field carries its known spellings.
type runwarePayload struct {
	Data   []runwareItem `json:"data"`
	Errors []struct {
		Message  string `json:"message"`
		TaskUUID string `json:"taskUUID"`
	} `json:"errors"`
	runwareItem
}

type runwareItem struct {
	TaskUUID      string `json:"taskUUID"`
	TaskUUIDSnake string `json:"task_uuid"`
	ImageURL      string `json:"imageURL"`
	ImageURLAlt   string `json:"imageUrl"`
	ImageURLSnake string `json:"image_url"`
	VideoURL      string `json:"videoURL"`
	VideoURLAlt   string `json:"videoUrl"`
	VideoURLSnake string `json:"video_url"`
	Status        string `json:"status"`
	Error         struct {
		Message string `json:"message"`
	} `json:"error"`
}

type waveSpeedPayload struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Outputs []string `json:"outputs"`
	Error   string   `json:"error"`
	Data    *struct {
		ID      string   `json:"id"`
		Status  string   `json:"status"`
		Outputs []string `json:"outputs"`
		Error   string   `json:"error"`
	} `json:"data"`
}

type falPayload struct {
	RequestID        string `json:"request_id"`
	GatewayRequestID string `json:"gateway_request_id"`
	Status           string `json:"status"`
	Error            string `json:"error"`
	Payload          struct {
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
		Video struct {
			URL string `json:"url"`
		} `json:"video"`
		Detail string `json:"detail"`
	} `json:"payload"`
}

// Detect infers the provider from the payload shape when the query
// parameter is absent. A taskUUID-like field marks Runware; a bare id plus
// status marks WaveSpeed; request_id or gateway_request_id with an OK/ERROR
// status marks Fal.
func Detect(body []byte) (domain.Provider, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnknownProvider, err)
	}
	if hasKey(probe, "taskUUID", "task_uuid", "taskUuid") {
		return domain.ProviderRunware, nil
	}
	if hasKey(probe, "data") {
		var nested struct {
			Data map[string]json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &nested); err == nil && nested.Data != nil {
			if hasKey(nested.Data, "taskUUID", "task_uuid") {
				return domain.ProviderRunware, nil
			}
			if hasKey(nested.Data, "id") && hasKey(nested.Data, "status") {
				return domain.ProviderWaveSpeed, nil
			}
		}
		// A data array is only ever a Runware batch envelope.
		var arr struct {
			Data []json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &arr); err == nil && len(arr.Data) > 0 {
			return domain.ProviderRunware, nil
		}
	}
	if hasKey(probe, "request_id", "gateway_request_id") {
		return domain.ProviderFalAI, nil
	}
	if hasKey(probe, "id") && hasKey(probe, "status") {
		return domain.ProviderWaveSpeed, nil
	}
	return "", domain.ErrUnknownProvider
}

// Parse decodes a provider payload and normalizes it. ErrMissingTaskID is
// returned when no correlation id can be extracted; the caller must not
// touch the store in that case.
func Parse(provider domain.Provider, body []byte) (*Result, error) {
	switch provider {
	case domain.ProviderRunware:
		return parseRunware(body)
	case domain.ProviderWaveSpeed:
		return parseWaveSpeed(body)
	case domain.ProviderFalAI:
		return parseFal(body)
	default:
		return nil, domain.ErrUnknownProvider
	}
}

func parseRunware(body []byte) (*Result, error) {
	var payload runwarePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode runware payload: %w", err)
	}
	item := payload.runwareItem
	if item.taskID() == "" && len(payload.Data) > 0 {
		item = payload.Data[0]
	}
	taskID := item.taskID()
	if taskID == "" {
		for _, e := range payload.Errors {
			if e.TaskUUID != "" {
				return normalize(e.TaskUUID, "", e.Message), nil
			}
		}
		return nil, domain.ErrMissingTaskID
	}

	errMsg := item.Error.Message
	if errMsg == "" {
		for _, e := range payload.Errors {
			if e.TaskUUID == "" || e.TaskUUID == taskID {
				errMsg = e.Message
				break
			}
		}
	}
	if errMsg == "" && strings.EqualFold(item.Status, "error") {
		errMsg = "generation failed"
	}
	return normalize(taskID, item.resultURL(), errMsg), nil
}

func parseWaveSpeed(body []byte) (*Result, error) {
	var payload waveSpeedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode wavespeed payload: %w", err)
	}
	id, status, outputs, errMsg := payload.ID, payload.Status, payload.Outputs, payload.Error
	if payload.Data != nil {
		if id == "" {
			id = payload.Data.ID
		}
		if status == "" {
			status = payload.Data.Status
		}
		if len(outputs) == 0 {
			outputs = payload.Data.Outputs
		}
		if errMsg == "" {
			errMsg = payload.Data.Error
		}
	}
	if id == "" {
		return nil, domain.ErrMissingTaskID
	}

	var resultURL string
	if len(outputs) > 0 {
		resultURL = outputs[0]
	}
	if errMsg == "" && strings.EqualFold(status, "failed") {
		errMsg = "generation failed"
	}
	return normalize(id, resultURL, errMsg), nil
}

func parseFal(body []byte) (*Result, error) {
	var payload falPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode fal payload: %w", err)
	}
	taskID := payload.RequestID
	if taskID == "" {
		taskID = payload.GatewayRequestID
	}
	if taskID == "" {
		return nil, domain.ErrMissingTaskID
	}

	var resultURL string
	for _, img := range payload.Payload.Images {
		if img.URL != "" {
			resultURL = img.URL
			break
		}
	}
	if resultURL == "" {
		resultURL = payload.Payload.Video.URL
	}

	errMsg := payload.Error
	if errMsg == "" && strings.EqualFold(payload.Status, "ERROR") {
		errMsg = payload.Payload.Detail
		if errMsg == "" {
			errMsg = "generation failed"
		}
	}
	return normalize(taskID, resultURL, errMsg), nil
}

// normalize derives status from the extracted fields. A result URL wins
// over an error message so a provider that reports both still yields a
// consistent row.
func normalize(taskID, resultURL, errMsg string) *Result {
	switch {
	case resultURL != "":
		return &Result{TaskID: taskID, Status: domain.JobStatusCompleted, ResultURL: resultURL}
	case errMsg != "":
		return &Result{TaskID: taskID, Status: domain.JobStatusFailed, ErrorMessage: errMsg}
	default:
		return &Result{TaskID: taskID, Status: domain.JobStatusProcessing}
	}
}

func (i runwareItem) taskID() string {
	if i.TaskUUID != "" {
		return i.TaskUUID
	}
	return i.TaskUUIDSnake
}

func (i runwareItem) resultURL() string {
	for _, u := range []string{i.ImageURL, i.ImageURLAlt, i.ImageURLSnake, i.VideoURL, i.VideoURLAlt, i.VideoURLSnake} {
		if u != "" {
			return u
		}
	}
	return ""
}

func hasKey(m map[string]json.RawMessage, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}
