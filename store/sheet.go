package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"registration-system/internal/status"
	"registration-system/models"
	"registration-system/utils"
)

// SheetStore proxies every store call to a remote spreadsheet-backed
// scripting endpoint. The endpoint speaks an action-style GET API and
// answers {success, data, error} envelopes.
type SheetStore struct {
	// scriptURL is the base url of the remote scripting endpoint.
	scriptURL string

	// hc is the http client, bounded by the store timeout.
	hc *http.Client

	// breaker trips when the remote endpoint keeps failing so a dead
	// spreadsheet does not stall every dashboard mutation.
	breaker *utils.CircuitBreaker
}

func NewSheetStore(scriptURL string, timeout time.Duration) *SheetStore {
	return &SheetStore{
		scriptURL: scriptURL,
		hc: &http.Client{
			Timeout: timeout,
		},
		breaker: utils.NewCircuitBreaker("sheet-store"),
	}
}

type sheetEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

// Error codes the scripting endpoint puts in the envelope.
const sheetCodeNotFound = "not_found"

// sheetError is a failure reported by the scripting endpoint.
type sheetError struct {
	code    string
	message string
}

func (e *sheetError) Error() string {
	if e.code != "" {
		return e.code + ": " + e.message
	}
	return e.message
}

// notFound checks the machine-readable code, falling back to the exact
// messages older script deployments emit without one.
func (e *sheetError) notFound() bool {
	if e.code != "" {
		return e.code == sheetCodeNotFound
	}
	return e.message == "registration not found" || e.message == "setting not found"
}

func (s *SheetStore) call(ctx context.Context, params map[string]string) (json.RawMessage, error) {
	result, err := s.breaker.Execute(ctx, func() (interface{}, error) {
		u, err := url.Parse(s.scriptURL)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}

		resp, err := s.hc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var envelope sheetEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return nil, err
		}
		if !envelope.Success {
			return nil, &sheetError{code: envelope.Code, message: envelope.Error}
		}
		return envelope.Data, nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("%w: %s: %v", status.ErrTimeout, params["action"], err)
		}
		var se *sheetError
		if errors.As(err, &se) && se.notFound() {
			return nil, fmt.Errorf("%w: %s", status.ErrNotFound, params["id"])
		}
		return nil, fmt.Errorf("%w: %s: %v", status.ErrStore, params["action"], err)
	}
	return result.(json.RawMessage), nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (s *SheetStore) Create(ctx context.Context, studentName, phoneNumber, programme, category string) (*models.Registration, error) {
	data, err := s.call(ctx, map[string]string{
		"action":      "add",
		"studentName": studentName,
		"phoneNumber": phoneNumber,
		"programme":   programme,
		"category":    category,
	})
	if err != nil {
		return nil, err
	}
	return decodeRegistration(data)
}

func (s *SheetStore) List(ctx context.Context, category string) ([]models.Registration, error) {
	params := map[string]string{"action": "getAll"}
	if category != "" {
		params["category"] = category
	}
	data, err := s.call(ctx, params)
	if err != nil {
		return nil, err
	}

	var regs []models.Registration
	if err := json.Unmarshal(data, &regs); err != nil {
		return nil, fmt.Errorf("%w: decode registrations: %v", status.ErrStore, err)
	}
	return regs, nil
}

func (s *SheetStore) UpdateStatus(ctx context.Context, id, newStatus string) (*models.Registration, error) {
	data, err := s.call(ctx, map[string]string{
		"action": "updateStatus",
		"id":     id,
		"status": newStatus,
	})
	if err != nil {
		return nil, err
	}
	return decodeRegistration(data)
}

func (s *SheetStore) UpdateRemark(ctx context.Context, id, remark string) (*models.Registration, error) {
	data, err := s.call(ctx, map[string]string{
		"action": "updateRemark",
		"id":     id,
		"remark": remark,
	})
	if err != nil {
		return nil, err
	}
	return decodeRegistration(data)
}

func (s *SheetStore) Delete(ctx context.Context, id string) error {
	_, err := s.call(ctx, map[string]string{
		"action": "delete",
		"id":     id,
	})
	return err
}

func (s *SheetStore) ClearAll(ctx context.Context, category string) error {
	params := map[string]string{"action": "clear"}
	if category != "" {
		params["category"] = category
	}
	_, err := s.call(ctx, params)
	return err
}

func (s *SheetStore) GetSetting(ctx context.Context, key string) (string, error) {
	data, err := s.call(ctx, map[string]string{
		"action": "getSetting",
		"key":    key,
	})
	if err != nil {
		return "", err
	}

	var value *string
	if err := json.Unmarshal(data, &value); err != nil {
		return "", fmt.Errorf("%w: decode setting: %v", status.ErrStore, err)
	}
	if value == nil {
		return "", fmt.Errorf("%w: setting %s", status.ErrNotFound, key)
	}
	return *value, nil
}

func (s *SheetStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.call(ctx, map[string]string{
		"action": "saveSettings",
		"key":    key,
		"value":  value,
	})
	return err
}

func (s *SheetStore) GetAllSettings(ctx context.Context) (map[string]string, error) {
	data, err := s.call(ctx, map[string]string{"action": "getSettings"})
	if err != nil {
		return nil, err
	}

	var settings map[string]string
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("%w: decode settings: %v", status.ErrStore, err)
	}
	return settings, nil
}

func decodeRegistration(data json.RawMessage) (*models.Registration, error) {
	var reg models.Registration
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("%w: decode registration: %v", status.ErrStore, err)
	}
	return &reg, nil
}
