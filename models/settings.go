package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Settings keys known to the system. Per-category variants are derived
// with EventNameKey / ProgrammesKey.
const (
	KeyEventName         = "event_name"
	KeyProgrammes        = "programmes"
	KeyMaxCapacity       = "max_capacity"
	KeyStatuses          = "statuses"
	KeyDashboardPassword = "dashboard_password"
)

type StatusOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// DefaultStatuses is the full status vocabulary seeded on first boot.
var DefaultStatuses = []StatusOption{
	{Value: "registered", Label: "Registered 已登记", Color: "#f8f9fa"},
	{Value: "waiting", Label: "Waiting 等候中", Color: "#fff3cd"},
	{Value: "urgent", Label: "Urgent 加急", Color: "#f8d7da"},
	{Value: "consulting", Label: "Consulting 咨询中", Color: "#d1ecf1"},
	{Value: "inside", Label: "Inside 进行中", Color: "#d4edda"},
	{Value: "ended", Label: "Ended 已结束", Color: "#cce5ff"},
	{Value: "noanswer", Label: "No Answer 无应答", Color: "#fefefe"},
	{Value: "exited", Label: "Exited 已离开", Color: "#e2e3e5"},
}

var DefaultProgrammes = []string{
	"Computer Science 计算机科学",
	"Business Administration 工商管理",
	"Engineering 工程学",
	"Medicine 医学",
	"Law 法律",
	"Arts & Design 艺术与设计",
	"Education 教育",
	"Finance 金融",
	"Marketing 市场营销",
	"Others 其他",
}

const (
	DefaultEventName   = "Career Fair 2024 职业博览会"
	DefaultMaxCapacity = 50
)

// EventNameKey returns the settings key for the event name, per-category
// when a category tag is given.
func EventNameKey(category string) string {
	if category == "" {
		return KeyEventName
	}
	return KeyEventName + "_" + category
}

func ProgrammesKey(category string) string {
	if category == "" {
		return KeyProgrammes
	}
	return KeyProgrammes + "_" + category
}

// KnownSettingKey reports whether key belongs to the settings schema.
func KnownSettingKey(key string) bool {
	switch key {
	case KeyEventName, KeyProgrammes, KeyMaxCapacity, KeyStatuses, KeyDashboardPassword:
		return true
	}
	return strings.HasPrefix(key, KeyEventName+"_") || strings.HasPrefix(key, KeyProgrammes+"_")
}

// EncodeSettingValue serializes a setting for persistence. Scalars are
// stored verbatim, structured values as JSON strings. The store layer is
// the only place that sees the encoded form.
func EncodeSettingValue(key string, value any) (string, error) {
	switch v := value.(type) {
	case string:
		if key == KeyMaxCapacity {
			if _, err := strconv.Atoi(v); err != nil {
				return "", fmt.Errorf("%s must be a positive integer: %q", key, v)
			}
		}
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		// JSON numbers decode as float64.
		return strconv.Itoa(int(v)), nil
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("encode setting %s: %w", key, err)
		}
		return string(data), nil
	}
}

// DecodeSettingValue reverses EncodeSettingValue based on the key's type.
func DecodeSettingValue(key, raw string) any {
	switch {
	case key == KeyMaxCapacity:
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
		return DefaultMaxCapacity
	case key == KeyStatuses:
		var opts []StatusOption
		if err := json.Unmarshal([]byte(raw), &opts); err == nil {
			return opts
		}
		return DefaultStatuses
	case key == KeyProgrammes || strings.HasPrefix(key, KeyProgrammes+"_"):
		var list []string
		if err := json.Unmarshal([]byte(raw), &list); err == nil {
			return list
		}
		return []string{}
	}
	return raw
}

// DecodeSettings decodes a raw key/value map into the typed view served
// to clients. Statuses fall back to the defaults when the key is absent.
func DecodeSettings(raw map[string]string) map[string]any {
	out := make(map[string]any, len(raw)+1)
	for k, v := range raw {
		out[k] = DecodeSettingValue(k, v)
	}
	if _, ok := out[KeyStatuses]; !ok {
		out[KeyStatuses] = DefaultStatuses
	}
	return out
}

// StatusValues extracts the allowed status values from a decoded statuses
// setting, falling back to the default vocabulary.
func StatusValues(v any) []string {
	opts, ok := v.([]StatusOption)
	if !ok || len(opts) == 0 {
		opts = DefaultStatuses
	}
	values := make([]string, 0, len(opts))
	for _, o := range opts {
		values = append(values, o.Value)
	}
	return values
}
