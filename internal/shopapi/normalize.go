package shopapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dandantas/shopwatch/internal/model"
	"github.com/oliveagle/jsonpath"
)

var (
	versionPath           = jsonpath.MustCompile("$.version")
	adminWorkerPath       = jsonpath.MustCompile("$.adminWorker.enableAdminWorker")
	settingsEnvPath       = jsonpath.MustCompile("$.settings.environment")
	environmentPath       = jsonpath.MustCompile("$.environment")
	scheduledTaskRowsPath = jsonpath.MustCompile("$.data")
)

func decode(body []byte) (interface{}, error) {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	return data, nil
}

// lookup returns nil when the path does not resolve
func lookup(data interface{}, path *jsonpath.Compiled) interface{} {
	value, err := path.Lookup(data)
	if err != nil {
		return nil
	}
	return value
}

func parsePlatformInfo(body []byte) (*PlatformInfo, error) {
	data, err := decode(body)
	if err != nil {
		return nil, err
	}

	version := coerceString(lookup(data, versionPath))
	if version == "" {
		return nil, fmt.Errorf("platform version missing from response")
	}

	environment := coerceString(lookup(data, settingsEnvPath))
	if environment == "" {
		environment = coerceString(lookup(data, environmentPath))
	}

	return &PlatformInfo{
		Version:            version,
		Environment:        environment,
		AdminWorkerEnabled: coerceBool(lookup(data, adminWorkerPath)),
	}, nil
}

func parseExtensions(body []byte) ([]model.Extension, error) {
	data, err := decode(body)
	if err != nil {
		return nil, err
	}

	rows, ok := data.([]interface{})
	if !ok {
		if data == nil {
			return []model.Extension{}, nil
		}
		return nil, fmt.Errorf("expected extension list, got %T", data)
	}

	extensions := make([]model.Extension, 0, len(rows))
	for _, row := range rows {
		fields, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		extensions = append(extensions, model.Extension{
			Name:          coerceString(fields["name"]),
			Active:        coerceBool(fields["active"]),
			Version:       coerceString(fields["version"]),
			LatestVersion: coerceString(fields["latestVersion"]),
			Installed:     fields["installedAt"] != nil,
		})
	}
	return extensions, nil
}

func parseScheduledTasks(body []byte) ([]model.ScheduledTask, error) {
	data, err := decode(body)
	if err != nil {
		return nil, err
	}

	rows, ok := lookup(data, scheduledTaskRowsPath).([]interface{})
	if !ok {
		return []model.ScheduledTask{}, nil
	}

	tasks := make([]model.ScheduledTask, 0, len(rows))
	for _, row := range rows {
		fields, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		// Search responses may nest entity fields under "attributes"
		if attrs, ok := fields["attributes"].(map[string]interface{}); ok {
			fields = attrs
		}
		tasks = append(tasks, model.ScheduledTask{
			Name:              coerceString(fields["name"]),
			Status:            coerceString(fields["status"]),
			LastExecutionTime: coerceTime(fields["lastExecutionTime"]),
			NextExecutionTime: coerceTime(fields["nextExecutionTime"]),
		})
	}
	return tasks, nil
}

// coerceString converts scalar JSON values to string, nil becomes ""
func coerceString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// coerceBool converts a value to boolean
func coerceBool(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		lower := strings.ToLower(strings.TrimSpace(v))
		return lower == "true" || lower == "1" || lower == "yes"
	case float64:
		return v != 0
	default:
		return false
	}
}

// coerceTime parses the ISO-8601 timestamps the shop API emits
func coerceTime(value interface{}) time.Time {
	s, ok := value.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
