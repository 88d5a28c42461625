// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"encoding/json"
	"fmt"

	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// События приходят и из локальной шины, и из Redis. Во втором случае
// payload прошёл через JSON, и числа стали float64.

func payloadString(e shared.Event, key string) string {
	v, ok := e.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func payloadInt(e shared.Event, key string) int {
	switch v := e.Payload()[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// FeatureGate сообщает, включена ли функция для студента.
type FeatureGate func(studentID string) bool

func alwaysOn(string) bool { return true }
