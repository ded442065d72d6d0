package exchange

import "strconv"

// OrderIDFromResponse digs the exchange order id out of a placement
// response. The shape varies between resting and immediately-filled
// statuses, so the search is recursive.
func OrderIDFromResponse(resp map[string]any) string {
	if resp == nil {
		return ""
	}
	return orderIDFromAny(resp)
}

// responseError returns the error text from an action response, or "" when
// the action was accepted. The exchange reports failures both as a
// top-level {"status":"err","response":...} pair and as per-order
// {"error":...} entries inside statuses.
func responseError(resp map[string]any) string {
	if resp == nil {
		return ""
	}
	if status, ok := resp["status"].(string); ok && status == "err" {
		if msg, ok := resp["response"].(string); ok {
			return msg
		}
		return "unknown error"
	}
	return firstErrorFromAny(resp)
}

func firstErrorFromAny(v any) string {
	switch val := v.(type) {
	case map[string]any:
		if msg, ok := val["error"].(string); ok && msg != "" {
			return msg
		}
		for _, nested := range val {
			if msg := firstErrorFromAny(nested); msg != "" {
				return msg
			}
		}
	case []any:
		for _, nested := range val {
			if msg := firstErrorFromAny(nested); msg != "" {
				return msg
			}
		}
	}
	return ""
}

func stringFromAny(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}

func orderIDFromAny(v any) string {
	switch val := v.(type) {
	case map[string]any:
		for _, key := range []string{"orderId", "orderID", "oid", "id"} {
			if id := stringFromAny(val[key]); id != "" {
				return id
			}
		}
		for _, nested := range val {
			if id := orderIDFromAny(nested); id != "" {
				return id
			}
		}
	case []any:
		for _, nested := range val {
			if id := orderIDFromAny(nested); id != "" {
				return id
			}
		}
	}
	return ""
}
