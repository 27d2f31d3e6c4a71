package practice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// listEnvelopeKeys are the wrapper keys the practice API uses around arrays.
var listEnvelopeKeys = []string{"data", "response", "result", "items"}

// decodeList accepts a bare JSON array or an object wrapping one.
func decodeList[T any](raw []byte) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var out []T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	if raw[0] != '{' {
		return nil, fmt.Errorf("unexpected payload %.40q", raw)
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	for _, key := range listEnvelopeKeys {
		for k, v := range envelope {
			if !strings.EqualFold(k, key) {
				continue
			}
			v = bytes.TrimSpace(v)
			if len(v) > 0 && (v[0] == '[' || v[0] == '{') {
				return decodeList[T](v)
			}
		}
	}
	return nil, fmt.Errorf("no list found in object payload")
}

// decodeCredentials understands both the flat credential list and the
// practices_dictionary shape keyed by practice.
func decodeCredentials(raw []byte) ([]VendorCredential, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var dict struct {
			Practices map[string][]VendorCredential `json:"practices_dictionary"`
		}
		if err := json.Unmarshal(trimmed, &dict); err == nil && len(dict.Practices) > 0 {
			practices := make([]string, 0, len(dict.Practices))
			for p := range dict.Practices {
				practices = append(practices, p)
			}
			sort.Strings(practices)
			var out []VendorCredential
			for _, p := range practices {
				for _, cred := range dict.Practices[p] {
					cred.AccountID = p
					out = append(out, cred)
				}
			}
			return out, nil
		}
	}
	return decodeList[VendorCredential](trimmed)
}

var dateFieldKeys = []string{"date", "availabledate", "available_dates", "apptdate", "appointmentdate", "slotdate"}

// decodeDates returns distinct dates in ascending order. Entries may be plain
// strings or objects carrying a date field.
func decodeDates(raw []byte) ([]time.Time, error) {
	items, err := decodeList[json.RawMessage](raw)
	if err != nil {
		return nil, err
	}
	seen := make(map[time.Time]struct{}, len(items))
	var out []time.Time
	for _, item := range items {
		d, ok := dateFromItem(item)
		if !ok {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func dateFromItem(item json.RawMessage) (time.Time, bool) {
	var s string
	if err := json.Unmarshal(item, &s); err == nil {
		d, err := ParseDate(s)
		return d, err == nil
	}
	var obj map[string]any
	if err := json.Unmarshal(item, &obj); err != nil {
		return time.Time{}, false
	}
	for _, key := range dateFieldKeys {
		for k, v := range obj {
			if strings.ToLower(k) != key {
				continue
			}
			if str, ok := v.(string); ok {
				if d, err := ParseDate(str); err == nil {
					return d, true
				}
			}
		}
	}
	return time.Time{}, false
}

// decodeCustomerID reads a bare id or an object carrying customerId.
func decodeCustomerID(raw []byte) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var id FlexString
	if raw[0] != '{' {
		if err := json.Unmarshal(raw, &id); err == nil {
			return strings.TrimSpace(id.String())
		}
		return strings.TrimSpace(string(raw))
	}
	var obj struct {
		CustomerID FlexString      `json:"customerId"`
		Response   json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if obj.CustomerID != "" {
		return strings.TrimSpace(obj.CustomerID.String())
	}
	if len(obj.Response) > 0 {
		return decodeCustomerID(obj.Response)
	}
	return ""
}

// otpAccepted reads a validation reply. The service signals success with a
// success or isValid flag or a "validated successfully" message.
func otpAccepted(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	var obj struct {
		Success  bool   `json:"success"`
		IsValid  bool   `json:"isValid"`
		Response string `json:"response"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Success || obj.IsValid {
			return true
		}
		return mentionsValidated(obj.Response) || mentionsValidated(obj.Message)
	}
	return mentionsValidated(string(raw))
}

// mentionsValidated accepts only the service's success sentence, with or
// without its "One-Time Password (OTP)" or "OTP" subject.
func mentionsValidated(s string) bool {
	s = strings.ToLower(strings.Trim(strings.TrimSpace(s), `".`))
	for _, subject := range []string{"one-time password (otp) ", "otp "} {
		if rest, ok := strings.CutPrefix(s, subject); ok {
			s = rest
			break
		}
	}
	return s == "validated successfully"
}
