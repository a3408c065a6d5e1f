package genai

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// ErrMalformedOutput is returned when the model reply carries no usable JSON object.
var ErrMalformedOutput = errors.New("genai: malformed model output")

// ExtractedData holds the fields the model pulled out of the user's answer.
// Pointer fields distinguish "not extracted" from zero values.
type ExtractedData struct {
	Amount            *int64
	HasProperty       *bool
	FullName          string
	City              string
	Purpose           string
	PropertyDetails   string
	RiskInfo          string
	Notes             string
	PreferredCallTime string
	Extra             map[string]string
}

// StepOutput is the structured reply the model is asked to produce.
type StepOutput struct {
	IsValid  bool
	Reason   string
	Response string
	Data     ExtractedData
}

// ExtractJSON strips markdown fences and surrounding prose and returns the text between
// the first '{' and the last '}'.
func ExtractJSON(text string) (string, error) {
	clean := strings.ReplaceAll(text, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start == -1 || end == -1 || end < start {
		return "", ErrMalformedOutput
	}
	return clean[start : end+1], nil
}

type rawOutput struct {
	IsValid  *bool                      `json:"isValid"`
	Reason   string                     `json:"reason"`
	Response string                     `json:"response"`
	Data     map[string]json.RawMessage `json:"data"`
}

// ParseStepOutput decodes a model reply. A missing isValid is read as valid.
func ParseStepOutput(text string) (StepOutput, error) {
	payload, err := ExtractJSON(text)
	if err != nil {
		return StepOutput{}, err
	}
	var raw rawOutput
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return StepOutput{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	out := StepOutput{
		IsValid:  raw.IsValid == nil || *raw.IsValid,
		Reason:   strings.TrimSpace(raw.Reason),
		Response: strings.TrimSpace(raw.Response),
		Data:     parseData(raw.Data),
	}
	return out, nil
}

func parseData(fields map[string]json.RawMessage) ExtractedData {
	var d ExtractedData
	for key, raw := range fields {
		switch key {
		case "amount", "loan_amount":
			d.Amount = decodeAmount(raw)
		case "has_property":
			d.HasProperty = decodeBool(raw)
		case "full_name", "name":
			d.FullName = decodeText(raw)
		case "city":
			d.City = decodeText(raw)
		case "purpose":
			d.Purpose = decodeText(raw)
		case "property_details":
			d.PropertyDetails = decodeText(raw)
		case "risk_info":
			d.RiskInfo = decodeText(raw)
		case "notes":
			d.Notes = decodeText(raw)
		case "preferred_call_time", "call_time":
			d.PreferredCallTime = decodeText(raw)
		default:
			if v := decodeText(raw); v != "" {
				if d.Extra == nil {
					d.Extra = make(map[string]string)
				}
				d.Extra[key] = v
			}
		}
	}
	return d
}

func decodeAmount(raw json.RawMessage) *int64 {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n <= 0 || n > math.MaxInt64 {
			return nil
		}
		v := int64(math.Round(n))
		return &v
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, ok := ParseAmount(s); ok {
			return &v
		}
	}
	return nil
}

func decodeBool(raw json.RawMessage) *bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return &b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes":
			v := true
			return &v
		case "false", "no":
			v := false
			return &v
		}
	}
	return nil
}

func decodeText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

var numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)*`)

var multipliers = []struct {
	word   string
	factor float64
}{
	{"million", 1e6},
	{"mln", 1e6},
	{"מיליון", 1e6},
	{"миллион", 1e6},
	{"مليون", 1e6},
	{"m", 1e6},
	{"thousand", 1e3},
	{"אלף", 1e3},
	{"тыс", 1e3},
	{"ألف", 1e3},
	{"k", 1e3},
}

// ParseAmount reads the first number in s as a shekel amount. Thousands separators
// and a trailing k/m style multiplier are understood: "300,000", "200k", "1.5m".
func ParseAmount(s string) (int64, bool) {
	lower := strings.ToLower(s)
	loc := numberPattern.FindStringIndex(lower)
	if loc == nil {
		return 0, false
	}
	num := lower[loc[0]:loc[1]]
	rest := strings.TrimSpace(lower[loc[1]:])

	factor := 1.0
	for _, m := range multipliers {
		if !strings.HasPrefix(rest, m.word) {
			continue
		}
		// Single letters only count as a suffix on their own: "5m" but not "5 more".
		if len(m.word) == 1 {
			if after := rest[1:]; after != "" && unicode.IsLetter([]rune(after)[0]) {
				continue
			}
		}
		factor = m.factor
		break
	}

	num = strings.ReplaceAll(num, ",", "")
	if i := strings.LastIndex(num, "."); i != -1 {
		// "300.000" is a thousands separator unless a multiplier follows.
		if factor == 1 && len(num)-i-1 == 3 {
			num = strings.ReplaceAll(num, ".", "")
		} else if strings.Count(num, ".") > 1 {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	v := f * factor
	if v <= 0 || v > math.MaxInt64 {
		return 0, false
	}
	return int64(math.Round(v)), true
}
