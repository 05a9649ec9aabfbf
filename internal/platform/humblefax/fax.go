package humblefax

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Direction distinguishes sent from received faxes.
type Direction string

const (
	Outbound Direction = "outbound"
	Inbound  Direction = "inbound"
)

// Fax is a normalised sent or received fax. The API names fields
// inconsistently between endpoints; parseFax accepts every known spelling.
type Fax struct {
	ID            string    `json:"id"`
	To            string    `json:"to"`
	From          string    `json:"from"`
	Status        string    `json:"status"`
	Direction     Direction `json:"direction"`
	CreatedAt     string    `json:"created_at"`
	UpdatedAt     string    `json:"updated_at"`
	Subject       string    `json:"subject"`
	Message       string    `json:"message"`
	NumPages      int64     `json:"num_pages"`
	FileSize      int64     `json:"file_size"`
	FailureReason string    `json:"failure_reason,omitempty"`
	MediaURL      string    `json:"media_url,omitempty"`
	CompanyInfo   string    `json:"company_info,omitempty"`
	Resolution    string    `json:"resolution,omitempty"`
	PageSize      string    `json:"page_size,omitempty"`
}

func parseFax(m map[string]any, dir Direction, defaultStatus string) Fax {
	f := Fax{
		ID:            getString(m, "id", "sentFaxId", "incomingFaxId"),
		To:            getString(m, "toNumber", "to", "recipient"),
		From:          getString(m, "fromNumber", "from", "sender"),
		Status:        getString(m, "status"),
		Direction:     Direction(getString(m, "direction")),
		CreatedAt:     getString(m, "createdAt", "created_at", "date"),
		UpdatedAt:     getString(m, "updatedAt", "updated_at", "modified"),
		Subject:       getString(m, "subject"),
		Message:       getString(m, "message"),
		NumPages:      getInt(m, "numPages", "pages", "pageCount"),
		FileSize:      getInt(m, "fileSize", "size"),
		FailureReason: getString(m, "failureReason", "failure_reason"),
		MediaURL:      getString(m, "mediaUrl", "media_url"),
		CompanyInfo:   getString(m, "companyInfo"),
		Resolution:    getString(m, "resolution"),
		PageSize:      getString(m, "pageSize"),
	}
	if f.Status == "" {
		f.Status = defaultStatus
	}
	if dir != "" {
		f.Direction = dir
	} else if f.Direction == "" {
		f.Direction = Outbound
	}
	return f
}

// ---------------------------------------------------------------------------
// Loose JSON helpers
// ---------------------------------------------------------------------------

func decodeObject(data []byte) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// dig walks nested objects by key.
func dig(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[k]
	}
	return cur
}

func object(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// scalar renders a JSON scalar as a string; other values yield "".
func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// getString returns the first non-empty value among keys.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := scalar(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func getInt(m map[string]any, keys ...string) int64 {
	for _, k := range keys {
		s := scalar(m[k])
		if s == "" {
			continue
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n != 0 {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f != 0 {
			return int64(f)
		}
	}
	return 0
}
