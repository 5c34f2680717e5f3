package main

import (
	"encoding/json"
	"net/http"
	"regexp"
	"slices"
	"strings"
)

// classificador de palavras-chave usado só para demonstrar o gateway sem um
// modelo de verdade atrás.

type scamPattern struct {
	name string
	re   *regexp.Regexp
}

var scamPatterns = []scamPattern{
	{"urgency", regexp.MustCompile(`(?i)\b(urgent|immediate|asap|hurry|instant|now|today)\b`)},
	{"authority", regexp.MustCompile(`(?i)\b(bank|paypal|amazon|government|police|court|irs|fbi)\b`)},
	{"financial", regexp.MustCompile(`(?i)\b(money|payment|transfer|deposit|invoice|account|credit|debit|wallet|upi|paytm|phonepe|gpay)\b`)},
	{"threat", regexp.MustCompile(`(?i)\b(suspend|suspended|block|blocked|arrest|legal|lawsuit|jail|fine|penalty)\b`)},
	{"prize", regexp.MustCompile(`(?i)\b(winner|prize|lottery|gift|reward|bonus|congratulations|claim|cash)\b`)},
	{"personal_info", regexp.MustCompile(`(?i)\b(ssn|pan|aadhaar|password|otp|pin|cvv|verification)\b`)},
}

var (
	linkRE  = regexp.MustCompile(`https?://[^\s]+`)
	upiRE   = regexp.MustCompile(`[a-zA-Z0-9.\-_]{2,}@[a-zA-Z]{2,}`)
	phoneRE = regexp.MustCompile(`(\+91|0)?[6-9]\d{9}`)
	emailRE = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
)

// precisa de pelo menos dois sinais para marcar como golpe
const scamThreshold = 2

type classification struct {
	IsScam           bool                `json:"is_scam"`
	DetectedPatterns []string            `json:"detected_patterns"`
	ExtractedIntel   map[string][]string `json:"extracted_intel"`
}

func classify(text string) classification {
	c := classification{
		DetectedPatterns: []string{},
		ExtractedIntel: map[string][]string{
			"upi_ids":       {},
			"links":         {},
			"bank_accounts": {},
			"phone_numbers": {},
			"emails":        {},
		},
	}
	for _, p := range scamPatterns {
		if p.re.MatchString(text) {
			c.DetectedPatterns = append(c.DetectedPatterns, p.name)
		}
	}

	links := linkRE.FindAllString(text, -1)
	emails := emailRE.FindAllString(text, -1)
	var upis []string
	for _, m := range upiRE.FindAllString(text, -1) {
		// e-mails também casam com a regex de UPI
		if !slices.ContainsFunc(emails, func(e string) bool { return strings.HasPrefix(e, m) }) {
			upis = append(upis, m)
		}
	}
	phones := phoneRE.FindAllString(text, -1)

	add := func(category, pattern string, values []string) {
		if len(values) == 0 {
			return
		}
		c.ExtractedIntel[category] = values
		c.DetectedPatterns = append(c.DetectedPatterns, pattern)
	}
	add("links", "links", links)
	add("upi_ids", "upi", upis)
	add("phone_numbers", "phone", phones)
	add("emails", "email", emails)

	c.IsScam = len(c.DetectedPatterns) >= scamThreshold
	return c
}

type interactRequest struct {
	Message json.RawMessage `json:"message"`
}

// messageText aceita {"message": "..."} e {"message": {"text": "..."}}.
func messageText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Text
	}
	return ""
}

func handleInteract(w http.ResponseWriter, r *http.Request) {
	var req interactRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
		return
	}
	text := messageText(req.Message)
	if strings.TrimSpace(text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "message is required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"result": classify(text),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
