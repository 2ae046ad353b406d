// Package main runs end-to-end checks of the checkout flow against a running
// API wired with the demo gateway (ALLOW_FAKE_PAYMENTS=true).
//
// Usage:
//
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go              # runs all
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go happy-path   # runs one
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	// The default schedule needs 42s to give up on an unpaid session.
	maxWaitSecs  = 60
	pollInterval = 2 * time.Second
)

var apiBase string

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

func doJSON(method, path string, body interface{}) (int, map[string]interface{}, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, nil, err
		}
	}
	req, err := http.NewRequest(method, apiBase+path, &buf)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out, nil
}

func stage(scope string) (string, error) {
	status, body, err := doJSON(http.MethodPost, "/api/checkout", map[string]interface{}{
		"scope": scope,
		"booking": map[string]interface{}{
			"patient_id":       "e2e-patient",
			"clinic_id":        "e2e-clinic",
			"appointment_date": time.Now().AddDate(0, 0, 7).Format("2006-01-02"),
			"appointment_time": "10:30",
			"appointment_type": "consultation",
			"consultation_fee": 500,
			"booking_fee":      50,
		},
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("stage returned %d: %v", status, body)
	}
	id, _ := body["session_id"].(string)
	return id, nil
}

func payDemo(sessionID string) error {
	form := url.Values{"method": {"gcash"}}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.PostForm(fmt.Sprintf("%s/demo/checkout/%s/complete", apiBase, url.PathEscape(sessionID)), form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("demo complete returned %d", resp.StatusCode)
	}
	return nil
}

func returnTo(scope, sessionID string) (int, map[string]interface{}, error) {
	path := fmt.Sprintf("/api/checkout/%s/return?session_id=%s", url.PathEscape(scope), url.QueryEscape(sessionID))
	return doJSON(http.MethodGet, path, nil)
}

func waitForState(scope string, targets ...string) (map[string]interface{}, error) {
	deadline := time.Now().Add(maxWaitSecs * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(pollInterval)
		_, body, err := doJSON(http.MethodGet, "/api/checkout/"+url.PathEscape(scope), nil)
		if err != nil {
			continue
		}
		state, _ := body["state"].(string)
		for _, target := range targets {
			if state == target {
				return body, nil
			}
		}
	}
	return nil, fmt.Errorf("timed out waiting for %s after %ds", strings.Join(targets, "/"), maxWaitSecs)
}

func scope(name string) string {
	return fmt.Sprintf("e2e-%s-%d", name, time.Now().UnixNano())
}

func scenarioHappyPath(t *T) {
	s := scope("happy")
	sessionID, err := stage(s)
	if err != nil {
		t.fatalf("stage: %v", err)
		return
	}
	t.check("session id returned", sessionID != "")

	if err := payDemo(sessionID); err != nil {
		t.fatalf("pay: %v", err)
		return
	}
	status, _, err := returnTo(s, sessionID)
	if err != nil {
		t.fatalf("return: %v", err)
		return
	}
	t.check("return accepted", status == http.StatusAccepted)

	final, err := waitForState(s, "succeeded", "failed")
	if err != nil {
		t.fatalf("%v", err)
		return
	}
	t.check("flow succeeded", final["state"] == "succeeded")
	appointmentID, _ := final["appointment_id"].(string)
	t.check("appointment id present", appointmentID != "")

	status, again, err := returnTo(s, sessionID)
	t.check("repeat return is idempotent", err == nil && status == http.StatusAccepted && again["appointment_id"] == appointmentID)
}

func scenarioCancel(t *T) {
	s := scope("cancel")
	if _, err := stage(s); err != nil {
		t.fatalf("stage: %v", err)
		return
	}
	status, body, err := doJSON(http.MethodPost, "/api/checkout/"+url.PathEscape(s)+"/cancel", nil)
	if err != nil {
		t.fatalf("cancel: %v", err)
		return
	}
	t.check("cancel accepted", status == http.StatusOK)
	t.check("flow cancelled", body["state"] == "cancelled")
}

func scenarioUnpaidTimesOut(t *T) {
	s := scope("unpaid")
	sessionID, err := stage(s)
	if err != nil {
		t.fatalf("stage: %v", err)
		return
	}
	if _, _, err := returnTo(s, sessionID); err != nil {
		t.fatalf("return: %v", err)
		return
	}
	final, err := waitForState(s, "failed", "succeeded")
	if err != nil {
		t.fatalf("%v", err)
		return
	}
	t.check("flow failed", final["state"] == "failed")
	t.check("failure is a verification timeout", final["failure_kind"] == "verification_timeout")

	if err := payDemo(sessionID); err != nil {
		t.fatalf("pay: %v", err)
		return
	}
	status, _, err := doJSON(http.MethodPost, "/api/checkout/"+url.PathEscape(s)+"/retry", nil)
	t.check("retry accepted", err == nil && status == http.StatusAccepted)
	final, err = waitForState(s, "succeeded", "failed")
	t.check("retry succeeds once paid", err == nil && final["state"] == "succeeded")
}

func scenarioValidation(t *T) {
	status, _, err := doJSON(http.MethodPost, "/api/checkout", map[string]interface{}{
		"scope":   scope("invalid"),
		"booking": map[string]interface{}{"patient_id": "p"},
	})
	t.check("incomplete booking rejected", err == nil && status == http.StatusBadRequest)

	status, _, err = doJSON(http.MethodGet, "/api/checkout/"+scope("missing"), nil)
	t.check("unknown scope is 404", err == nil && status == http.StatusNotFound)
}

func main() {
	apiBase = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if apiBase == "" {
		apiBase = "http://localhost:8080"
	}

	scenarios := []scenario{
		{"happy-path", scenarioHappyPath},
		{"cancel", scenarioCancel},
		{"unpaid-timeout", scenarioUnpaidTimesOut},
		{"validation", scenarioValidation},
	}

	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed := 0
	totalFailed := 0
	scenarioResults := make([]string, 0)

	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}

		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", s.Name)
		fmt.Printf("========================================\n")

		t := &T{name: s.Name}
		s.Fn(t)

		totalPassed += t.passed
		totalFailed += t.failed

		status := "PASS"
		if t.failed > 0 {
			status = "FAIL"
		}
		scenarioResults = append(scenarioResults, fmt.Sprintf("  %s %s (%d passed, %d failed)", status, s.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\n")
	fmt.Println("SUMMARY")
	fmt.Printf("========================================\n")
	for _, r := range scenarioResults {
		fmt.Println(r)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)

	if totalFailed > 0 {
		os.Exit(1)
	}
}
