// Command ml_probe smoke-tests a running ML scorer: it checks /health and
// sends a synthetic /sort-specialization request, verifying the returned
// order is a permutation of a subset of the submitted student ids. Exits
// non-zero when the scorer is unusable, so it can gate deploys.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type probeStudent struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	HardSkill  string `json:"hardSkill"`
	Background string `json:"background"`
	Interests  string `json:"interests"`
	TimeInWeek string `json:"timeInWeek"`
}

type probeTheme struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Specializations []string `json:"specializations"`
}

type sortRequest struct {
	Students             []probeStudent `json:"students"`
	Theme                probeTheme     `json:"theme"`
	TargetSpecialization string         `json:"targetSpecialization"`
}

type sortResponse struct {
	SortedStudentIDs []string `json:"sortedStudentIds"`
}

func main() {
	var (
		baseURL string
		timeout time.Duration
	)
	flag.StringVar(&baseURL, "base", "http://localhost:8000", "ML scorer base URL")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	client := &http.Client{Timeout: timeout}
	base := strings.TrimRight(baseURL, "/")

	healthy, healthDur, err := checkHealth(client, base)
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("health: %t (%s)\n", healthy, healthDur)
	if !healthy {
		os.Exit(1)
	}

	req := sampleRequest()
	sorted, sortDur, err := runSort(client, base, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sort probe failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("sort: %d of %d students ranked (%s)\n", len(sorted), len(req.Students), sortDur)

	if !subsetPermutation(req.Students, sorted) {
		fmt.Fprintf(os.Stderr, "sort probe returned unknown or duplicate ids: %v\n", sorted)
		os.Exit(1)
	}
	fmt.Println("order:", strings.Join(sorted, ", "))
}

func checkHealth(client *http.Client, base string) (bool, time.Duration, error) {
	start := time.Now()
	resp, err := client.Get(base + "/health")
	if err != nil {
		return false, 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300, time.Since(start), nil
}

func runSort(client *http.Client, base string, req sortRequest) ([]string, time.Duration, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, 0, err
	}
	start := time.Now()
	resp, err := client.Post(base+"/sort-specialization", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, 0, fmt.Errorf("scorer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out sortResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, 0, err
	}
	return out.SortedStudentIDs, time.Since(start), nil
}

func subsetPermutation(students []probeStudent, sorted []string) bool {
	known := make(map[string]bool, len(students))
	for _, s := range students {
		known[s.ID] = true
	}
	seen := make(map[string]bool, len(sorted))
	for _, id := range sorted {
		if !known[id] || seen[id] {
			return false
		}
		seen[id] = true
	}
	return true
}

func sampleRequest() sortRequest {
	return sortRequest{
		Students: []probeStudent{
			{ID: "probe-1", Name: "Probe One", HardSkill: "Go", Background: "CS", Interests: "backend", TimeInWeek: "20h"},
			{ID: "probe-2", Name: "Probe Two", HardSkill: "Python", Background: "Math", Interests: "data", TimeInWeek: "15h"},
			{ID: "probe-3", Name: "Probe Three", HardSkill: "TypeScript", Background: "Design", Interests: "frontend", TimeInWeek: "10h"},
		},
		Theme: probeTheme{
			ID:              "probe-theme",
			Name:            "Probe Theme",
			Specializations: []string{"Backend"},
		},
		TargetSpecialization: "Backend",
	}
}
