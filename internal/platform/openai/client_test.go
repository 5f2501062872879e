package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voltrade/voltbot/internal/domain"
)

func advisoryRequest() domain.AdvisoryRequest {
	return domain.AdvisoryRequest{
		Intent: domain.TradeIntent{
			ID: "intent-1",
			Line: domain.LineID{
				EventID:    9001,
				SideIndex:  1,
				BetType:    domain.BetSpread,
				PeriodType: domain.PeriodFullGame,
				Scope:      domain.ScopeLive,
				SourceID:   1,
			},
			League:    domain.LeagueNFL,
			Direction: domain.DirectionSellVol,
			Size:      250,
			Deviation: 31.5,
			Signal:    domain.VolSignal{Dispersion: 0.62, Drift: -0.4, Samples: 6, Confidence: 0.8},
		},
		Event: domain.Event{
			ID:     9001,
			League: domain.LeagueNFL,
			Status: domain.EventLive,
			Clock:  "07:12",
			Period: 3,
			Teams: [2]domain.EventTeam{
				{TeamID: 101, Score: 21},
				{TeamID: 102, Score: 17},
			},
		},
		Matchup:    "KC @ BUF",
		SourceName: "Pinnacle",
	}
}

// chatBody wraps an opinion JSON in the chat-completions envelope.
func chatBody(opinion string) string {
	content, _ := json.Marshal(opinion)
	return `{"choices":[{"message":{"content":` + string(content) + `}}]}`
}

func TestAdvise(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(chatBody(`{"analysis":"spread velocity looks exhausted","confidence":0.85,"recommendation":"Proceed","size":180}`)))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, "sk-test", "gpt-4o", 5*time.Second)
	opinion, err := client.Advise(context.Background(), advisoryRequest())
	if err != nil {
		t.Fatalf("Advise: %v", err)
	}

	if gotPath != "/chat/completions" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", gotReq.Messages)
	}
	user := gotReq.Messages[1].Content
	for _, want := range []string{"KC @ BUF", "SELL VOL", "$250.00", "+31.5%", "score 21-17", "Pinnacle"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q:\n%s", want, user)
		}
	}

	if opinion.Recommendation != domain.AdviceProceed {
		t.Errorf("Recommendation = %q, want %q (case-normalized)", opinion.Recommendation, domain.AdviceProceed)
	}
	if opinion.Confidence != 0.85 {
		t.Errorf("Confidence = %v", opinion.Confidence)
	}
	if opinion.Size != 180 {
		t.Errorf("Size = %v", opinion.Size)
	}
}

func TestAdviseDriftEntryPrompt(t *testing.T) {
	var user string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		user = req.Messages[1].Content
		w.Write([]byte(chatBody(`{"analysis":"ok","confidence":0.9,"recommendation":"proceed","size":0}`)))
	}))
	t.Cleanup(srv.Close)

	req := advisoryRequest()
	req.Intent.Deviation = 0
	client := NewClient(srv.URL, "sk-test", "gpt-4o", 5*time.Second)
	if _, err := client.Advise(context.Background(), req); err != nil {
		t.Fatalf("Advise: %v", err)
	}
	if !strings.Contains(user, "drift-based entry") {
		t.Errorf("zero deviation should render as drift-based, got:\n%s", user)
	}
}

func TestAdviseErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`},
		{"api error envelope", http.StatusOK, `{"error":{"message":"model overloaded","type":"server_error"}}`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"non-json opinion", http.StatusOK, chatBody(`I think you should proceed.`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			client := NewClient(srv.URL, "sk-test", "gpt-4o", 5*time.Second)
			if _, err := client.Advise(context.Background(), advisoryRequest()); err == nil {
				t.Fatal("expected error, got none")
			}
		})
	}
}
