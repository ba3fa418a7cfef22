package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type liveFrame struct {
	Type      string `json:"type"`
	HTML      string `json:"html"`
	Page      int    `json:"page"`
	PageCount int    `json:"page_count"`
	Total     int    `json:"total"`
	Loading   bool   `json:"loading"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

func dialLive(t *testing.T, server *httptest.Server, cookie *http.Cookie) *websocket.Conn {
	t.Helper()
	endpoint := "ws" + strings.TrimPrefix(server.URL, "http") + liveURL
	header := http.Header{}
	if cookie != nil {
		header.Set("Cookie", cookie.Name+"="+cookie.Value)
	}
	conn, response, err := websocket.DefaultDialer.Dial(endpoint, header)
	if err != nil {
		status := 0
		if response != nil {
			status = response.StatusCode
		}
		t.Fatalf("failed to dial live endpoint (status %d): %v", status, err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func readFrameUntil(t *testing.T, conn *websocket.Conn, match func(liveFrame) bool) liveFrame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("failed to set deadline: %v", err)
	}
	for {
		var frame liveFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("failed to read live frame: %v", err)
		}
		if match(frame) {
			return frame
		}
	}
}

func loadedView(total int) func(liveFrame) bool {
	return func(frame liveFrame) bool {
		return frame.Type == liveTypeView && !frame.Loading && frame.Total == total
	}
}

func TestLiveDashboardPushesInsertsAndSearch(t *testing.T) {
	harness := newTestHarness(t)
	harness.seed(t, "Ada Lovelace", "ada_codes")
	cookie := harness.signIn(t)
	server := httptest.NewServer(harness.handler)
	t.Cleanup(server.Close)

	conn := dialLive(t, server, cookie)
	initial := readFrameUntil(t, conn, loadedView(1))
	if !strings.Contains(initial.HTML, "Ada Lovelace") {
		t.Fatalf("expected seeded submission in view html")
	}

	harness.seed(t, "Grace Hopper", "grace")
	inserted := readFrameUntil(t, conn, loadedView(2))
	if !strings.Contains(inserted.HTML, "Grace Hopper") {
		t.Fatalf("expected inserted submission in view html")
	}

	if err := conn.WriteJSON(map[string]interface{}{"type": liveTypeField, "field": "name"}); err != nil {
		t.Fatalf("failed to send field: %v", err)
	}
	if err := conn.WriteJSON(map[string]interface{}{"type": liveTypeSearch, "query": "GRACE"}); err != nil {
		t.Fatalf("failed to send search: %v", err)
	}
	filtered := readFrameUntil(t, conn, loadedView(1))
	if !strings.Contains(filtered.HTML, "Grace Hopper") || strings.Contains(filtered.HTML, "Ada Lovelace") {
		t.Fatalf("unexpected filtered html %s", filtered.HTML)
	}
}

func TestLiveDashboardAppliesDeleteAndReportsNotice(t *testing.T) {
	harness := newTestHarness(t)
	row := harness.seed(t, "Ada Lovelace", "ada_codes")
	harness.seed(t, "Grace Hopper", "grace")
	cookie := harness.signIn(t)
	server := httptest.NewServer(harness.handler)
	t.Cleanup(server.Close)

	conn := dialLive(t, server, cookie)
	readFrameUntil(t, conn, loadedView(2))

	if err := conn.WriteJSON(map[string]interface{}{"type": liveTypeDelete, "id": row.ID}); err != nil {
		t.Fatalf("failed to send delete: %v", err)
	}
	var notice, remaining *liveFrame
	readFrameUntil(t, conn, func(frame liveFrame) bool {
		switch {
		case frame.Type == liveTypeNotice:
			notice = &frame
		case loadedView(1)(frame):
			remaining = &frame
		}
		return notice != nil && remaining != nil
	})
	if notice.Kind != "success" || notice.Message != "Submission deleted." {
		t.Fatalf("unexpected notice %+v", notice)
	}
	if strings.Contains(remaining.HTML, "Ada Lovelace") {
		t.Fatalf("expected deleted submission to leave the view")
	}
}

func TestLiveDashboardSignsOutWithSession(t *testing.T) {
	harness := newTestHarness(t)
	cookie := harness.signIn(t)
	server := httptest.NewServer(harness.handler)
	t.Cleanup(server.Close)

	conn := dialLive(t, server, cookie)
	readFrameUntil(t, conn, loadedView(0))

	logout := httptest.NewRequest(http.MethodPost, "/logout", http.NoBody)
	logout.AddCookie(cookie)
	harness.serve(logout)

	readFrameUntil(t, conn, func(frame liveFrame) bool { return frame.Type == liveTypeSignedOut })

	entries := harness.logs.FilterMessage("live session signed out").All()
	if len(entries) != 1 {
		t.Fatalf("expected one sign-out log entry, got %d", len(entries))
	}
	if sessionID, ok := entries[0].ContextMap()["session_id"].(string); !ok || sessionID == "" {
		t.Fatalf("expected sign-out log to carry the session id, got %v", entries[0].ContextMap())
	}
}

func TestLiveRejectsMissingSession(t *testing.T) {
	harness := newTestHarness(t)
	server := httptest.NewServer(harness.handler)
	t.Cleanup(server.Close)

	endpoint := "ws" + strings.TrimPrefix(server.URL, "http") + liveURL
	_, response, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err == nil {
		t.Fatalf("expected dial without session to fail")
	}
	if response == nil || response.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect to login, got %+v", response)
	}
}

func TestStreamEmitsInsertedSubmissions(t *testing.T) {
	harness := newTestHarness(t)
	cookie := harness.signIn(t)
	server := httptest.NewServer(harness.handler)
	t.Cleanup(server.Close)

	request, err := http.NewRequest(http.MethodGet, server.URL+"/admin/stream", http.NoBody)
	if err != nil {
		t.Fatalf("failed to construct stream request: %v", err)
	}
	request.AddCookie(cookie)
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() {
		_ = response.Body.Close()
	})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status: %d", response.StatusCode)
	}

	reader := bufio.NewReader(response.Body)
	type readResult struct {
		line string
		err  error
	}
	lines := make(chan readResult, 16)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			lines <- readResult{line: line, err: err}
			if err != nil {
				return
			}
		}
	}()

	// The first heartbeat proves the subscription is active before the insert.
	currentEvent := ""
	deadline := time.After(5 * time.Second)
	inserted := false
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for submission event")
		case result := <-lines:
			if result.err != nil {
				t.Fatalf("failed to read stream: %v", result.err)
			}
			line := strings.TrimSpace(result.line)
			switch {
			case strings.HasPrefix(line, "event:"):
				currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:") && currentEvent == streamEventHeartbeat && !inserted:
				inserted = true
				harness.seed(t, "Ada Lovelace", "ada_codes")
			case strings.HasPrefix(line, "data:") && currentEvent == streamEventSubmission:
				var payload streamSubmission
				if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &payload); err != nil {
					t.Fatalf("failed to decode event payload: %v", err)
				}
				if payload.Name != "Ada Lovelace" || payload.SocialMediaHandle != "ada_codes" {
					t.Fatalf("unexpected payload %+v", payload)
				}
				return
			}
		}
	}
}
