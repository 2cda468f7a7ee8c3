package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/aretw0/hotswap/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockCoordinator records enqueued packets.
type MockCoordinator struct {
	mu      sync.Mutex
	packets []domain.UpdatePacket
	err     error
}

func (m *MockCoordinator) Enqueue(ctx context.Context, p domain.UpdatePacket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.packets = append(m.packets, p)
	return nil
}

func (m *MockCoordinator) Instances() []domain.InstanceView {
	return []domain.InstanceView{{ID: "a-1", Status: domain.StatusLive, ModuleID: "A", Version: 2}}
}

func (m *MockCoordinator) Graph() []domain.ModuleRecord {
	return []domain.ModuleRecord{{ID: "A", Version: 2, AcceptsSelf: true}}
}

func TestPostUpdate(t *testing.T) {
	coord := &MockCoordinator{}
	handler := NewHandler(coord, nil)

	body := `{"modules":[{"moduleId":"A","version":2,"acceptsSelf":true,"dependents":["App"]}]}`
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/updates", strings.NewReader(body)))

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, coord.packets, 1)
	assert.Equal(t, []string{"A"}, coord.packets[0].ModuleIDs())

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/updates", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostUpdate_Malformed(t *testing.T) {
	coord := &MockCoordinator{err: domain.ErrMalformedUpdate}
	handler := NewHandler(coord, nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/updates", strings.NewReader(`{"modules":[]}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReadEndpoints(t *testing.T) {
	handler := NewHandler(&MockCoordinator{}, nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/instances", nil))
	var views []domain.InstanceView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	assert.Equal(t, "a-1", views[0].ID)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/graph", nil))
	assert.Contains(t, w.Body.String(), `"accepts_self":true`)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "metrics are opt-in")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "hotswap_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	handler := NewHandler(&MockCoordinator{}, nil, WithMetrics(reg))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hotswap_test_total 1")
}

func TestStreamManager_Contract(t *testing.T) {
	sm := NewStreamManager()
	ch, cancel := sm.Subscribe(globalTopic)
	defer cancel()

	ports.RunTransportContract(t, sm, func(want int, timeout time.Duration) []domain.Event {
		var got []domain.Event
		deadline := time.After(timeout)
		for len(got) < want {
			select {
			case msg := <-ch:
				var e domain.Event
				if err := json.Unmarshal([]byte(msg), &e); err == nil {
					got = append(got, e)
				}
			case <-deadline:
				return got
			}
		}
		return got
	})
}

func TestSubscribeEvents_Filtered(t *testing.T) {
	streams := NewStreamManager()
	srv := httptest.NewServer(NewHandler(&MockCoordinator{}, streams))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/events?subject=A&types=applied", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: ping\n", line)

	require.Eventually(t, func() bool { return streams.Subscribers("A") == 1 }, time.Second, 5*time.Millisecond)

	emit := func(e domain.Event) { require.NoError(t, streams.Emit(ctx, e)) }
	emit(domain.Event{Seq: 1, Type: domain.EventApplying, Subject: "A"})
	emit(domain.Event{Seq: 2, Type: domain.EventApplied, Subject: "B"})
	emit(domain.Event{Seq: 3, Type: domain.EventApplied, Subject: "A"})

	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: {") {
			break
		}
	}
	var e domain.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &e))
	assert.Equal(t, uint64(3), e.Seq)
	assert.Equal(t, "applied:A", e.String())
}
