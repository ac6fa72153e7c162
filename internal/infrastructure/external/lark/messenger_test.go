package lark

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeOpenAPI struct {
	mu       sync.Mutex
	bodies   []map[string]string
	queries  []string
	failCode int
}

func (f *fakeOpenAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/open-apis/auth/v3/tenant_access_token/internal", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"code":0,"msg":"ok","tenant_access_token":"t-test","expire":7200}`)
	})
	mux.HandleFunc("/open-apis/im/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.bodies = append(f.bodies, body)
		f.queries = append(f.queries, r.URL.Query().Get("receive_id_type"))
		code := f.failCode
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if code != 0 {
			_, _ = io.WriteString(w, `{"code":230002,"msg":"bot not in chat"}`)
			return
		}
		_, _ = io.WriteString(w, `{"code":0,"msg":"success","data":{"message_id":"om_1"}}`)
	})
	return mux
}

func newTestMessenger(t *testing.T, api *fakeOpenAPI) *Messenger {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	sdk := NewSDKClient(Config{AppID: "cli_test", AppSecret: "secret", BaseURL: srv.URL}, zap.NewNop())
	return NewMessenger(sdk, zap.NewNop())
}

func TestMessenger_SendText(t *testing.T) {
	api := &fakeOpenAPI{}
	m := newTestMessenger(t, api)

	err := m.SendText(context.Background(), "ou_123", "Expense #7 \"taxi\"\nneeds approval")
	require.NoError(t, err)

	require.Len(t, api.bodies, 1)
	assert.Equal(t, "open_id", api.queries[0])
	assert.Equal(t, "ou_123", api.bodies[0]["receive_id"])
	assert.Equal(t, "text", api.bodies[0]["msg_type"])

	var content map[string]string
	require.NoError(t, json.Unmarshal([]byte(api.bodies[0]["content"]), &content))
	assert.Equal(t, "Expense #7 \"taxi\"\nneeds approval", content["text"])
}

func TestMessenger_SendTextFailures(t *testing.T) {
	api := &fakeOpenAPI{failCode: 230002}
	m := newTestMessenger(t, api)

	err := m.SendText(context.Background(), "ou_123", "hello")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "230002"))

	assert.Error(t, m.SendText(context.Background(), "", "hello"))
	assert.Error(t, m.SendText(context.Background(), "ou_123", ""))
}

func TestTextContent(t *testing.T) {
	got, err := textContent(`a "quoted" \ line`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"a \"quoted\" \\ line"}`, got)
}
