package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req httpEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "hello", req.Prompt)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"embedding":[0.25,-0.5,1]}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "nomic-embed-text", 3, time.Second)
	vec, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)
	assert.Equal(t, 3, p.Dimension())
	assert.Equal(t, "nomic-embed-text", p.Model())
}

func TestHTTPProvider_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		delay   time.Duration
		dim     int
		timeout time.Duration
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`, dim: 3},
		{name: "malformed body", status: http.StatusOK, body: `{"embedding":`, dim: 3},
		{name: "empty embedding", status: http.StatusOK, body: `{"embedding":[]}`, dim: 3},
		{name: "wrong dimension", status: http.StatusOK, body: `{"embedding":[1,2]}`, dim: 3},
		{name: "timeout", status: http.StatusOK, body: `{"embedding":[1,2,3]}`, delay: 200 * time.Millisecond, dim: 3, timeout: 20 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.delay > 0 {
					select {
					case <-time.After(tt.delay):
					case <-r.Context().Done():
						return
					}
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			timeout := tt.timeout
			if timeout == 0 {
				timeout = time.Second
			}
			p := NewHTTPProvider(srv.URL, "m", tt.dim, timeout)
			vec, err := p.Embed(context.Background(), "hello")
			assert.Nil(t, vec)
			assert.True(t, errors.Is(err, ErrUnavailable), "got %v", err)
		})
	}
}

func TestHTTPProvider_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewHTTPProvider(url, "m", 3, time.Second)
	_, err := p.Embed(context.Background(), "hello")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

type fakeInvoker struct {
	input *bedrockruntime.InvokeModelInput
	body  string
	err   error
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func TestBedrockProvider_Embed(t *testing.T) {
	inv := &fakeInvoker{body: `{"embedding":[1,0,0.5],"inputTextTokenCount":2}`}
	p := newBedrockProvider(inv, "", 3, time.Second)

	vec, err := p.Embed(context.Background(), "안녕하세요")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0.5}, vec)

	require.NotNil(t, inv.input)
	assert.Equal(t, DefaultBedrockModel, aws.ToString(inv.input.ModelId))
	assert.Equal(t, "application/json", aws.ToString(inv.input.ContentType))
	assert.JSONEq(t, `{"inputText":"안녕하세요"}`, string(inv.input.Body))
	assert.Equal(t, DefaultBedrockModel, p.Model())
}

func TestBedrockProvider_Failures(t *testing.T) {
	tests := []struct {
		name string
		inv  *fakeInvoker
	}{
		{name: "invoke error", inv: &fakeInvoker{err: errors.New("throttled")}},
		{name: "malformed", inv: &fakeInvoker{body: `not json`}},
		{name: "missing embedding", inv: &fakeInvoker{body: `{"inputTextTokenCount":2}`}},
		{name: "wrong dimension", inv: &fakeInvoker{body: `{"embedding":[1,2,3,4]}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newBedrockProvider(tt.inv, "amazon.titan-embed-text-v1", 3, time.Second)
			_, err := p.Embed(context.Background(), "hello")
			assert.True(t, errors.Is(err, ErrUnavailable), "got %v", err)
		})
	}
}
