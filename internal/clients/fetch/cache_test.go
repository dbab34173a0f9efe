package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveIfAbsent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, "%PDF-1.4 body")
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "pdf", "2020-05-05.pdf")
	client := newTestClient(nil)
	req := Request{URL: server.URL, Kind: KindPDF}

	created, err := SaveIfAbsent(context.Background(), client, req, path)
	require.NoError(t, err)
	assert.True(t, created)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(body))

	created, err = SaveIfAbsent(context.Background(), client, req, path)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int32(1), calls.Load())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
