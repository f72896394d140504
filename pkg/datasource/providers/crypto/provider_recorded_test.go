package crypto

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"

	"dataengine/pkg/transport"
)

// This test uses go-vcr to record/replay a real universe pull.
// It skips by default if the cassette is absent and RECORD_CASSETTES != 1.
func TestListSymbols_Recorded(t *testing.T) {
	cassette := filepath.Join("testdata", "cassettes", "crypto_universe.yaml")
	if _, err := os.Stat(cassette); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s", cassette)
		}
		// Ensure parent directory exists for recording
		err := os.MkdirAll(filepath.Dir(cassette), 0o755)
		assert.NoError(t, err, "mkdir cassettes dir should succeed")
	}

	r, err := recorder.New(cassette)
	assert.NoError(t, err, "recorder.New should not error")
	assert.NotNil(t, r, "recorder should not be nil")
	defer func() { _ = r.Stop() }()

	httpClient := &http.Client{Transport: r}
	src := NewSource("crypto-recorded",
		WithTransport(transport.New(transport.WithHTTPClient(httpClient))),
	)

	metas, err := src.ListSymbols(context.Background())
	assert.NoError(t, err, "ListSymbols should not error")
	assert.NotEmpty(t, metas, "universe should not be empty")
	if len(metas) > 0 {
		assert.NotEmpty(t, metas[0].Code, "coin code should not be empty")
		assert.NotEmpty(t, metas[0].FullCode, "full code should not be empty")
	}
}
