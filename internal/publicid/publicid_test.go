package publicid

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePrefixes(t *testing.T) {
	g := NewGenerator()

	id, err := g.Generate(KindCommission)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "comm_"))

	id, err = g.Generate(KindRule)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "rule_"))

	_, err = g.Generate("invoice")
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestGenerateUniqueUnderConcurrency(t *testing.T) {
	g := NewGenerator()

	const workers = 8
	const perWorker = 200

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				id, err := g.Generate(KindCommission)
				assert.NoError(t, err)
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}
