//go:build e2e

package e2e

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loremText = `Reconciliation keeps the document ledger and the vector store in
agreement. Every sweep walks the ledger, checks vector coverage for each
document, and reprocesses anything that fell out of sync. Completed documents
with full coverage are skipped, failed documents are retried, and stale
processing claims are taken over. The sweep is idempotent: running it twice
over a settled corpus changes nothing. Ingestion classifies the raw content,
extracts plain text, splits it into overlapping chunks, embeds each chunk, and
writes the vectors into a tenant-scoped collection. Retrieval then answers
semantic, lexical, or hybrid queries over those chunks.`

// TestE2E exercises the full ingest-to-retrieval flow against real postgres,
// qdrant, and object storage containers. Each subtest works in its own tenant
// so assertions on counts stay deterministic.
func TestE2E(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	t.Run("ingest lifecycle", func(t *testing.T) {
		tenant, agent := "acme", "support-bot"

		doc := env.IngestText(tenant, agent, "pipeline.txt", loremText, map[string]string{"source": "e2e"})
		assert.NotEmpty(t, doc.ID)
		assert.Equal(t, "pipeline.txt", doc.Filename)
		assert.Equal(t, "text", doc.Kind)
		assert.Equal(t, "completed", doc.Status)
		assert.Empty(t, doc.Error)
		assert.Equal(t, int64(len(loremText)), doc.ContentSize)
		assert.GreaterOrEqual(t, doc.ChunkCount, 1)

		resp, status, err := env.Get("/v1/documents/"+doc.ID, tenant, agent)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)

		var fetched documentPayload
		require.NoError(t, json.Unmarshal(resp.Data, &fetched))
		assert.Equal(t, doc.ID, fetched.ID)
		assert.Equal(t, "completed", fetched.Status)
		assert.Equal(t, "e2e", fetched.Metadata["source"])

		resp, status, err = env.Get("/v1/documents", tenant, agent)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)

		var list struct {
			Items []documentPayload `json:"items"`
			Total int               `json:"total"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &list))
		assert.Equal(t, 1, list.Total)
		require.Len(t, list.Items, 1)
		assert.Equal(t, doc.ID, list.Items[0].ID)

		resp, status, err = env.Get("/v1/documents/"+doc.ID+"/chunks", tenant, agent)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)

		var chunks []struct {
			ID         string `json:"id"`
			ChunkIndex int    `json:"chunk_index"`
			Text       string `json:"text"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &chunks))
		require.NotEmpty(t, chunks)
		for _, chunk := range chunks {
			assert.NotEmpty(t, chunk.Text)
		}

		resp, status, err = env.Get("/v1/documents/stats", tenant, agent)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)

		var stats map[string]int
		require.NoError(t, json.Unmarshal(resp.Data, &stats))
		assert.Equal(t, 1, stats["completed"])
	})

	t.Run("content offloaded to object storage", func(t *testing.T) {
		tenant, agent := "offload", "agent-1"

		doc := env.IngestText(tenant, agent, "offload.txt", loremText, nil)

		var contentKey *string
		var content []byte
		err := env.Pool.QueryRow(env.Ctx,
			"SELECT content_key, content FROM documents WHERE id = $1", doc.ID).
			Scan(&contentKey, &content)
		require.NoError(t, err)
		require.NotNil(t, contentKey)
		assert.Equal(t, "content/"+doc.ID, *contentKey)
		assert.Nil(t, content)

		raw, err := env.S3Client.GetContent(env.Ctx, *contentKey)
		require.NoError(t, err)
		assert.Equal(t, loremText, string(raw))
	})

	t.Run("search modes", func(t *testing.T) {
		tenant, agent := "search-co", "research"

		target := env.IngestText(tenant, agent, "fjordlight.txt",
			"The fjordlight protocol negotiates capabilities before any payload moves. "+
				strings.Repeat("Plain filler sentences keep the chunker busy. ", 10), nil)
		env.IngestText(tenant, agent, "other.txt",
			"An unrelated document about warehouse inventory and shipping manifests. "+
				strings.Repeat("Pallets move between docks on a fixed schedule. ", 10), nil)

		resp, status, err := env.Post("/v1/search", map[string]interface{}{
			"query": "fjordlight protocol",
			"mode":  "lexical",
		}, tenant, agent)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)

		var results []struct {
			DocumentID string  `json:"document_id"`
			Text       string  `json:"text"`
			Score      float64 `json:"score"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &results))
		require.NotEmpty(t, results)
		assert.Equal(t, target.ID, results[0].DocumentID)
		assert.Contains(t, results[0].Text, "fjordlight")

		resp, status, err = env.Post("/v1/search", map[string]interface{}{
			"query": "fjordlight protocol",
			"mode":  "semantic",
			"limit": 5,
		}, tenant, agent)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)
		require.NoError(t, json.Unmarshal(resp.Data, &results))
		assert.LessOrEqual(t, len(results), 5)

		resp, status, err = env.Post("/v1/search", map[string]interface{}{
			"query": "fjordlight protocol",
			"mode":  "hybrid",
		}, tenant, agent)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)
		require.NoError(t, json.Unmarshal(resp.Data, &results))
		require.NotEmpty(t, results)

		found := false
		for _, r := range results {
			if r.DocumentID == target.ID {
				found = true
			}
		}
		assert.True(t, found, "hybrid search should surface the keyword match")
	})

	t.Run("tenant isolation", func(t *testing.T) {
		doc := env.IngestText("tenant-a", "agent-a", "secret.txt",
			"The quarterly zymurgy report is confidential to tenant a. "+
				strings.Repeat("Nothing here should leak across tenants. ", 10), nil)

		_, status, err := env.Get("/v1/documents/"+doc.ID, "tenant-b", "agent-b")
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, status)

		resp, status, err := env.Get("/v1/documents", "tenant-b", "agent-b")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)

		var list struct {
			Total int `json:"total"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &list))
		assert.Equal(t, 0, list.Total)

		resp, status, err = env.Post("/v1/search", map[string]interface{}{
			"query": "zymurgy",
			"mode":  "lexical",
		}, "tenant-b", "agent-b")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)

		var results []json.RawMessage
		require.NoError(t, json.Unmarshal(resp.Data, &results))
		assert.Empty(t, results)
	})

	t.Run("delete document", func(t *testing.T) {
		tenant, agent := "delete-co", "janitor"

		doc := env.IngestText(tenant, agent, "ephemeral.txt",
			"A xanthophyll pigment study that will be deleted shortly. "+
				strings.Repeat("Leaf color varies with pigment concentration. ", 10), nil)

		_, status, err := env.Delete("/v1/documents/"+doc.ID, tenant, agent)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, status)

		_, status, err = env.Get("/v1/documents/"+doc.ID, tenant, agent)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, status)

		resp, status, err := env.Post("/v1/search", map[string]interface{}{
			"query": "xanthophyll",
			"mode":  "lexical",
		}, tenant, agent)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)

		var results []json.RawMessage
		require.NoError(t, json.Unmarshal(resp.Data, &results))
		assert.Empty(t, results)
	})

	t.Run("reconcile settled corpus", func(t *testing.T) {
		tenant, agent := "reconcile-co", "sweeper"

		env.IngestText(tenant, agent, "settled.txt", loremText, nil)

		for i := 0; i < 2; i++ {
			resp, status, err := env.Post("/v1/reconcile", nil, tenant, agent)
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, status)

			var summary struct {
				Synced  int `json:"synced"`
				Skipped int `json:"skipped"`
				Failed  int `json:"failed"`
			}
			require.NoError(t, json.Unmarshal(resp.Data, &summary))
			assert.Equal(t, 0, summary.Synced)
			assert.GreaterOrEqual(t, summary.Skipped, 1)
			assert.Equal(t, 0, summary.Failed)
		}
	})

	t.Run("multipart upload", func(t *testing.T) {
		tenant, agent := "upload-co", "clerk"

		content := []byte("# Runbook\n\nRestart the ingest worker before rotating credentials.\n" +
			strings.Repeat("Each step is documented in the on-call guide. ", 10))
		resp, status, err := env.PostMultipart("/v1/documents", "runbook.md", content,
			map[string]string{"team": "platform"}, tenant, agent)
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, status)

		var doc documentPayload
		require.NoError(t, json.Unmarshal(resp.Data, &doc))
		assert.Equal(t, "runbook.md", doc.Filename)
		assert.Equal(t, "completed", doc.Status)
		assert.Equal(t, "platform", doc.Metadata["team"])
	})

	t.Run("missing scope headers rejected", func(t *testing.T) {
		resp, status, err := env.Post("/v1/documents", map[string]string{"text": "no tenant"}, "", "")
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, resp.Error, "X-Tenant-ID")

		resp, status, err = env.Get("/v1/documents", "only-tenant", "")
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, resp.Error, "X-Agent-ID")
	})
}
