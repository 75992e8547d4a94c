package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordLLMRequest(t *testing.T) {
	before := testutil.ToFloat64(LLMRequests.WithLabelValues("openai", "text"))
	RecordLLMRequest("openai", "text", 0.25)
	assert.Equal(t, before+1, testutil.ToFloat64(LLMRequests.WithLabelValues("openai", "text")))
}

func TestRecordArticlesIgnoresNonPositive(t *testing.T) {
	before := testutil.ToFloat64(ArticlesTotal.WithLabelValues("stored"))
	RecordArticles("stored", 0)
	RecordArticles("stored", -2)
	assert.Equal(t, before, testutil.ToFloat64(ArticlesTotal.WithLabelValues("stored")))

	RecordArticles("stored", 3)
	assert.Equal(t, before+3, testutil.ToFloat64(ArticlesTotal.WithLabelValues("stored")))
}

func TestRecordChatTurn(t *testing.T) {
	before := testutil.ToFloat64(ChatTurns.WithLabelValues("E05"))
	RecordChatTurn("E05")
	assert.Equal(t, before+1, testutil.ToFloat64(ChatTurns.WithLabelValues("E05")))
}
