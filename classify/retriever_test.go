package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shelf "github.com/magicshelf/shelf"
	"github.com/magicshelf/shelf/llm"
	"github.com/magicshelf/shelf/node"
)

func TestParseLocationsAndTags(t *testing.T) {
	parsed, err := parseLocationsAndTags(`hierarchical_classification_locations:
- Business, score:80
- Computer Science - Artificial Intelligence, score:60
tags:
- finance, score:90
`)
	require.NoError(t, err)
	require.NotNil(t, parsed)

	require.Len(t, parsed.Locations, 2)
	assert.Equal(t, scoredLabel{Label: "Business", Score: 80}, parsed.Locations[0])
	assert.Equal(t, scoredLabel{Label: "Computer Science - Artificial Intelligence", Score: 60}, parsed.Locations[1])

	require.Len(t, parsed.Tags, 1)
	assert.Equal(t, scoredLabel{Label: "finance", Score: 90}, parsed.Tags[0])
}

func TestParseLocationsAndTags_Unusable(t *testing.T) {
	for name, input := range map[string]string{
		"empty":         "",
		"whitespace":    "   \n  ",
		"no locations":  "tags:\n- finance, score:90\n",
		"no tags":       "hierarchical_classification_locations:\n- Business, score:80\n",
		"both headers":  "hierarchical_classification_locations:\ntags:\n",
		"prose only":    "I could not classify this query.",
	} {
		t.Run(name, func(t *testing.T) {
			parsed, err := parseLocationsAndTags(input)
			require.NoError(t, err)
			assert.Nil(t, parsed)
		})
	}
}

func TestParseLocationsAndTags_BadScore(t *testing.T) {
	_, err := parseLocationsAndTags("hierarchical_classification_locations:\n- Business, score:high\ntags:\n- t, score:1\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, shelf.ErrMalformedResponse)

	_, err = parseLocationsAndTags("hierarchical_classification_locations:\n- Business\ntags:\n- t, score:1\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, shelf.ErrMalformedResponse)
}

func retrieverStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore("", nil)
	s.Insert(classifiedNode("ml paper", "Computer Science - Artificial Intelligence", "machine learning"))
	s.Insert(classifiedNode("security paper", "Computer Science - Security", "exploits"))
	s.Insert(classifiedNode("earnings report", "Business", "finance"))
	return s
}

func answering(answer string) llm.CompleterFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		return answer, nil
	}
}

func TestRetriever_IntersectsLocationAndTag(t *testing.T) {
	s := retrieverStore(t)
	r := NewRetriever(s, answering(`hierarchical_classification_locations:
- Computer Science - Artificial Intelligence, score:80
tags:
- machine learning, score:90
`), nil)

	results, err := r.Retrieve(context.Background(), "what is new in ml?")
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "ml paper", results[0].Node.Text)
	assert.InDelta(t, 0.8, results[0].Score, 1e-9)
}

func TestRetriever_TagMismatchExcludesNode(t *testing.T) {
	s := retrieverStore(t)

	// Location matches the ML paper but the tag points elsewhere.
	r := NewRetriever(s, answering(`hierarchical_classification_locations:
- Computer Science - Artificial Intelligence, score:80
tags:
- finance, score:90
`), nil)

	results, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetriever_ExpandsPartialLocation(t *testing.T) {
	// "Computer Science" is a real location here, and also a prefix of the
	// AI branch; answering with it retrieves both.
	s := NewStore("", nil)
	s.Insert(classifiedNode("cs overview", "Computer Science", "computing"))
	s.Insert(classifiedNode("ml paper", "Computer Science - Artificial Intelligence", "computing"))

	r := NewRetriever(s, answering(`hierarchical_classification_locations:
- Computer Science, score:70
tags:
- computing, score:90
`), nil)

	results, err := r.Retrieve(context.Background(), "computer science overview")
	require.NoError(t, err)

	texts := []string{}
	for _, res := range results {
		texts = append(texts, res.Node.Text)
	}
	assert.ElementsMatch(t, []string{"cs overview", "ml paper"}, texts)
}

func TestRetriever_DropsUnknownLocationsAndTags(t *testing.T) {
	s := retrieverStore(t)
	r := NewRetriever(s, answering(`hierarchical_classification_locations:
- Astrology, score:95
- Business, score:50
tags:
- horoscopes, score:95
- finance, score:50
`), nil).WithTopK(2)

	results, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "earnings report", results[0].Node.Text)
}

func TestRetriever_TopKKeepsHighestScores(t *testing.T) {
	s := retrieverStore(t)

	// topK is 1, so only the highest-scored location and tag survive.
	r := NewRetriever(s, answering(`hierarchical_classification_locations:
- Business, score:90
- Computer Science - Artificial Intelligence, score:40
tags:
- finance, score:85
- machine learning, score:30
`), nil)

	results, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "earnings report", results[0].Node.Text)
}

func TestRetriever_UnusableAnswerReturnsNoResults(t *testing.T) {
	for name, answer := range map[string]string{
		"prose":           "I could not classify this query.",
		"missing section": "hierarchical_classification_locations:\n- Business, score:80\n",
		"bad score line":  "hierarchical_classification_locations:\n- Business, score:high\ntags:\n- finance, score:90\n",
		"empty":           "",
	} {
		t.Run(name, func(t *testing.T) {
			s := retrieverStore(t)
			r := NewRetriever(s, answering(answer), nil)

			results, err := r.Retrieve(context.Background(), "q")
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestRetriever_PromptCarriesSchemaAndQuery(t *testing.T) {
	s := retrieverStore(t)
	s.UpdateSummaryNodes([]*node.Node{summaryNode("Business", "companies and markets")})

	var prompt string
	r := NewRetriever(s, llm.CompleterFunc(func(ctx context.Context, p string) (string, error) {
		prompt = p
		return "hierarchical_classification_locations:\n- Business, score:80\ntags:\n- finance, score:90\n", nil
	}), nil)

	_, err := r.Retrieve(context.Background(), "quarterly earnings")
	require.NoError(t, err)

	assert.Contains(t, prompt, "Business")
	assert.Contains(t, prompt, "Location summary: companies and markets")
	assert.Contains(t, prompt, "- finance")
	assert.Contains(t, prompt, "quarterly earnings")
}
