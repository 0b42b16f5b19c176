package evaluation

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	evals := map[string]*Evaluation{
		"1": {Judgment: Judgment{Acceptability: AcceptableYes, Precision: PrecisionMore, Quality: QualityMore}},
		"2": {Judgment: Judgment{Acceptability: AcceptableYes, Precision: PrecisionSame, Quality: QualityLess}},
		"3": {Judgment: Judgment{Acceptability: AcceptableNo, Precision: PrecisionMore, Quality: QualitySame, PromptImprovement: Improved}},
	}

	s := Summarize(evals)
	assert.Equal(t, 3, s.Total)
	require.Len(t, s.Rows, 10)

	byKey := map[string]SummaryRow{}
	for _, r := range s.Rows {
		byKey[r.Criterion+"/"+r.Judgment] = r
	}
	assert.Equal(t, 2, byKey["acceptability/Yes"].Count)
	assert.Equal(t, 66.7, byKey["acceptability/Yes"].Percentage)
	assert.Equal(t, 33.3, byKey["acceptability/No"].Percentage)
	assert.Equal(t, 0, byKey["precision/Less Precise"].Count)
	assert.Equal(t, 0.0, byKey["precision/Less Precise"].Percentage)
	assert.Equal(t, 100.0, byKey["prompt_improvement/Improved"].Percentage)
	assert.Equal(t, 0.0, byKey["prompt_improvement/Not Improved"].Percentage)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.Total)
	require.Len(t, s.Rows, 10)
	for _, r := range s.Rows {
		assert.Zero(t, r.Count)
		assert.Zero(t, r.Percentage)
	}
}

func TestSummary_WriteCSV(t *testing.T) {
	s := Summarize(map[string]*Evaluation{
		"1": {Judgment: Judgment{Acceptability: AcceptableYes, Precision: PrecisionMore, Quality: QualityMore}},
	})

	var buf bytes.Buffer
	require.NoError(t, s.WriteCSV(&buf))

	want := "criterion,judgment,count,percentage\n" +
		"acceptability,Yes,1,100.0\n" +
		"acceptability,No,0,0.0\n" +
		"precision,More Precise,1,100.0\n" +
		"precision,Less Precise,0,0.0\n" +
		"precision,Same,0,0.0\n" +
		"quality,More Accurate,1,100.0\n" +
		"quality,Less Accurate,0,0.0\n" +
		"quality,Same,0,0.0\n" +
		"prompt_improvement,Improved,0,0.0\n" +
		"prompt_improvement,Not Improved,0,0.0\n"
	assert.Equal(t, want, buf.String())
}
