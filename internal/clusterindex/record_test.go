package clusterindex

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Kind
	}{
		{"ordinary", "foo|||3|||12|||4|||cluster 7", KindOrdinary},
		{"ordinary spaced", "foo ||| 3 ||| 12 ||| 4 ||| 7", KindOrdinary},
		{"single compact", "||||3|||12|||4|||7", KindSingleDelimiter},
		{"single spaced", "| ||| 3 ||| 12 ||| 4 ||| 7", KindSingleDelimiter},
		{"double compact", "|||||3|||12|||4|||7", KindDoubleDelimiter},
		{"double spaced", "|| ||| 3 ||| 12 ||| 4 ||| 7", KindDoubleDelimiter},
		{"pipe inside token", "a|b|||3|||12|||4|||7", KindOrdinary},
		{"extra field", "foo|||3|||12|||4|||7|||extra", KindOrdinary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.line))
		})
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want OccurrenceRecord
	}{
		{
			name: "ordinary",
			line: "  public|||0|||17|||2|||c 42  ",
			want: OccurrenceRecord{Token: "public", SourceLine: 17, Column: 2, ClusterID: "42", Kind: KindOrdinary},
		},
		{
			name: "trailing garbage before id",
			line: "x|||1|||5|||0|||layer12 cluster 9",
			want: OccurrenceRecord{Token: "x", SourceLine: 5, Column: 0, ClusterID: "9", Kind: KindOrdinary},
		},
		{
			name: "single delimiter token",
			line: "||||4|||8|||13|||3",
			want: OccurrenceRecord{Token: "|", SourceLine: 8, Column: 13, ClusterID: "3", Kind: KindSingleDelimiter},
		},
		{
			name: "double delimiter token",
			line: "|||||4|||9|||21|||3",
			want: OccurrenceRecord{Token: "||", SourceLine: 9, Column: 21, ClusterID: "3", Kind: KindDoubleDelimiter},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLine_Errors(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		reason string
	}{
		{"too few fields", "foo|||1|||2", "expected at least 5 fields"},
		{"bad source line", "foo|||1|||x|||2|||3", "invalid source line"},
		{"bad column", "foo|||1|||2|||y|||3", "invalid column"},
		{"empty id", "foo|||1|||2|||3|||   ", "empty cluster id"},
		{"blank", "   ", "empty line"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine(tt.line, 7)
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, 7, pe.Line)
			assert.Contains(t, pe.Reason, tt.reason)
		})
	}
}
