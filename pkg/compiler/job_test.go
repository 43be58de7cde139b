package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"mql4", DialectMQL4, false},
		{"MQL5", DialectMQL5, false},
		{" mql5 ", DialectMQL5, false},
		{"mql6", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDialect(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidJob)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDialectForSource(t *testing.T) {
	d, ok := DialectForSource("experts/Grid.MQ5")
	assert.True(t, ok)
	assert.Equal(t, DialectMQL5, d)

	d, ok = DialectForSource("scripts/a.mq4")
	assert.True(t, ok)
	assert.Equal(t, DialectMQL4, d)

	_, ok = DialectForSource("include/a.mqh")
	assert.False(t, ok)
}

func TestDownloadExtensions(t *testing.T) {
	assert.Equal(t, []string{".ex5", ".ex4"}, DownloadExtensions())
}

func TestValidateJobID(t *testing.T) {
	valid := []string{"a", "job-42", "A.b_c-1", strings.Repeat("x", MaxJobIDLength)}
	for _, id := range valid {
		assert.NoError(t, ValidateJobID(id), id)
	}

	invalid := []string{"", "-lead", ".hidden", "a/b", `a\b`, "a b", "..", strings.Repeat("x", MaxJobIDLength+1)}
	for _, id := range invalid {
		err := ValidateJobID(id)
		assert.ErrorIs(t, err, ErrInvalidJob, id)
	}
}

func TestResultConstructors(t *testing.T) {
	ok := Succeeded("a.ex5", "/out/a.ex5", "")
	assert.True(t, ok.Success)
	assert.Equal(t, MessageSucceeded, ok.CompilerOutput)

	failed := Failed("")
	assert.False(t, failed.Success)
	assert.Equal(t, MessageUnknownFailed, failed.Errors)
	assert.Empty(t, failed.CompiledFile)
}
