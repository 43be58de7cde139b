package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/mqlforge/pkg/compiler"
)

func TestResolveDialect(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		path    string
		want    compiler.Dialect
		wantErr bool
	}{
		{name: "flag wins", flag: "MQL4", path: "ea.mq5", want: compiler.DialectMQL4},
		{name: "inferred mq5", path: "experts/Scalper.mq5", want: compiler.DialectMQL5},
		{name: "inferred mq4 upper", path: "LEGACY.MQ4", want: compiler.DialectMQL4},
		{name: "stdin needs flag", path: "-", wantErr: true},
		{name: "unknown flag", flag: "mql6", path: "ea.mq5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveDialect(tt.flag, tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ea.mq5")
	require.NoError(t, os.WriteFile(path, []byte("int OnInit(){return 0;}"), 0o644))

	got, err := readSource(strings.NewReader("ignored"), path)
	require.NoError(t, err)
	assert.Equal(t, "int OnInit(){return 0;}", got)

	got, err = readSource(strings.NewReader("from stdin"), "-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	_, err = readSource(nil, filepath.Join(t.TempDir(), "missing.mq5"))
	assert.Error(t, err)
}
