package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInit_Levels(t *testing.T) {
	tests := []struct {
		level   string
		want    zap.AtomicLevel
		wantErr bool
	}{
		{level: "Info", want: zap.NewAtomicLevelAt(zap.InfoLevel)},
		{level: "DEBUG", want: zap.NewAtomicLevelAt(zap.DebugLevel)},
		{level: " warn ", want: zap.NewAtomicLevelAt(zap.WarnLevel)},
		{level: "chatty", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l := New()
			err := l.Init(tt.level)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Log.Core().Enabled(tt.want.Level()))
			if tt.want.Level() > zap.DebugLevel {
				assert.False(t, l.Log.Core().Enabled(tt.want.Level()-1))
			}
		})
	}
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
