package profiling

import (
	"testing"

	"hashmine/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestProfilerConfig(t *testing.T) {
	cfg := &config.Config{AppName: "hashmine", AppEnv: "staging", AppVersion: "1.2.3"}
	cfg.Pyroscope.Addr = "http://pyroscope:4040"

	pc := profilerConfig(cfg)
	require.Equal(t, "hashmine", pc.ApplicationName)
	require.Equal(t, "http://pyroscope:4040", pc.ServerAddress)
	require.Equal(t, "staging", pc.Tags["env"])
	require.NotEmpty(t, pc.ProfileTypes)
}

func TestRegisterProfiling_DisabledWithoutAddr(t *testing.T) {
	require.NoError(t, registerProfiling(nil, &config.Config{}))
}
