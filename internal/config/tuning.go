package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// TuningConfig holds the tunable parameters the spec's source fixes as
// literals (a 30-second cluster-ready deadline, a 500ms drain poll, a
// 120-second drain cap) so they can be adjusted without a rebuild.
type TuningConfig struct {
	Connect   ConnectTuning   `mapstructure:"connect"`
	Drain     DrainTuning     `mapstructure:"drain"`
	Reconnect ReconnectTuning `mapstructure:"reconnect"`
}

// ConnectTuning controls Connect's retry and readiness-wait behavior.
type ConnectTuning struct {
	Retries                 int `mapstructure:"retries"`
	RetryDelaySeconds       int `mapstructure:"retry_delay_seconds"`
	ClusterReadyTimeoutSecs int `mapstructure:"cluster_ready_timeout_seconds"`
	NodeReadyCheckUnits     int `mapstructure:"node_ready_check_units"`
}

// DrainTuning controls Shutdown's drain loop.
type DrainTuning struct {
	PollIntervalMS int `mapstructure:"poll_interval_ms"`
	CapSeconds     int `mapstructure:"cap_seconds"`
}

// ReconnectTuning controls the reconnect circuit breaker that supplements
// the pool's own reconnect coordinator with failure-streak tracking.
type ReconnectTuning struct {
	// FailureThreshold is the number of consecutive reconnect failures,
	// within WindowSeconds of the first one, that opens the circuit.
	FailureThreshold int `mapstructure:"failure_threshold"`

	// WindowSeconds bounds the failure-streak count: once open, the
	// breaker blocks dial-outs until this many seconds have passed since
	// it opened, at which point it lets one probe attempt through. A
	// failure streak that goes stale (more than WindowSeconds since its
	// first failure while still closed) is also reset rather than
	// accumulating forever.
	WindowSeconds int `mapstructure:"window_seconds"`

	// MaxFailureReasonsTracked bounds how many distinct failure reasons
	// the breaker keeps for its stats surface.
	MaxFailureReasonsTracked int `mapstructure:"max_failure_reasons_tracked"`
}

func defaultTuning() *TuningConfig {
	return &TuningConfig{
		Connect: ConnectTuning{
			Retries:                 3,
			RetryDelaySeconds:       1,
			ClusterReadyTimeoutSecs: 30,
			NodeReadyCheckUnits:     30,
		},
		Drain: DrainTuning{
			PollIntervalMS: 500,
			CapSeconds:     120,
		},
		Reconnect: ReconnectTuning{
			FailureThreshold:         3,
			WindowSeconds:            60,
			MaxFailureReasonsTracked: 5,
		},
	}
}

func setTuningDefaults(v *viper.Viper) {
	d := defaultTuning()
	v.SetDefault("connect.retries", d.Connect.Retries)
	v.SetDefault("connect.retry_delay_seconds", d.Connect.RetryDelaySeconds)
	v.SetDefault("connect.cluster_ready_timeout_seconds", d.Connect.ClusterReadyTimeoutSecs)
	v.SetDefault("connect.node_ready_check_units", d.Connect.NodeReadyCheckUnits)
	v.SetDefault("drain.poll_interval_ms", d.Drain.PollIntervalMS)
	v.SetDefault("drain.cap_seconds", d.Drain.CapSeconds)
	v.SetDefault("reconnect.failure_threshold", d.Reconnect.FailureThreshold)
	v.SetDefault("reconnect.window_seconds", d.Reconnect.WindowSeconds)
	v.SetDefault("reconnect.max_failure_reasons_tracked", d.Reconnect.MaxFailureReasonsTracked)
}

// LoadTuning loads tuning.yaml from the standard search locations, falling
// back to defaults when no file is present.
func LoadTuning() (*TuningConfig, error) {
	return LoadTuningWithFile("")
}

// LoadTuningWithFile loads tuning configuration from a specific file path,
// or from the standard search locations when tuningFile is empty. This
// uses an isolated viper.New() instance so it never touches viper's
// global instance.
func LoadTuningWithFile(tuningFile string) (*TuningConfig, error) {
	v := viper.New()
	setTuningDefaults(v)

	if tuningFile != "" {
		v.SetConfigFile(tuningFile)
	} else {
		v.SetConfigName("tuning")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/ndbpool")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultTuning(), nil
		}
		if _, ok := err.(*os.PathError); ok {
			return defaultTuning(), nil
		}
		return nil, fmt.Errorf("failed to read tuning config: %w", err)
	}

	var tuning TuningConfig
	if err := v.Unmarshal(&tuning); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tuning config: %w", err)
	}

	if err := tuning.Validate(); err != nil {
		return nil, err
	}

	return &tuning, nil
}

// Validate checks tuning parameters for valid ranges.
func (t *TuningConfig) Validate() error {
	if t.Connect.Retries < 0 {
		return fmt.Errorf("connect.retries must be >= 0, got %d", t.Connect.Retries)
	}
	if t.Connect.ClusterReadyTimeoutSecs < 1 {
		return fmt.Errorf("connect.cluster_ready_timeout_seconds must be >= 1, got %d", t.Connect.ClusterReadyTimeoutSecs)
	}
	if t.Connect.NodeReadyCheckUnits < 1 {
		return fmt.Errorf("connect.node_ready_check_units must be >= 1, got %d", t.Connect.NodeReadyCheckUnits)
	}
	if t.Drain.PollIntervalMS < 1 {
		return fmt.Errorf("drain.poll_interval_ms must be >= 1, got %d", t.Drain.PollIntervalMS)
	}
	if t.Drain.CapSeconds < 1 {
		return fmt.Errorf("drain.cap_seconds must be >= 1, got %d", t.Drain.CapSeconds)
	}
	if t.Reconnect.FailureThreshold < 1 {
		return fmt.Errorf("reconnect.failure_threshold must be >= 1, got %d", t.Reconnect.FailureThreshold)
	}
	if t.Reconnect.WindowSeconds < 1 {
		return fmt.Errorf("reconnect.window_seconds must be >= 1, got %d", t.Reconnect.WindowSeconds)
	}
	if t.Reconnect.MaxFailureReasonsTracked < 1 {
		return fmt.Errorf("reconnect.max_failure_reasons_tracked must be >= 1, got %d", t.Reconnect.MaxFailureReasonsTracked)
	}
	return nil
}

// PoolOptions translates tuning values into pool.Options. Kept here rather
// than in package pool to preserve the teacher's anti-circular-import
// style: pool must not import config.
func (t *TuningConfig) PoolOptions() (retries, retryDelaySeconds, clusterReadyTimeoutSeconds, nodeReadyCheckUnits, drainPollIntervalMS, drainCapSeconds int) {
	return t.Connect.Retries, t.Connect.RetryDelaySeconds, t.Connect.ClusterReadyTimeoutSecs,
		t.Connect.NodeReadyCheckUnits, t.Drain.PollIntervalMS, t.Drain.CapSeconds
}
